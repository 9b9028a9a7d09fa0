package columns

import "testing"

func TestDetectTypicalLayout(t *testing.T) {
	rows := [][]string{
		{"", "", ""},
		{"接单日期", "客户", "目的国", "PO号", "客户PO", "SKU", "ITEM#", "品名",
			"数量", "内箱", "外箱", "总箱数", "卡板", "出货日期", "客PO期", "验货期",
			"业务", "单价", "金额", "备注", "条码"},
	}
	cols := Detect(rows)

	want := map[Field]int{
		PODate: 1, Customer: 2, Destination: 3, PONumber: 4, CustomerPO: 5,
		SKU: 6, Items: 7, ProductName: 8, Qty: 9, InnerBox: 10, OuterBox: 11,
		TotalBox: 12, Pallets: 13, ShipDate: 14, CPODate: 15, Inspection: 16,
		FromPerson: 17, Price: 18, TotalUSD: 19, Remark: 20, Barcode: 21,
	}
	for f, col := range want {
		if cols[f] != col {
			t.Errorf("%s = col %d, want %d", f, cols[f], col)
		}
	}
}

func TestDetectTraditionalChinese(t *testing.T) {
	rows := [][]string{
		{"接單日期", "客戶", "PO號", "數量", "出貨日期", "備註"},
	}
	cols := Detect(rows)
	want := map[Field]int{
		PODate: 1, Customer: 2, PONumber: 3, Qty: 4, ShipDate: 5, Remark: 6,
	}
	for f, col := range want {
		if cols[f] != col {
			t.Errorf("%s = col %d, want %d", f, cols[f], col)
		}
	}
}

func TestDetectFirstMatchWins(t *testing.T) {
	// Two plausible qty headers: the first column keeps the claim.
	rows := [][]string{
		{"数量", "QTY"},
	}
	cols := Detect(rows)
	if cols[Qty] != 1 {
		t.Errorf("Qty = col %d, want 1", cols[Qty])
	}
}

func TestDetectCustomerPODateNotCustomerPO(t *testing.T) {
	// 客PO期 is a date column and must not claim the customer-PO field.
	rows := [][]string{
		{"客PO期", "客户PO"},
	}
	cols := Detect(rows)
	if cols[CPODate] != 1 {
		t.Errorf("CPODate = col %d, want 1", cols[CPODate])
	}
	if cols[CustomerPO] != 2 {
		t.Errorf("CustomerPO = col %d, want 2", cols[CustomerPO])
	}
}

func TestDetectCustomerPONotPONumber(t *testing.T) {
	rows := [][]string{
		{"客户PO号", "PO号"},
	}
	cols := Detect(rows)
	if cols[PONumber] != 2 {
		t.Errorf("PONumber = col %d, want 2", cols[PONumber])
	}
	if cols[CustomerPO] != 1 {
		t.Errorf("CustomerPO = col %d, want 1", cols[CustomerPO])
	}
}

func TestDetectShipDateFallsBackToCPODate(t *testing.T) {
	rows := [][]string{
		{"PO号", "客PO期"},
	}
	cols := Detect(rows)
	if cols[ShipDate] != 2 {
		t.Errorf("ShipDate = col %d, want 2 (客PO期 fallback)", cols[ShipDate])
	}
}

func TestDetectHeaderOnRowFour(t *testing.T) {
	rows := [][]string{
		{"排期表"},
		{""},
		{""},
		{"PO号", "数量"},
	}
	cols := Detect(rows)
	if cols[PONumber] != 1 || cols[Qty] != 2 {
		t.Errorf("deep header not detected: %v", cols)
	}
}

func TestToSimplified(t *testing.T) {
	if got := ToSimplified("數量"); got != "数量" {
		t.Errorf("ToSimplified(數量) = %q", got)
	}
	if got := ToSimplified("plain"); got != "plain" {
		t.Errorf("ToSimplified(plain) = %q", got)
	}
}
