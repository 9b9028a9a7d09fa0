package diffengine

import (
	"testing"

	"ScheduleSync/api/schedule/order"
)

type stubFinder struct {
	ref   *order.ScheduleRef
	calls []string
}

func (f *stubFinder) AutoFind(sku string) *order.ScheduleRef {
	f.calls = append(f.calls, sku)
	return f.ref
}

func testOrder() *order.Order {
	return &order.Order{
		PONumber: "4501234567",
		ShipDate: "2025-06-20",
		Lines: []order.OrderLine{{
			LineNo:     "10",
			SKU:        "92105-S001",
			ItemCode:   "92105",
			SkuSpec:    "92105-S001",
			Qty:        5000,
			Price:      3.25,
			CustomerPO: "CPO-889",
		}},
	}
}

func matchingRecord() order.Record {
	return order.Record{
		File: "z/排期A.xlsx", Sheet: "Sheet1", Row: 20,
		Data: map[string]string{
			"D": "4501234567-10",
			"E": "CPO-889",
			"G": "92105",
			"I": "5000",
			"M": "2025-06-20",
			"R": "3.25",
		},
	}
}

func TestDiffNoChangesNoActions(t *testing.T) {
	ord := testOrder()
	acts := Diff(ord, []order.Record{matchingRecord()}, &stubFinder{})
	if len(acts) != 0 {
		t.Fatalf("expected no actions, got %v", acts)
	}
}

func TestDiffQtyChange(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["I"] = "4800"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 1 || acts[0].Type != order.ActionModify {
		t.Fatalf("expected one modify, got %v", acts)
	}
	if acts[0].Changes["I"] != "5000" {
		t.Errorf("qty change = %v", acts[0].Changes)
	}
}

func TestDiffPriceWithinTolerance(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["R"] = "3.2495"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 0 {
		t.Fatalf("0.0005 is inside the tolerance band, got %v", acts)
	}
}

func TestDiffPriceChange(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["R"] = "3.10"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 1 {
		t.Fatalf("expected one modify, got %v", acts)
	}
	if acts[0].Changes["R"] != "3.25" {
		t.Errorf("price change = %v", acts[0].Changes)
	}
}

func TestDiffPriceSkipsQuantityLikeCells(t *testing.T) {
	// A value >= 100 in the price band is an amount, not a unit price.
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["R"] = "120.5"
	rec.Data["S"] = "3.10"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 1 || acts[0].Changes["S"] != "3.25" {
		t.Fatalf("expected price hit on S, got %v", acts)
	}
}

func TestDiffShipDateChange(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["M"] = "2025/6/15"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 1 || acts[0].Changes["M"] != "2025-06-20" {
		t.Fatalf("expected ship-date modify, got %v", acts)
	}
}

func TestDiffShipDateEqualAfterNormalization(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["M"] = "2025/6/20"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 0 {
		t.Fatalf("same date in another format must not modify, got %v", acts)
	}
}

func TestDiffCustomerPOAlreadyPresent(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	delete(rec.Data, "E")
	rec.Data["F"] = "CPO-889"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 0 {
		t.Fatalf("customer PO present in F, got %v", acts)
	}
}

func TestDiffCustomerPOWriteSkipsComposites(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["E"] = "4501234567-10" // SKU column in disguise
	rec.Data["F"] = "OLD-CPO"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 1 || acts[0].Changes["F"] != "CPO-889" {
		t.Fatalf("expected CPO write on F, got %v", acts)
	}
}

func TestDiffCrossPORecordUntouched(t *testing.T) {
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["D"] = "4509999999" // same item under another PO
	rec.Data["I"] = "1"
	f := &stubFinder{}
	acts := Diff(ord, []order.Record{rec}, f)
	if len(acts) != 0 {
		t.Fatalf("cross-PO rows are present, never modified: %v", acts)
	}
	if len(f.calls) != 0 {
		t.Errorf("line matched cross-PO must not be re-created: %v", f.calls)
	}
}

func TestDiffUnmatchedLineBecomesNew(t *testing.T) {
	ord := testOrder()
	ref := &order.ScheduleRef{File: "z/排期A.xlsx", Sheet: "Sheet1", Ref: 12}
	f := &stubFinder{ref: ref}
	acts := Diff(ord, nil, f)
	if len(acts) != 1 || acts[0].Type != order.ActionNew {
		t.Fatalf("expected one new action, got %v", acts)
	}
	if acts[0].Schedule != ref {
		t.Error("schedule ref not propagated")
	}
	if len(f.calls) != 1 || f.calls[0] != "92105-S001" {
		t.Errorf("AutoFind keyed on sku_spec, got %v", f.calls)
	}
}

func TestDiffStrayRowUntouched(t *testing.T) {
	// A schedule row whose item is absent from an ordinary order stays put.
	ord := testOrder()
	stray := order.Record{
		File: "z/排期A.xlsx", Sheet: "Sheet1", Row: 30,
		Data: map[string]string{"D": "4501234567-20", "G": "77777", "I": "100"},
	}
	acts := Diff(ord, []order.Record{matchingRecord(), stray}, &stubFinder{})
	for _, a := range acts {
		if a.Type == order.ActionCancel {
			t.Fatalf("cancel emitted for an ordinary order: %v", a)
		}
	}
}

func TestDiffCancelOrderCancelsExistingRows(t *testing.T) {
	ord := testOrder()
	ord.IsCancel = true
	rec := matchingRecord()
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 1 {
		t.Fatalf("expected one cancel, got %v", acts)
	}
	a := acts[0]
	if a.Type != order.ActionCancel {
		t.Fatalf("type = %s", a.Type)
	}
	if a.Record == nil || a.Record.Row != 20 {
		t.Errorf("record = %+v", a.Record)
	}
	if a.SKU != "92105" {
		t.Errorf("sku = %q", a.SKU)
	}
}

func TestDiffCancelOrderSkipsOtherPOs(t *testing.T) {
	ord := testOrder()
	ord.IsCancel = true
	other := order.Record{
		File: "z/排期A.xlsx", Sheet: "Sheet1", Row: 31,
		Data: map[string]string{"D": "4509999999-10", "G": "88888"},
	}
	acts := Diff(ord, []order.Record{matchingRecord(), other}, &stubFinder{})
	if len(acts) != 1 || acts[0].Record.Row != 20 {
		t.Fatalf("actions = %v", acts)
	}
}

func TestDiffCancelOrderNoRowsNoActions(t *testing.T) {
	ord := testOrder()
	ord.IsCancel = true
	if acts := Diff(ord, nil, &stubFinder{}); len(acts) != 0 {
		t.Fatalf("cancel with nothing on file produced %v", acts)
	}
}

func TestDiffIdempotentAfterApply(t *testing.T) {
	// Applying the emitted changes to the record and re-diffing yields none.
	ord := testOrder()
	rec := matchingRecord()
	rec.Data["I"] = "4800"
	rec.Data["M"] = "2025-06-01"
	acts := Diff(ord, []order.Record{rec}, &stubFinder{})
	if len(acts) != 1 {
		t.Fatalf("expected one modify, got %v", acts)
	}
	for c, v := range acts[0].Changes {
		rec.Data[c] = v
	}
	if again := Diff(ord, []order.Record{rec}, &stubFinder{}); len(again) != 0 {
		t.Fatalf("diff not idempotent: %v", again)
	}
}
