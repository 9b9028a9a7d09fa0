// Package columns resolves the semantic layout of a schedule sheet. Every
// schedule file arranges its columns differently, so positions are detected
// from header text, never hard-coded.
package columns

import "strings"

// Field names a semantic schedule column.
type Field string

const (
	PODate      Field = "po_date"
	Customer    Field = "customer"
	Destination Field = "destination"
	PONumber    Field = "po_number"
	CustomerPO  Field = "customer_po"
	SKU         Field = "sku"
	SystemCode  Field = "system_code"
	Items       Field = "items"
	ProductName Field = "product_name"
	Qty         Field = "qty"
	InnerBox    Field = "inner_box"
	OuterBox    Field = "outer_box"
	TotalBox    Field = "total_box"
	Pallets     Field = "pallets"
	ShipDate    Field = "ship_date"
	CPODate     Field = "cpo_date"
	Inspection  Field = "inspection"
	FromPerson  Field = "from_person"
	Price       Field = "price"
	TotalUSD    Field = "total_usd"
	Remark      Field = "remark"
	Barcode     Field = "barcode"
)

// header carries the cell text in the three shapes the rules match on.
type header struct {
	raw   string // as written (may be traditional Chinese)
	simp  string // simplified-folded
	upper string // simplified, upper-cased, spaces removed
}

type rule struct {
	field Field
	match func(h header) bool
}

func contains(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func oneOf(s string, vals ...string) bool {
	for _, v := range vals {
		if s == v {
			return true
		}
	}
	return false
}

// rules is the ordered alias table. Order matters twice over: a cell is
// claimed by its first matching rule, and a field keeps its first claimed
// column. The guards encode the known look-alike collisions (客PO期 is a
// date column, not the customer-PO column; "小PO" is a customer PO, not
// the PO number).
var rules = []rule{
	{PODate, func(h header) bool {
		return contains(h.simp, "接单", "首办")
	}},
	{Customer, func(h header) bool {
		if contains(h.simp, "客户名", "第三方", "第二方") && !strings.Contains(h.upper, "PO") {
			return true
		}
		return h.simp == "客户"
	}},
	{Destination, func(h header) bool {
		return contains(h.simp, "走货国") || oneOf(h.simp, "国家", "目的国")
	}},
	{PONumber, func(h header) bool {
		if !strings.Contains(h.upper, "PO") {
			return false
		}
		if !contains(h.simp, "号", "#") && h.simp != "PO" {
			return false
		}
		if contains(h.simp, "客户", "小", "数量") {
			return false
		}
		// a 客/客户 prefix immediately before PO marks the customer's PO
		if before, _, ok := strings.Cut(h.simp, "PO"); ok && strings.HasSuffix(before, "客") {
			return false
		}
		return true
	}},
	{CustomerPO, func(h header) bool {
		if strings.Contains(h.simp, "期") {
			return false
		}
		hasPO := strings.Contains(h.upper, "PO")
		if strings.Contains(h.simp, "客户") && hasPO {
			return true
		}
		if strings.Contains(h.simp, "小") && hasPO {
			return true
		}
		return contains(h.raw, "客PO") || contains(h.simp, "客PO")
	}},
	{SKU, func(h header) bool {
		return strings.Contains(h.upper, "SKU") && h.upper != "SKUCODE" &&
			!strings.Contains(h.upper, "ITEM")
	}},
	{SystemCode, func(h header) bool {
		return strings.Contains(h.simp, "系统") || oneOf(h.upper, "SYSTEMCODE", "SYSTEMNO")
	}},
	{Items, func(h header) bool {
		if strings.Contains(h.upper, "ITEM") &&
			(strings.Contains(h.simp, "#") || strings.HasSuffix(h.upper, "ITEM")) {
			return true
		}
		return oneOf(h.upper, "ITEMS", "ITEM", "ITEMCODE", "ITEM#") || h.simp == "货号"
	}},
	{ProductName, func(h header) bool {
		if contains(h.simp, "中文", "品名") || h.simp == "名称" {
			return true
		}
		return strings.Contains(h.simp, "产品") && contains(h.simp, "名", "描述")
	}},
	{Qty, func(h header) bool {
		if strings.Contains(h.simp, "数量") &&
			!contains(h.simp, "合计", "计划", "箱", "外") {
			return true
		}
		return oneOf(h.upper, "QTY", "QTYPCS", "PO数量")
	}},
	{InnerBox, func(h header) bool {
		return strings.Contains(h.simp, "内箱")
	}},
	{OuterBox, func(h header) bool {
		if strings.Contains(h.simp, "贴纸") {
			return false
		}
		return strings.Contains(h.simp, "外箱") ||
			(strings.Contains(h.simp, "装箱") && !strings.Contains(h.simp, "内箱"))
	}},
	{TotalBox, func(h header) bool {
		return strings.Contains(h.simp, "总箱") || h.simp == "箱数"
	}},
	{Pallets, func(h header) bool {
		return strings.Contains(h.simp, "卡板")
	}},
	{ShipDate, func(h header) bool {
		if contains(h.simp, "出货", "出期") {
			return true
		}
		return strings.Contains(h.simp, "走货") && !strings.Contains(h.simp, "计算")
	}},
	{CPODate, func(h header) bool {
		return strings.Contains(h.simp, "客PO") && strings.Contains(h.simp, "期")
	}},
	{Inspection, func(h header) bool {
		return strings.Contains(h.simp, "验货")
	}},
	{FromPerson, func(h header) bool {
		return contains(h.simp, "业务", "跟单")
	}},
	{Price, func(h header) bool {
		return strings.Contains(h.simp, "单价")
	}},
	{TotalUSD, func(h header) bool {
		return strings.Contains(h.simp, "金额")
	}},
	{Remark, func(h header) bool {
		return oneOf(h.simp, "备注", "备注专栏", "Remark", "REMARK")
	}},
	{Barcode, func(h header) bool {
		return strings.Contains(h.simp, "条码") ||
			contains(h.upper, "BARCODE", "UPC", "EAN")
	}},
}

// headerScanRows is how deep the header may sit; some files put it on row 4.
const headerScanRows = 5

// Detect scans the top of a sheet (rows as formatted strings, row-major,
// 0-based) and returns the 1-based column index per detected field. Absent
// keys mean the layout has no such column; callers skip those fields.
func Detect(rows [][]string) map[Field]int {
	cols := map[Field]int{}
	limit := headerScanRows
	if len(rows) < limit {
		limit = len(rows)
	}
	for r := 0; r < limit; r++ {
		for c, cell := range rows[r] {
			raw := strings.TrimSpace(cell)
			if raw == "" {
				continue
			}
			simp := ToSimplified(raw)
			h := header{
				raw:   raw,
				simp:  simp,
				upper: strings.ReplaceAll(strings.ToUpper(simp), " ", ""),
			}
			for _, rl := range rules {
				if _, taken := cols[rl.field]; taken {
					continue
				}
				if rl.match(h) {
					cols[rl.field] = c + 1
					break
				}
			}
		}
	}
	// Some layouts only carry a 客PO期 column; it holds the same date.
	if _, ok := cols[ShipDate]; !ok {
		if c, ok := cols[CPODate]; ok {
			cols[ShipDate] = c
		}
	}
	return cols
}
