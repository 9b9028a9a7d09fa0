package writer

import (
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ScheduleSync/api/schedule/columns"
	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/order"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/sheets"
)

const cancelSheetName = "取消订单"

var (
	poLineRefPat = regexp.MustCompile(`^\d{7,}-\d+$`)
	dateShapePat = regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}`)
)

// cancelRow archives a row into the cancellation sheet (red font, blue
// fill) and deletes the original. The master schedule keeps no archive,
// its rows are simply removed.
func (w *Writer) cancelRow(sess sheets.Session, fname, sheet string, row int) error {
	_, mc, err := sess.Dims(sheet)
	if err != nil {
		return err
	}
	if mc > config.MaxScanCols {
		mc = config.MaxScanCols
	}

	if !corpus.IsMasterFile(fname) {
		cancelSheet := ""
		for _, sn := range sess.Sheets() {
			if corpus.CancelledSheet(sn) {
				cancelSheet = sn
				break
			}
		}
		if cancelSheet == "" {
			cancelSheet = cancelSheetName
			if err := sess.EnsureSheet(cancelSheet); err != nil {
				return err
			}
		}
		dstRows, _, err := sess.Dims(cancelSheet)
		if err != nil {
			return err
		}
		dstRow := dstRows + 1
		if err := sess.CopyRowTo(sheet, row, cancelSheet, dstRow, mc); err != nil {
			return err
		}
		if err := sess.MarkRow(cancelSheet, dstRow, mc, config.NewRowFillRGB, config.CancelFontRGB); err != nil {
			return err
		}
	}
	return sess.DeleteRow(sheet, row)
}

// modifyRow writes changed cells in place, preserving row formatting.
// Date-shaped values become typed date cells, digit strings numbers.
func modifyRow(sess sheets.Session, sheet string, row int, changes map[string]string) error {
	for cl, nv := range changes {
		col := colNumber(cl)
		if col == 0 {
			continue
		}
		if dateShapePat.MatchString(nv) {
			if t, ok := order.ParseDate(nv); ok {
				if err := sess.SetCellDate(sheet, row, col, t); err != nil {
					return err
				}
				continue
			}
		}
		if err := sess.SetCell(sheet, row, col, typedValue(nv)); err != nil {
			return err
		}
	}
	return nil
}

// insertNew adds one order line: find the slot by ship date, inherit the
// reference row's formatting, values and formulas, then overwrite only the
// order-specific fields and clear what a new order must not inherit.
// Returns the inserted row and the blank mandatory fields, if any.
func (w *Writer) insertNew(sess sheets.Session, sheet string, refRow, maxCol int,
	header *order.Order, ln *order.OrderLine, startAfter int) (int, []string, error) {

	shipStr := header.ShipDate
	if shipStr == "" && ln != nil {
		shipStr = ln.Delivery
	}
	shipDt, hasShip := order.ParseDate(shipStr)

	mc := maxCol
	if mc > config.MaxScanCols {
		mc = config.MaxScanCols
	}

	// Column layout differs per workbook, detect before the insert moves
	// anything.
	dcols := detectSessionCols(sess, sheet, mc)
	shipCol := dcols[columns.ShipDate]
	if shipCol == 0 {
		shipCol = 13
	}

	pos, err := w.insertPos(sess, sheet, shipDt, hasShip, shipCol, startAfter)
	if err != nil {
		return 0, nil, err
	}
	if err := sess.InsertRow(sheet, pos); err != nil {
		return 0, nil, err
	}
	actualRef := refRow
	if refRow >= pos {
		actualRef = refRow + 1
	}

	if err := sess.CopyRowFormat(sheet, actualRef, pos, mc); err != nil {
		log.Printf("[writer] format copy %s row %d: %v", sheet, actualRef, err)
	}

	// Values and formulas come from the reference row; formulas shift
	// their relative row references to the new position.
	delta := pos - actualRef
	for c := 1; c <= mc; c++ {
		if f := sess.CellFormula(sheet, actualRef, c); f != "" {
			if err := sess.SetCellFormula(sheet, pos, c, sheets.ShiftFormulaRows(f, delta)); err != nil {
				return 0, nil, err
			}
			continue
		}
		if v := sess.CellString(sheet, actualRef, c); v != "" {
			if err := sess.SetCell(sheet, pos, c, typedValue(v)); err != nil {
				return 0, nil, err
			}
		}
	}

	// Calculated columns sometimes lack a formula on the reference row,
	// borrow one from a nearby row.
	for _, ck := range []columns.Field{columns.TotalBox, columns.Pallets, columns.TotalUSD} {
		fc := dcols[ck]
		if fc == 0 || sess.CellFormula(sheet, pos, fc) != "" {
			continue
		}
		lo := pos - 50
		if lo < 3 {
			lo = 3
		}
		for sr := pos - 1; sr >= lo; sr-- {
			if f := sess.CellFormula(sheet, sr, fc); f != "" {
				sess.SetCellFormula(sheet, pos, fc, sheets.ShiftFormulaRows(f, pos-sr))
				break
			}
		}
	}

	// Tracking columns between inspection and remark hold per-shipment
	// state the new order has not reached yet.
	inspCol := dcols[columns.Inspection]
	remarkCol := dcols[columns.Remark]
	if remarkCol == 0 {
		remarkCol = noteCol(sess, sheet, pos, mc)
	}
	if inspCol > 0 && remarkCol > inspCol+1 {
		for c := inspCol + 1; c < remarkCol; c++ {
			if sess.CellFormula(sheet, pos, c) == "" {
				sess.ClearCell(sheet, pos, c)
			}
		}
	}
	// System columns and everything after them, except detected data
	// columns (some layouts interleave them).
	if sysCol := dcols[columns.SystemCode]; sysCol > 0 {
		protected := map[int]bool{}
		for _, c := range dcols {
			protected[c] = true
		}
		for c := sysCol; c <= mc; c++ {
			if protected[c] {
				continue
			}
			if sess.CellFormula(sheet, pos, c) == "" {
				sess.ClearCell(sheet, pos, c)
			}
		}
	}

	w.fillOrderFields(sess, sheet, pos, actualRef, dcols, shipCol, remarkCol, header, ln, shipDt, hasShip)

	if err := sess.MarkRow(sheet, pos, mc, config.NewRowFillRGB, config.DefaultFontRGB); err != nil {
		log.Printf("[writer] new row styling %s row %d: %v", sheet, pos, err)
	}

	warns := verifyRow(sess, sheet, pos, dcols)
	if len(warns) > 0 {
		log.Printf("[writer] new row %s/%d (%s): blank fields %s", sheet, pos, ln.SKU, strings.Join(warns, ", "))
	}
	return pos, warns, nil
}

// fillOrderFields overwrites the order-specific cells. Product-intrinsic
// columns (name, inner/outer box, calculated totals) stay inherited from
// the reference row.
func (w *Writer) fillOrderFields(sess sheets.Session, sheet string, pos, actualRef int,
	dcols map[columns.Field]int, shipCol, remarkCol int,
	header *order.Order, ln *order.OrderLine, shipDt time.Time, hasShip bool) {

	po := strings.TrimSpace(header.PONumber)

	if t, ok := order.ParseDate(header.PODate); ok {
		sess.SetCellDate(sheet, pos, colOr(dcols, columns.PODate, 1), t)
	}
	if header.Customer != "" {
		sess.SetCell(sheet, pos, colOr(dcols, columns.Customer, 2), header.Customer)
	}
	if header.DestinationCN != "" {
		sess.SetCell(sheet, pos, colOr(dcols, columns.Destination, 3), header.DestinationCN)
	}

	poCol := colOr(dcols, columns.PONumber, 4)
	if po != "" {
		// The reference row may carry a formula here; clear before writing.
		sess.ClearCell(sheet, pos, poCol)
		sess.SetCell(sheet, pos, poCol, typedValue(po))
	}

	cpoCol := colOr(dcols, columns.CustomerPO, 5)
	if cpo := strings.TrimSpace(ln.CustomerPO); cpo != "" {
		sess.SetCell(sheet, pos, cpoCol, intOrString(cpo))
	} else if sess.CellFormula(sheet, pos, cpoCol) == "" {
		sess.ClearCell(sheet, pos, cpoCol)
	}

	// SKU column carries the PO-line composite when the order has line
	// numbers; otherwise the spec code, unless the column is the composite
	// kind (then the inherited value would be wrong either way, leave it).
	skuCol := colOr(dcols, columns.SKU, 6)
	specVal := ln.SkuSpec
	if specVal == "" {
		specVal = ln.SKU
	}
	if po != "" && ln.LineNo != "" {
		sess.SetCell(sheet, pos, skuCol, po+"-"+ln.LineNo)
	} else if specVal != "" {
		refSku := strings.TrimSpace(sess.CellString(sheet, actualRef, skuCol))
		if !poLineRefPat.MatchString(refSku) {
			sess.SetCell(sheet, pos, skuCol, specVal)
		}
	}

	// ITEM# takes the full spec code, following the case already used in
	// the schedule (s001 vs S001).
	if itemCol := dcols[columns.Items]; itemCol > 0 && specVal != "" {
		refItem := strings.TrimSpace(sess.CellString(sheet, actualRef, itemCol))
		if refItem != "" && strings.EqualFold(refItem, specVal) {
			specVal = refItem
		}
		sess.SetCell(sheet, pos, itemCol, specVal)
	}

	// System code column is never filled by this tool.
	if sysCol := dcols[columns.SystemCode]; sysCol > 0 {
		sess.ClearCell(sheet, pos, sysCol)
	}

	if ln.Qty > 0 {
		sess.SetCell(sheet, pos, colOr(dcols, columns.Qty, 9), ln.Qty)
	}

	if hasShip {
		sess.SetCellDate(sheet, pos, shipCol, shipDt)
		if cpoDateCol := dcols[columns.CPODate]; cpoDateCol > 0 && cpoDateCol != shipCol {
			// Customer PO date equals the ship date on these orders.
			sess.SetCellDate(sheet, pos, cpoDateCol, shipDt)
		}
		if inspCol := dcols[columns.Inspection]; inspCol > 0 {
			sess.SetCellDate(sheet, pos, inspCol, InspectionDate(shipDt, sheet))
		}
	}

	if ln.Barcode != "" {
		if bc := dcols[columns.Barcode]; bc > 0 {
			sess.SetCell(sheet, pos, bc, ln.Barcode)
		}
	}

	itemNum := order.SkuKey(specVal)
	if note := BuildNote(header, itemNum); note != "" && remarkCol > 0 {
		sess.SetCell(sheet, pos, remarkCol, note)
	}

	if fpCol := dcols[columns.FromPerson]; fpCol > 0 && header.FromPerson != "" {
		sess.SetCell(sheet, pos, fpCol, strings.TrimSpace(strings.SplitN(header.FromPerson, "/", 2)[0]))
	}
	if pc := dcols[columns.Price]; pc > 0 && ln.Price > 0 {
		sess.SetCell(sheet, pos, pc, ln.Price)
	}
}

// InspectionDate derives the inspection date from the ship date: the usual
// lead is four days, two for the 15746/河源 lines, and weekend landings
// roll back to Friday.
func InspectionDate(ship time.Time, sheet string) time.Time {
	lead := config.InspectionLeadDays
	if strings.Contains(sheet, "15746") || strings.Contains(sheet, "河源") {
		lead = config.InspectionLeadDaysShort
	}
	insp := ship.AddDate(0, 0, -lead)
	switch insp.Weekday() {
	case time.Sunday:
		insp = insp.AddDate(0, 0, -2)
	case time.Saturday:
		insp = insp.AddDate(0, 0, -1)
	}
	return insp
}

// insertPos finds the row to insert before: the first row at or past the
// ship date in the ship-date column, otherwise right after the last dated
// row. startAfter keeps same-batch lines in order.
func (w *Writer) insertPos(sess sheets.Session, sheet string, ship time.Time, hasShip bool,
	col, startAfter int) (int, error) {

	startRow := startAfter + 1
	if startRow < 4 {
		startRow = 4
	}
	last := startRow - 1
	rows, _, err := sess.Dims(sheet)
	if err != nil {
		return 0, err
	}
	if rows > config.MaxScanRows {
		rows = config.MaxScanRows
	}
	for r := startRow; r <= rows; r++ {
		v := strings.TrimSpace(sess.CellString(sheet, r, col))
		if v == "" {
			continue
		}
		dt, ok := order.ParseDate(v)
		if !ok {
			continue
		}
		last = r
		if hasShip && !dt.Before(ship) {
			return r, nil
		}
	}
	return last + 1, nil
}

// noteCol locates the remark column when the header scan missed it, probing
// the usual spots against nearby header text.
func noteCol(sess sheets.Session, sheet string, row, maxCol int) int {
	for _, c := range []int{23, 22, 26} {
		if c > maxCol {
			continue
		}
		lo := row - 10
		if lo < 2 {
			lo = 2
		}
		for r := lo; r < row; r++ {
			v := sess.CellString(sheet, r, c)
			if strings.Contains(v, "日期码") || strings.Contains(v, "Remark") {
				return c
			}
		}
	}
	return 23
}

// verifyRow reports the mandatory fields still blank after the insert.
var mandatoryFields = []struct {
	field columns.Field
	label string
}{
	{columns.Items, "货号(ITEM#)"},
	{columns.ProductName, "中文名/货名"},
	{columns.Qty, "PO数量"},
	{columns.InnerBox, "内箱装箱数"},
	{columns.OuterBox, "外箱装箱数"},
	{columns.ShipDate, "出货日期/走货日期"},
	{columns.Customer, "客户名"},
	{columns.Destination, "国家"},
	{columns.PONumber, "PO号"},
}

func verifyRow(sess sheets.Session, sheet string, row int, dcols map[columns.Field]int) []string {
	var warns []string
	for _, mf := range mandatoryFields {
		c, ok := dcols[mf.field]
		if !ok {
			warns = append(warns, mf.label+"列未检测到")
			continue
		}
		if strings.TrimSpace(sess.CellString(sheet, row, c)) == "" && sess.CellFormula(sheet, row, c) == "" {
			warns = append(warns, mf.label+"为空(col="+strconv.Itoa(c)+")")
		}
	}
	return warns
}

// detectSessionCols feeds the header rows of a live session through the
// column detector.
func detectSessionCols(sess sheets.Session, sheet string, maxCol int) map[columns.Field]int {
	rows := make([][]string, 0, 5)
	for r := 1; r <= 5; r++ {
		row := make([]string, maxCol)
		for c := 1; c <= maxCol; c++ {
			row[c-1] = sess.CellString(sheet, r, c)
		}
		rows = append(rows, row)
	}
	return columns.Detect(rows)
}

func colOr(dcols map[columns.Field]int, f columns.Field, fallback int) int {
	if c := dcols[f]; c > 0 {
		return c
	}
	return fallback
}

func colNumber(letters string) int {
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0
		}
		n = n*26 + int(r-'A') + 1
	}
	return n
}

// typedValue converts a cell string to the value type Excel expects:
// integers and floats stay numeric, everything else is text.
func typedValue(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// intOrString narrows numeric customer POs to integers so Excel does not
// render them with a decimal tail.
func intOrString(s string) interface{} {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return s
}
