// Package diffengine reconciles a parsed order against the schedule rows
// already on file and emits the new/modify actions needed to close the gap.
// Orders flagged as cancellations instead cancel every row found under
// their PO.
package diffengine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ScheduleSync/api/schedule/order"
	"ScheduleSync/internal/sheets"
)

// Finder resolves where a new order line should be inserted.
type Finder interface {
	AutoFind(sku string) *order.ScheduleRef
}

// PriceTolerance is the unit-price equality band. Schedule cells routinely
// round to three decimals.
var PriceTolerance = decimal.NewFromFloat(0.001)

var (
	matchCols    = []string{"F", "G", "H", "D", "E", "I", "J"}
	qtyCols      = []string{"I", "J", "K", "L"}
	shipCols     = []string{"M", "N", "O", "P"}
	cpoCheckCols = []string{"D", "E", "F", "G"}
	cpoWriteCols = []string{"E", "F"}

	poLinePat  = regexp.MustCompile(`^\d{7,}-\d+$`)
	decimalPat = regexp.MustCompile(`^\d+\.\d+$`)
)

// priceColumns are R through AF, where the unit price wanders between
// schedule layouts.
func priceColumns() []string {
	cols := make([]string, 0, 15)
	for c := 18; c <= 32; c++ {
		cols = append(cols, sheets.ColLetter(c))
	}
	return cols
}

// Diff matches order lines to existing rows and derives actions:
//
//   - a cancel-flagged order cancels every row on file under its PO;
//   - a row matching a line of the same PO gets a modify action when
//     quantity, price, ship date or customer PO actually changed;
//   - a row matching a line under a different PO marks the line as present
//     and produces nothing;
//   - lines matched by no row become new actions with an auto-located
//     insertion reference.
//
// Rows matching nothing are left alone.
func Diff(ord *order.Order, existing []order.Record, finder Finder) []order.Action {
	var actions []order.Action
	po := strings.TrimSpace(ord.PONumber)

	if ord.IsCancel {
		return cancelActions(po, existing)
	}

	newByCode := map[string]*order.OrderLine{}
	newByPOLine := map[string]*order.OrderLine{}
	for i := range ord.Lines {
		ln := &ord.Lines[i]
		if code := order.ItemCode(ln.SKU); code != "" {
			newByCode[code] = ln
		}
		if code := order.ItemCode(ln.ItemCode); code != "" {
			if _, dup := newByCode[code]; !dup {
				newByCode[code] = ln
			}
		}
		if po != "" && ln.LineNo != "" {
			newByPOLine[po+"-"+ln.LineNo] = ln
		}
	}

	matchedCodes := map[string]bool{}
	matchedPOLines := map[string]bool{}

	for i := range existing {
		rec := &existing[i]
		matched, matchCode := matchRecord(rec.Data, newByCode, newByPOLine, matchedPOLines)
		if matched == nil {
			continue
		}
		if matchCode != "" {
			matchedCodes[matchCode] = true
		}

		recPO := strings.TrimSpace(rec.Data["D"])
		samePO := po != "" && recPO != "" &&
			(strings.Contains(recPO, po) || strings.Contains(po, recPO))
		if !samePO {
			// The code exists under another PO. Present, not ours to touch.
			continue
		}

		changes := detectChanges(rec.Data, ord, matched, po)
		if len(changes) > 0 {
			actions = append(actions, order.Action{
				Type:    order.ActionModify,
				Record:  rec,
				Changes: changes,
				SKU:     matched.SKU,
				Detail:  modifyDetail(matched.SKU, changes),
			})
		}
	}

	for i := range ord.Lines {
		ln := &ord.Lines[i]
		code := order.ItemCode(ln.SKU)
		poLine := ""
		if po != "" && ln.LineNo != "" {
			poLine = po + "-" + ln.LineNo
		}
		if (code != "" && matchedCodes[code]) || (poLine != "" && matchedPOLines[poLine]) {
			continue
		}
		var sched *order.ScheduleRef
		if finder != nil {
			key := ln.SkuSpec
			if key == "" {
				key = ln.ItemCode
			}
			if key == "" {
				key = ln.SKU
			}
			sched = finder.AutoFind(key)
		}
		actions = append(actions, order.Action{
			Type:     order.ActionNew,
			Line:     ln,
			Schedule: sched,
			SKU:      ln.SKU,
			Detail:   fmt.Sprintf("新增 %s %dpcs", ln.SKU, ln.Qty),
		})
	}
	return actions
}

// cancelActions turns every record still on file under the PO into a cancel
// action. Records carrying a different PO are left alone.
func cancelActions(po string, existing []order.Record) []order.Action {
	var actions []order.Action
	for i := range existing {
		rec := &existing[i]
		recPO := strings.TrimSpace(rec.Data["D"])
		if po != "" && recPO != "" &&
			!strings.Contains(recPO, po) && !strings.Contains(po, recPO) {
			continue
		}
		sku := strings.TrimSpace(rec.Data["F"])
		if sku == "" {
			sku = strings.TrimSpace(rec.Data["G"])
		}
		actions = append(actions, order.Action{
			Type:   order.ActionCancel,
			Record: rec,
			SKU:    sku,
			Detail: fmt.Sprintf("取消 %s 行%d", strings.TrimSpace(rec.Data["F"]), rec.Row),
		})
	}
	return actions
}

// matchRecord walks the candidate columns for a PO-line key first, then a
// base item code.
func matchRecord(rd map[string]string, byCode, byPOLine map[string]*order.OrderLine,
	matchedPOLines map[string]bool) (*order.OrderLine, string) {
	for _, col := range matchCols {
		vs := strings.TrimSpace(rd[col])
		if vs == "" {
			continue
		}
		if ln, ok := byPOLine[vs]; ok {
			matchedPOLines[vs] = true
			return ln, order.ItemCode(ln.SKU)
		}
		if code := order.ItemCode(vs); code != "" {
			if ln, ok := byCode[code]; ok {
				return ln, code
			}
		}
	}
	return nil, ""
}

func detectChanges(rd map[string]string, ord *order.Order, ln *order.OrderLine, po string) map[string]string {
	changes := map[string]string{}

	// Quantity: the first positive integer among I..L is the live qty cell.
	if ln.Qty > 0 {
		for _, c := range qtyCols {
			ov, ok := cellInt(rd[c])
			if !ok || ov <= 0 {
				continue
			}
			if ov != ln.Qty {
				changes[c] = strconv.Itoa(ln.Qty)
			}
			break
		}
	}

	// Unit price: the first fractional value in (0, 100) among R..AF.
	if ln.Price > 0 {
		newPrice := decimal.NewFromFloat(ln.Price)
		for _, c := range priceColumns() {
			ov, err := decimal.NewFromString(strings.TrimSpace(rd[c]))
			if err != nil {
				continue
			}
			if ov.IsPositive() && ov.LessThan(decimal.NewFromInt(100)) {
				if ov.Sub(newPrice).Abs().GreaterThan(PriceTolerance) {
					changes[c] = newPrice.String()
				}
				break
			}
		}
	}

	// Ship date: the first date-shaped cell among M..P.
	if newShip := order.NormalizeDate(ord.ShipDate); newShip != "" && ord.ShipDate != "" {
		for _, c := range shipCols {
			vs := strings.TrimSpace(rd[c])
			if vs == "" {
				continue
			}
			if _, ok := order.ParseDate(vs); !ok {
				continue
			}
			if order.NormalizeDate(vs) != newShip {
				changes[c] = newShip
			}
			break
		}
	}

	// Customer PO: any of D..G already holding the value means unchanged.
	// Pure decimals are CBM-style measures, never customer POs.
	newCPO := strings.TrimSpace(ln.CustomerPO)
	if newCPO != "" && !decimalPat.MatchString(newCPO) {
		present := false
		for _, c := range cpoCheckCols {
			if strings.TrimSpace(rd[c]) == newCPO {
				present = true
				break
			}
		}
		if !present {
			for _, c := range cpoWriteCols {
				ov := strings.TrimSpace(rd[c])
				if ov == "" {
					continue
				}
				// PO-line composites and PO-bearing cells are the SKU or PO
				// column in disguise, never overwrite those.
				if poLinePat.MatchString(ov) {
					continue
				}
				if po != "" && strings.Contains(ov, po) {
					continue
				}
				if ov != newCPO {
					changes[c] = newCPO
				}
				break
			}
		}
	}
	return changes
}

func cellInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

func modifyDetail(sku string, changes map[string]string) string {
	cols := make([]string, 0, len(changes))
	for c := range changes {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool {
		if len(cols[i]) != len(cols[j]) {
			return len(cols[i]) < len(cols[j])
		}
		return cols[i] < cols[j]
	})
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c+":"+changes[c])
	}
	return fmt.Sprintf("修改 %s %s", sku, strings.Join(parts, ", "))
}
