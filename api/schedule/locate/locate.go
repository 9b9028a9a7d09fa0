// Package locate finds where an order line lives in the schedule corpus:
// which workbook, which sheet, which row. Resolution is staged from the
// explicit SKU mapping down to a corpus-wide content search.
package locate

import (
	"log"
	"path/filepath"
	"sort"
	"strings"

	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/order"
	"ScheduleSync/api/schedule/skumap"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/sheets"
)

// Locator searches the schedule corpus.
type Locator struct {
	Corpus  *corpus.Corpus
	Mapping *skumap.Store
}

func New(c *corpus.Corpus, m *skumap.Store) *Locator {
	return &Locator{Corpus: c, Mapping: m}
}

// AutoFind resolves the schedule reference for one SKU. Stages:
//
//  1. mapping table keywords (with optional sheet hint),
//  2. file names containing the SKU's digits, preferring files that carry
//     the SKU's embedded year, relaxing the year when that finds nothing,
//  3. full corpus content search.
//
// Returns nil when no schedule file mentions the SKU at all.
func (l *Locator) AutoFind(sku string) *order.ScheduleRef {
	num := order.SkuKey(sku)
	skuUpper := order.AlnumUpper(sku)
	item := order.ItemCode(sku)
	spec := order.SkuSpec(sku)
	itemDigits := order.LeadingDigits(item)

	keywords, sheetHint := l.Mapping.Lookup(skumap.LookupKeys(sku))
	if len(keywords) > 0 {
		if ref := l.findByKeywords(keywords, sheetHint, num, skuUpper, item, spec); ref != nil {
			return ref
		}
	}

	candidates := map[string]bool{}
	if len(num) >= 4 {
		candidates[num] = true
	}
	if len(itemDigits) >= 4 {
		candidates[itemDigits] = true
	}
	skuYear := order.EmbeddedYear(sku)

	if len(candidates) > 0 {
		if best := l.findByFileName(candidates, skuYear, num, skuUpper, item, spec); best != nil {
			return best
		}
		if skuYear != "" {
			// Year filter found nothing, retry without it.
			if best := l.findByFileName(candidates, "", num, skuUpper, item, spec); best != nil {
				return best
			}
		}
	}

	log.Printf("[locate] sku %s: name stages missed, scanning whole corpus", sku)
	var best *order.ScheduleRef
	for _, fp := range l.Corpus.ListFiles() {
		fn := filepath.Base(fp)
		if corpus.IsMasterFile(fn) || corpus.IsTemplateFile(fn) {
			continue
		}
		if ref := l.searchSKUInFile(fp, fn, item, spec, ""); ref != nil {
			if best == nil || ref.Count > best.Count {
				best = ref
			}
		}
	}
	if best == nil {
		log.Printf("[locate] sku %s (key=%s item=%s spec=%s) matched no schedule file", sku, num, item, spec)
	}
	return best
}

func (l *Locator) findByKeywords(keywords []string, sheetHint, num, skuUpper, item, spec string) *order.ScheduleRef {
	type cand struct {
		fp, fn string
	}
	var matched []cand
	for _, fp := range l.Corpus.ListFiles() {
		fn := filepath.Base(fp)
		if corpus.IsMasterFile(fn) || corpus.IsTemplateFile(fn) {
			continue
		}
		if sheetHint != "" && corpus.InLegacyDir(fp) {
			continue
		}
		hit := false
		for _, kw := range keywords {
			if strings.Contains(fn, kw) {
				hit = true
				break
			}
		}
		if hit {
			matched = append(matched, cand{fp, fn})
		}
	}
	if sheetHint != "" {
		// Production schedules first when a sheet hint narrows the target.
		sort.SliceStable(matched, func(i, j int) bool {
			pi, pj := 1, 1
			if corpus.HasScheduleMark(matched[i].fn) {
				pi = 0
			}
			if corpus.HasScheduleMark(matched[j].fn) {
				pj = 0
			}
			if pi != pj {
				return pi < pj
			}
			return matched[i].fn < matched[j].fn
		})
	}
	for _, c := range matched {
		if ref := l.searchSKUInFile(c.fp, c.fn, item, spec, sheetHint); ref != nil {
			return ref
		}
	}
	return nil
}

func (l *Locator) findByFileName(candidates map[string]bool, skuYear, num, skuUpper, item, spec string) *order.ScheduleRef {
	var best *order.ScheduleRef
	for _, fp := range l.Corpus.ListFiles() {
		fn := filepath.Base(fp)
		if corpus.IsMasterFile(fn) || corpus.IsTemplateFile(fn) {
			continue
		}
		hit := false
		for c := range candidates {
			if strings.Contains(fn, c) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		if skuYear != "" && !strings.Contains(fn, skuYear) {
			continue
		}
		if ref := l.searchSKUInFile(fp, fn, item, spec, ""); ref != nil {
			if best == nil || ref.Count > best.Count {
				best = ref
			}
		}
	}
	return best
}

// itemCols are the columns a product code may live in, in search order:
// the ITEM# column first, then its neighbors. PO columns D and E are never
// searched here, substrings of long PO numbers shadow real codes.
var itemCols = []int{7, 6, 8}

const nameCol = 8

// searchSKUInFile scans one workbook for the item code. Match tiers, best
// first: full spec code, exact base code, prefix overlap with a length
// difference of at most three. A tier hit with a product name in column H
// outranks one without; ties within the winning tier resolve by match
// count across sheets.
//
// With a sheet hint the search is restricted to sheets matching the hint
// (exact, then mutual containment, then the hint's leading digits); a hint
// that matches no sheet skips the whole file.
func (l *Locator) searchSKUInFile(fp, fn, item, spec, sheetHint string) *order.ScheduleRef {
	snap, err := sheets.OpenSnapshot(fp)
	if err != nil {
		log.Printf("[locate] cannot open %s: %v", fn, err)
		return nil
	}

	searchSheets := snap.Sheets()
	hinted := map[string]bool{}
	if sheetHint != "" {
		matched := matchSheetHint(snap.Sheets(), sheetHint)
		if len(matched) == 0 {
			log.Printf("[locate] %s has no sheet matching hint %q, skipping file", fn, sheetHint)
			return nil
		}
		searchSheets = matched
		for _, sn := range matched {
			hinted[sn] = true
		}
	}

	var best *order.ScheduleRef
	for _, sn := range searchSheets {
		if !corpus.SearchableSheet(sn) {
			continue
		}
		rows := snap.Rows(sn)
		maxCol := 0
		for _, r := range rows {
			if len(r) > maxCol {
				maxCol = len(r)
			}
		}
		if maxCol == 0 {
			maxCol = 30
		}

		var refSpecNamed, refSpecAny, refExactNamed, refExactAny, refPrefixNamed, refPrefixAny int
		var cntSpec, cntExact, cntPrefix int
		lastDataRow := 0

		for i := 1; i < len(rows); i++ {
			row := rows[i]
			rowNum := i + 1
			for c := 0; c < 8 && c < len(row); c++ {
				if strings.TrimSpace(row[c]) != "" {
					lastDataRow = rowNum
					break
				}
			}
			for _, ci := range itemCols {
				if ci > len(row) {
					continue
				}
				cv := strings.TrimSpace(row[ci-1])
				if cv == "" {
					continue
				}
				cvItem := order.ItemCode(cv)
				if cvItem == "" {
					continue
				}
				hasName := len(row) >= nameCol && strings.TrimSpace(row[nameCol-1]) != ""
				cvSpec := order.SkuSpec(cv)
				switch {
				case spec != "" && cvSpec == spec:
					refSpecAny = rowNum
					cntSpec++
					if hasName {
						refSpecNamed = rowNum
					}
				case item != "" && cvItem == item:
					refExactAny = rowNum
					cntExact++
					if hasName {
						refExactNamed = rowNum
					}
				case item != "" && prefixMatch(cvItem, item):
					refPrefixAny = rowNum
					cntPrefix++
					if hasName {
						refPrefixNamed = rowNum
					}
				default:
					continue
				}
				break
			}
		}

		ref := firstNonZero(refSpecNamed, refSpecAny, refExactNamed, refExactAny, refPrefixNamed, refPrefixAny)
		cnt := firstNonZero(cntSpec, cntExact, cntPrefix)
		switch {
		case ref != 0:
			if refSpecNamed == 0 && refSpecAny == 0 && spec != "" && item != "" {
				log.Printf("[locate] %s/%s matched base code only (item=%s, spec=%s)", fn, sn, item, spec)
			}
			if best == nil || cnt > best.Count {
				best = &order.ScheduleRef{File: fp, FileName: fn, Sheet: sn, Ref: ref, Count: cnt, MaxCol: maxCol}
			}
		case hinted[sn] && lastDataRow > 0:
			// Hinted sheet without a code hit: append after the last row.
			log.Printf("[locate] %s/%s no code match, using last data row %d", fn, sn, lastDataRow)
			best = &order.ScheduleRef{File: fp, FileName: fn, Sheet: sn, Ref: lastDataRow, Count: 1, MaxCol: maxCol}
		}
	}
	return best
}

func matchSheetHint(names []string, hint string) []string {
	var matched []string
	for _, sn := range names {
		if sn == hint {
			matched = append(matched, sn)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	for _, sn := range names {
		if strings.Contains(sn, hint) || strings.Contains(hint, sn) {
			matched = append(matched, sn)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if digits := order.LeadingDigits(hint); digits != "" {
		for _, sn := range names {
			if strings.Contains(sn, digits) && corpus.SearchableSheet(sn) {
				matched = append(matched, sn)
			}
		}
	}
	return matched
}

func prefixMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > config.PrefixLenDiff {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
