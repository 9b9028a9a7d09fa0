package locate

import (
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/order"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/sheets"
)

const searchMaxCols = 30

// poCols are the columns a PO number lives in (D and E, 1-based).
var poCols = []int{4, 5}

// SearchPO returns every schedule row whose PO columns carry the number,
// by equality, numeric equality or substring.
func (l *Locator) SearchPO(poNumber string) []order.Record {
	res := l.BatchSearchPOs([]string{poNumber})
	return res[strings.TrimSpace(poNumber)]
}

// BatchSearchPOs scans the whole corpus once for a set of PO numbers,
// fanning the per-file work across a fixed worker pool. The result maps
// each input PO to its hits.
func (l *Locator) BatchSearchPOs(poList []string) map[string][]order.Record {
	poSet := map[string]bool{}
	poNumeric := map[int64]string{}
	for _, p := range poList {
		ps := strings.TrimSpace(p)
		if ps == "" {
			continue
		}
		poSet[ps] = true
		if n, err := strconv.ParseInt(ps, 10, 64); err == nil {
			poNumeric[n] = ps
		}
	}
	results := map[string][]order.Record{}
	if len(poSet) == 0 {
		return results
	}
	for p := range poSet {
		results[p] = nil
	}

	var files []string
	for _, fp := range l.Corpus.ListFiles() {
		if !corpus.IsMasterFile(filepath.Base(fp)) {
			files = append(files, fp)
		}
	}

	type hit struct {
		po  string
		rec order.Record
	}
	fileCh := make(chan string)
	hitCh := make(chan hit, 64)

	workers := config.SearchWorkers
	if len(files) < workers {
		workers = len(files)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fp := range fileCh {
				for _, h := range scanFilePOs(fp, poSet, poNumeric) {
					hitCh <- hit{po: h.po, rec: h.rec}
				}
			}
		}()
	}
	go func() {
		for _, fp := range files {
			fileCh <- fp
		}
		close(fileCh)
		wg.Wait()
		close(hitCh)
	}()
	for h := range hitCh {
		results[h.po] = append(results[h.po], h.rec)
	}
	return results
}

type poHit struct {
	po  string
	rec order.Record
}

func scanFilePOs(fp string, poSet map[string]bool, poNumeric map[int64]string) []poHit {
	fn := filepath.Base(fp)
	snap, err := sheets.OpenSnapshot(fp)
	if err != nil {
		log.Printf("[locate] po scan cannot open %s: %v", fn, err)
		return nil
	}
	var hits []poHit
	for _, sn := range snap.Sheets() {
		if corpus.CancelledSheet(sn) || corpus.IsMaterialSheet(sn) {
			continue
		}
		rows := snap.Rows(sn)
		for i := 1; i < len(rows); i++ {
			row := rows[i]
			matched := ""
			for _, ci := range poCols {
				if ci > len(row) {
					continue
				}
				vs := strings.TrimSpace(row[ci-1])
				if vs == "" {
					continue
				}
				if poSet[vs] {
					matched = vs
					break
				}
				if n, err := strconv.ParseInt(vs, 10, 64); err == nil {
					if ps, ok := poNumeric[n]; ok {
						matched = ps
						break
					}
				}
				for ps := range poSet {
					if strings.Contains(vs, ps) {
						matched = ps
						break
					}
				}
				if matched != "" {
					break
				}
			}
			if matched != "" {
				hits = append(hits, poHit{po: matched, rec: rowRecord(fp, fn, sn, i+1, row, "")})
			}
		}
	}
	return hits
}

// SearchBySKUs finds existing schedule rows for order lines whose PO number
// search came up empty: each line's SKU is auto-located, then the located
// sheets are scanned for rows carrying any of the lines' item codes.
func (l *Locator) SearchBySKUs(lines []order.OrderLine) []order.Record {
	codeSet := map[string]bool{}
	for _, ln := range lines {
		for _, v := range []string{ln.SKU, ln.ItemCode} {
			if code := order.ItemCode(v); code != "" {
				codeSet[code] = true
			}
		}
	}
	if len(codeSet) == 0 {
		return nil
	}

	targets := map[string]map[string]bool{}
	for _, ln := range lines {
		sku := ln.ItemCode
		if sku == "" {
			sku = ln.SKU
		}
		found := l.AutoFind(sku)
		if found == nil {
			continue
		}
		if targets[found.File] == nil {
			targets[found.File] = map[string]bool{}
		}
		targets[found.File][found.Sheet] = true
	}

	var results []order.Record
	for fp, sheetSet := range targets {
		fn := filepath.Base(fp)
		if corpus.IsMasterFile(fn) {
			continue
		}
		snap, err := sheets.OpenSnapshot(fp)
		if err != nil {
			continue
		}
		for sn := range sheetSet {
			if corpus.CancelledSheet(sn) || corpus.IsMaterialSheet(sn) {
				continue
			}
			rows := snap.Rows(sn)
			for i := 1; i < len(rows); i++ {
				row := rows[i]
				hit := false
				for c := 0; c < 10 && c < len(row); c++ {
					if code := order.ItemCode(row[c]); code != "" && codeSet[code] {
						hit = true
						break
					}
				}
				if hit {
					results = append(results, rowRecord(fp, fn, sn, i+1, row, ""))
				}
			}
		}
	}
	return results
}

// fuzzyHitCols names the well-known schedule columns for hit reporting.
var fuzzyHitCols = map[int]string{
	1: "接单日期", 2: "客户", 3: "目的地", 4: "PO号",
	5: "客户PO", 6: "SKU", 7: "品名", 9: "数量", 13: "出货日期",
}

// FuzzySearch matches a keyword (PO number, SKU, customer name) against
// the first ten columns of every schedule row, case insensitive, with a
// digits-only fallback for formatted numbers. Capped result set.
func (l *Locator) FuzzySearch(keyword string) []order.Record {
	kw := strings.TrimSpace(keyword)
	kwLower := strings.ToLower(kw)
	kwNum := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, kw)

	var results []order.Record
	for _, fp := range l.Corpus.ListFiles() {
		fn := filepath.Base(fp)
		if corpus.IsMasterFile(fn) {
			continue
		}
		snap, err := sheets.OpenSnapshot(fp)
		if err != nil {
			continue
		}
		for _, sn := range snap.Sheets() {
			if corpus.CancelledSheet(sn) || corpus.IsMaterialSheet(sn) {
				continue
			}
			rows := snap.Rows(sn)
			for i := 1; i < len(rows); i++ {
				row := rows[i]
				hitCol := ""
				hit := false
				for c := 0; c < 10 && c < len(row); c++ {
					cv := row[c]
					if cv == "" {
						continue
					}
					if strings.Contains(strings.ToLower(cv), kwLower) ||
						(len(kwNum) >= 4 && strings.Contains(cv, kwNum)) {
						hit = true
						if name, ok := fuzzyHitCols[c+1]; ok {
							hitCol = name
						} else {
							hitCol = "列" + strconv.Itoa(c+1)
						}
						break
					}
				}
				if hit {
					results = append(results, rowRecord(fp, fn, sn, i+1, row, hitCol))
					if len(results) >= config.FuzzySearchCap {
						return results
					}
				}
			}
		}
	}
	return results
}

// rowRecord packages a matched row, keyed by column letter with date-shaped
// cells normalized to ISO.
func rowRecord(fp, fn, sn string, rowNum int, row []string, hitCol string) order.Record {
	data := map[string]string{}
	limit := searchMaxCols
	if len(row) < limit {
		limit = len(row)
	}
	for c := 0; c < limit; c++ {
		v := strings.TrimSpace(row[c])
		if v == "" {
			continue
		}
		if t, ok := order.ParseDate(v); ok {
			v = t.Format(config.ISODateLayout)
		}
		data[sheets.ColLetter(c+1)] = v
	}
	return order.Record{File: fp, FileName: fn, Sheet: sn, Row: rowNum, Data: data, HitCol: hitCol}
}
