package corpus

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ScheduleSync/api/schedule/order"
	"ScheduleSync/internal/sheets"
)

const (
	yellowScanMaxRows = 2000
	yellowScanMaxCols = 30
)

type yellowEntry struct {
	mtime time.Time
	rows  []order.Record
}

// ScanProgress reports per-file progress of a corpus-wide scan.
type ScanProgress func(done, total int, fname string)

// ScanYellowRows walks every non-master workbook and collects rows whose
// leading cells carry a yellow fill, the editors' mark for rows that still
// need to be promoted to the master schedule. Results per file are cached
// against the file's mtime.
func (c *Corpus) ScanYellowRows(useCache bool, progress ScanProgress) []order.Record {
	var results []order.Record

	var files []string
	for _, fp := range c.ListFiles() {
		if IsMasterFile(filepath.Base(fp)) {
			continue
		}
		if strings.EqualFold(filepath.Ext(fp), ".xls") {
			continue
		}
		files = append(files, fp)
	}

	for idx, fp := range files {
		fn := filepath.Base(fp)
		if progress != nil {
			progress(idx+1, len(files), fn)
		}
		info, err := os.Stat(fp)
		if err != nil {
			continue
		}
		if useCache {
			c.yellowMu.Lock()
			entry, ok := c.yellowCache[fp]
			c.yellowMu.Unlock()
			if ok && entry.mtime.Equal(info.ModTime()) {
				results = append(results, entry.rows...)
				continue
			}
		}

		fileRows, err := scanFileYellow(fp, fn)
		if err != nil {
			log.Printf("[corpus] yellow scan skipped %s: %v", fn, err)
			continue
		}
		c.yellowMu.Lock()
		c.yellowCache[fp] = yellowEntry{mtime: info.ModTime(), rows: fileRows}
		c.yellowMu.Unlock()
		results = append(results, fileRows...)
	}
	return results
}

func scanFileYellow(path, fname string) ([]order.Record, error) {
	sess, err := sheets.Open(path)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	var out []order.Record
	for _, sn := range sess.Sheets() {
		if strings.Contains(sn, cancelMark) || strings.Contains(sn, detailMark) ||
			strings.Contains(sn, mappingMark) || strings.Contains(strings.ToLower(sn), "ma") {
			continue
		}
		rows, _, err := sess.Dims(sn)
		if err != nil {
			continue
		}
		if rows > yellowScanMaxRows+1 {
			rows = yellowScanMaxRows + 1
		}
		for r := 2; r <= rows; r++ {
			firstVal := 0
			for col := 1; col <= 6; col++ {
				if strings.TrimSpace(sess.CellString(sn, r, col)) != "" {
					firstVal = col
					break
				}
			}
			if firstVal == 0 {
				continue
			}
			fill, err := sess.FillRGB(sn, r, firstVal)
			if err != nil || !sheets.IsYellowRGB(fill) {
				if fill, err = sess.FillRGB(sn, r, 1); err != nil || !sheets.IsYellowRGB(fill) {
					continue
				}
			}
			data := map[string]string{}
			for col := 1; col <= yellowScanMaxCols; col++ {
				if v := sess.CellString(sn, r, col); v != "" {
					data[sheets.ColLetter(col)] = v
				}
			}
			out = append(out, order.Record{
				File: path, FileName: fname, Sheet: sn, Row: r, Data: data,
			})
		}
	}
	return out, nil
}
