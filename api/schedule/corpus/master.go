package corpus

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"ScheduleSync/api/schedule/order"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/sheets"
)

var ErrNoMaster = errors.New("master schedule not found under corpus root")

// headerAliases maps per-file header spellings to the master schedule's
// canonical column names.
var headerAliases = map[string]string{
	"ZURU PO NO#": "PO号",
	"PO NO.":      "PO号",
	"PO NUMBER":   "PO号",
	"SKU":         "系统货号",
	"ITEM CODE":   "系统货号",
	"ITEM#":       "货号#",
	"ITEM NO.":    "货号#",
	"货品名称":        "中文名",
	"品名":          "中文名",
	"出货日期":        "预计船期",
	"船期":          "预计船期",
	"走货日期":        "预计船期",
	"验货日期":        "预计验货日期",
}

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// readHeaders scans the top rows of a sheet and returns header text keyed by
// column letter. The first row that yields five or more headers wins.
func readHeaders(sess sheets.Session, sheet string) map[string]string {
	headers := map[string]string{}
	for r := 1; r <= 4; r++ {
		for col := 1; col <= yellowScanMaxCols; col++ {
			v := strings.TrimSpace(sess.CellString(sheet, r, col))
			if v == "" {
				continue
			}
			cl := sheets.ColLetter(col)
			if _, taken := headers[cl]; !taken {
				headers[cl] = v
			}
		}
		if len(headers) >= 5 {
			break
		}
	}
	return headers
}

// buildColumnMapping maps source columns to master columns by exact header
// match, then alias, then mutual containment. Each master column is consumed
// at most once.
func buildColumnMapping(src, dst map[string]string) map[string]string {
	dstByName := map[string]string{}
	for col, name := range dst {
		if _, dup := dstByName[name]; !dup {
			dstByName[name] = col
		}
	}
	used := map[string]bool{}
	mapping := map[string]string{}

	for srcCol, srcName := range src {
		sn := strings.TrimSpace(srcName)
		if dc, ok := dstByName[sn]; ok && !used[dc] {
			mapping[srcCol] = dc
			used[dc] = true
			continue
		}
		if target := headerAliases[sn]; target != "" {
			if dc, ok := dstByName[target]; ok && !used[dc] {
				mapping[srcCol] = dc
				used[dc] = true
				continue
			}
		}
		for dn, dc := range dstByName {
			if used[dc] {
				continue
			}
			if strings.Contains(sn, dn) || strings.Contains(dn, sn) {
				mapping[srcCol] = dc
				used[dc] = true
				break
			}
		}
	}
	return mapping
}

// CopyToMaster appends the given yellow rows to the master schedule,
// remapping columns through header names and keeping the yellow mark on the
// inserted rows. A nil slice triggers a fresh corpus scan.
func (c *Corpus) CopyToMaster(yellowRows []order.Record) (copied int, masterName string, err error) {
	masterFp := c.FindMaster()
	if masterFp == "" {
		return 0, "", ErrNoMaster
	}
	release, err := AcquireFile(masterFp)
	if err != nil {
		return 0, "", err
	}
	defer release()
	if !Writable(masterFp) {
		return 0, "", fmt.Errorf("master schedule %s is locked or read only", masterFp)
	}
	if yellowRows == nil {
		yellowRows = c.ScanYellowRows(true, nil)
	}
	if len(yellowRows) == 0 {
		return 0, "", errors.New("no yellow rows to promote")
	}

	sess, err := sheets.Open(masterFp)
	if err != nil {
		return 0, "", err
	}
	defer sess.Close()

	masterSheet := sess.Sheets()[0]
	masterHeaders := readHeaders(sess, masterSheet)
	if len(masterHeaders) == 0 {
		return 0, "", errors.New("master schedule has no readable header row")
	}
	maxCol := 20
	for cl := range masterHeaders {
		if n := colNumber(cl); n > maxCol {
			maxCol = n
		}
	}

	lastRow, _, err := sess.Dims(masterSheet)
	if err != nil || lastRow < 2 {
		lastRow = 2
	}
	insertRow := lastRow + 1

	colMaps := map[string]map[string]string{}

	for _, yr := range yellowRows {
		key := yr.File + "|" + yr.Sheet
		colMap, ok := colMaps[key]
		if !ok {
			hdrs, herr := readSourceHeaders(yr.File, yr.Sheet)
			if herr != nil {
				continue
			}
			colMap = buildColumnMapping(hdrs, masterHeaders)
			colMaps[key] = colMap
		}

		hasData := false
		for srcCol, value := range yr.Data {
			if value == "" {
				continue
			}
			dstCol, mapped := colMap[srcCol]
			if !mapped {
				continue
			}
			dstNum := colNumber(dstCol)
			if isoDatePrefix.MatchString(value) {
				if t, terr := time.Parse(config.ISODateLayout, value[:10]); terr == nil {
					sess.SetCellDate(masterSheet, insertRow, dstNum, t)
				} else {
					sess.SetCell(masterSheet, insertRow, dstNum, value)
				}
			} else {
				sess.SetCell(masterSheet, insertRow, dstNum, value)
			}
			hasData = true
		}
		if hasData {
			sess.MarkRow(masterSheet, insertRow, maxCol, config.YellowFillRGB, config.DefaultFontRGB)
			insertRow++
			copied++
		}
	}
	if err := sess.Save(); err != nil {
		return 0, "", err
	}
	return copied, masterFp, nil
}

func readSourceHeaders(path, sheet string) (map[string]string, error) {
	sess, err := sheets.Open(path)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	if !sess.HasSheet(sheet) {
		return nil, sheets.ErrNoSheet
	}
	return readHeaders(sess, sheet), nil
}

// ClearMasterYellow removes the yellow fill from the master schedule's
// promoted rows once the editors have processed them.
func (c *Corpus) ClearMasterYellow() (cleared int, err error) {
	masterFp := c.FindMaster()
	if masterFp == "" {
		return 0, ErrNoMaster
	}
	release, err := AcquireFile(masterFp)
	if err != nil {
		return 0, err
	}
	defer release()
	if !Writable(masterFp) {
		return 0, fmt.Errorf("master schedule %s is locked or read only", masterFp)
	}
	sess, err := sheets.Open(masterFp)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	masterSheet := sess.Sheets()[0]
	lastRow, lastCol, err := sess.Dims(masterSheet)
	if err != nil {
		lastRow, lastCol = 100, 30
	}
	if lastCol > 100 {
		lastCol = 100
	}
	for r := 2; r <= lastRow; r++ {
		fill, ferr := sess.FillRGB(masterSheet, r, 1)
		if ferr != nil || !sheets.IsYellowRGB(fill) {
			continue
		}
		if err := sess.ClearRowFill(masterSheet, r, lastCol); err == nil {
			cleared++
		}
	}
	if err := sess.Save(); err != nil {
		return 0, err
	}
	return cleared, nil
}

// ManualFindRef picks the last data row of a sheet as an insertion reference
// when the automatic locator could not resolve one.
func ManualFindRef(path, sheet string) (order.ScheduleRef, error) {
	snap, err := sheets.OpenSnapshot(path)
	if err != nil {
		return order.ScheduleRef{}, err
	}
	rows := snap.Rows(sheet)
	if rows == nil {
		return order.ScheduleRef{}, sheets.ErrNoSheet
	}
	ref := 2
	for i, row := range rows {
		if i == 0 {
			continue
		}
		limit := 6
		if len(row) < limit {
			limit = len(row)
		}
		for col := 0; col < limit; col++ {
			if strings.TrimSpace(row[col]) != "" {
				ref = i + 1
				break
			}
		}
	}
	return order.ScheduleRef{
		File: path, FileName: baseName(path), Sheet: sheet,
		Ref: ref, Count: 0, MaxCol: 30,
	}, nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func colNumber(letters string) int {
	n := 0
	for _, r := range letters {
		if r < 'A' || r > 'Z' {
			continue
		}
		n = n*26 + int(r-'A') + 1
	}
	return n
}
