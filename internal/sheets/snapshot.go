package sheets

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// Snapshot is a read-only view of a workbook taken in one pass: the search
// paths scan many files concurrently and must never hold file handles open
// across worker boundaries.
type Snapshot struct {
	path   string
	sheets []string
	rows   map[string][][]string
}

func (s *Snapshot) Path() string     { return s.path }
func (s *Snapshot) Sheets() []string { return s.sheets }

// Rows returns the sheet's cells as formatted strings, row-major, 0-based.
func (s *Snapshot) Rows(sheet string) [][]string {
	return s.rows[sheet]
}

// OpenSnapshot reads a whole workbook into memory. Legacy .xls files are
// supported on the read path only.
func OpenSnapshot(path string) (*Snapshot, error) {
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		return openXLSSnapshot(path)
	}
	return openXLSXSnapshot(path)
}

// SheetNames lists a workbook's sheets without reading cell data.
func SheetNames(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		snap, err := openXLSSnapshot(path)
		if err != nil {
			return nil, err
		}
		return snap.Sheets(), nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func openXLSXSnapshot(path string) (*Snapshot, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	snap := &Snapshot{path: path, rows: map[string][][]string{}}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			// Fast bulk read failed for this sheet; retry cell by cell
			// before giving up on the file.
			rows, err = slowRows(f, name)
			if err != nil {
				return nil, fmt.Errorf("read sheet %s of %s: %w", name, path, err)
			}
		}
		snap.sheets = append(snap.sheets, name)
		snap.rows[name] = rows
	}
	return snap, nil
}

// slowRows reads a sheet value by value. Some hand-maintained workbooks
// carry structures the streaming reader chokes on; the random-access path
// usually still works.
func slowRows(f *excelize.File, sheet string) ([][]string, error) {
	dim, err := f.GetSheetDimension(sheet)
	if err != nil {
		return nil, err
	}
	_, maxRow, maxCol := parseDimension(dim)
	if maxRow == 0 {
		return nil, nil
	}
	rows := make([][]string, 0, maxRow)
	for r := 1; r <= maxRow; r++ {
		row := make([]string, maxCol)
		for c := 1; c <= maxCol; c++ {
			v, err := f.GetCellValue(sheet, cellName(c, r))
			if err != nil {
				continue
			}
			row[c-1] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseDimension decodes an xlsx dimension ref like "A1:AD58".
func parseDimension(dim string) (ok bool, maxRow, maxCol int) {
	parts := strings.Split(dim, ":")
	last := parts[len(parts)-1]
	col, row, err := excelize.CellNameToCoordinates(last)
	if err != nil {
		return false, 0, 0
	}
	return true, row, col
}

func openXLSSnapshot(path string) (*Snapshot, error) {
	book, err := xls.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xls snapshot %s: %w", path, err)
	}
	sheet, err := book.GetSheet(0)
	if err != nil || sheet == nil {
		return nil, fmt.Errorf("xls %s has no readable sheet", path)
	}
	var rows [][]string
	for _, xr := range sheet.GetRows() {
		var row []string
		for _, c := range xr.GetCols() {
			row = append(row, c.GetString())
		}
		rows = append(rows, row)
	}
	// The legacy reader only exposes the first sheet reliably; schedules
	// in .xls form are single-sheet exports.
	name := "Sheet1"
	return &Snapshot{path: path, sheets: []string{name}, rows: map[string][][]string{name: rows}}, nil
}
