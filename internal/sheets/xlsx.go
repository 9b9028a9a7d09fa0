package sheets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// xlsxSession implements Session on top of excelize.
type xlsxSession struct {
	f    *excelize.File
	path string
}

// Open opens an .xlsx workbook for read-modify-write.
func Open(path string) (Session, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return &xlsxSession{f: f, path: path}, nil
}

func (s *xlsxSession) Path() string { return s.path }

func (s *xlsxSession) Sheets() []string { return s.f.GetSheetList() }

func (s *xlsxSession) HasSheet(name string) bool {
	idx, err := s.f.GetSheetIndex(name)
	return err == nil && idx >= 0
}

func (s *xlsxSession) EnsureSheet(name string) error {
	if s.HasSheet(name) {
		return nil
	}
	_, err := s.f.NewSheet(name)
	return err
}

func (s *xlsxSession) Dims(sheet string) (int, int, error) {
	if !s.HasSheet(sheet) {
		return 0, 0, ErrNoSheet
	}
	rows, err := s.f.GetRows(sheet)
	if err != nil {
		return 0, 0, err
	}
	maxCol := 0
	for _, r := range rows {
		if len(r) > maxCol {
			maxCol = len(r)
		}
	}
	return len(rows), maxCol, nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// ColLetter converts a 1-based column number to its A1 letter form.
func ColLetter(col int) string {
	name, _ := excelize.ColumnNumberToName(col)
	return name
}

func (s *xlsxSession) CellString(sheet string, row, col int) string {
	v, _ := s.f.GetCellValue(sheet, cellName(col, row))
	return v
}

func (s *xlsxSession) CellFormula(sheet string, row, col int) string {
	v, _ := s.f.GetCellFormula(sheet, cellName(col, row))
	return v
}

func (s *xlsxSession) SetCell(sheet string, row, col int, v interface{}) error {
	return s.f.SetCellValue(sheet, cellName(col, row), v)
}

func (s *xlsxSession) SetCellDate(sheet string, row, col int, t time.Time) error {
	// excelize keeps an existing date number format and falls back to a
	// default one, so writing the time value is enough.
	return s.f.SetCellValue(sheet, cellName(col, row), t)
}

func (s *xlsxSession) SetCellFormula(sheet string, row, col int, formula string) error {
	return s.f.SetCellFormula(sheet, cellName(col, row), formula)
}

func (s *xlsxSession) ClearCell(sheet string, row, col int) error {
	return s.f.SetCellValue(sheet, cellName(col, row), nil)
}

func (s *xlsxSession) InsertRow(sheet string, row int) error {
	return s.f.InsertRows(sheet, row, 1)
}

func (s *xlsxSession) DeleteRow(sheet string, row int) error {
	return s.f.RemoveRow(sheet, row)
}

func (s *xlsxSession) CopyRowFormat(sheet string, src, dst, maxCol int) error {
	for c := 1; c <= maxCol; c++ {
		styleID, err := s.f.GetCellStyle(sheet, cellName(c, src))
		if err != nil {
			continue
		}
		if err := s.f.SetCellStyle(sheet, cellName(c, dst), cellName(c, dst), styleID); err != nil {
			return err
		}
	}
	return nil
}

func (s *xlsxSession) CopyRowTo(srcSheet string, srcRow int, dstSheet string, dstRow, maxCol int) error {
	for c := 1; c <= maxCol; c++ {
		src := cellName(c, srcRow)
		dst := cellName(c, dstRow)
		if styleID, err := s.f.GetCellStyle(srcSheet, src); err == nil {
			s.f.SetCellStyle(dstSheet, dst, dst, styleID)
		}
		raw, err := s.f.GetCellValue(srcSheet, src, excelize.Options{RawCellValue: true})
		if err != nil || raw == "" {
			continue
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			if err := s.f.SetCellValue(dstSheet, dst, n); err != nil {
				return err
			}
			continue
		}
		if err := s.f.SetCellValue(dstSheet, dst, raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *xlsxSession) MarkRow(sheet string, row, maxCol int, fillRGB, fontRGB string) error {
	for c := 1; c <= maxCol; c++ {
		cell := cellName(c, row)
		style := s.cellStyle(sheet, cell)
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillRGB}}
		if style.Font == nil {
			style.Font = &excelize.Font{}
		}
		style.Font.Color = fontRGB
		id, err := s.f.NewStyle(style)
		if err != nil {
			return err
		}
		if err := s.f.SetCellStyle(sheet, cell, cell, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *xlsxSession) FillRGB(sheet string, row, col int) (string, error) {
	cell := cellName(col, row)
	id, err := s.f.GetCellStyle(sheet, cell)
	if err != nil {
		return "", err
	}
	style, err := s.f.GetStyle(id)
	if err != nil || style == nil {
		return "", err
	}
	if style.Fill.Type != "pattern" || style.Fill.Pattern == 0 || len(style.Fill.Color) == 0 {
		return "", nil
	}
	return normalizeRGB(style.Fill.Color[0]), nil
}

func (s *xlsxSession) ClearRowFill(sheet string, row, maxCol int) error {
	for c := 1; c <= maxCol; c++ {
		cell := cellName(c, row)
		style := s.cellStyle(sheet, cell)
		style.Fill = excelize.Fill{}
		id, err := s.f.NewStyle(style)
		if err != nil {
			return err
		}
		if err := s.f.SetCellStyle(sheet, cell, cell, id); err != nil {
			return err
		}
	}
	return nil
}

// cellStyle returns a mutable copy of the cell's style, or a fresh style
// when none is resolvable.
func (s *xlsxSession) cellStyle(sheet, cell string) *excelize.Style {
	if id, err := s.f.GetCellStyle(sheet, cell); err == nil {
		if st, err := s.f.GetStyle(id); err == nil && st != nil {
			return st
		}
	}
	return &excelize.Style{}
}

func (s *xlsxSession) Save() error  { return s.f.Save() }
func (s *xlsxSession) Close() error { return s.f.Close() }

// normalizeRGB strips an ARGB alpha prefix and upper-cases a hex color.
func normalizeRGB(c string) string {
	c = strings.ToUpper(strings.TrimPrefix(c, "#"))
	if len(c) == 8 {
		c = c[2:]
	}
	return c
}

// IsYellowRGB reports whether a fill color reads as a yellow highlight
// (high red, high green, low blue).
func IsYellowRGB(c string) bool {
	c = normalizeRGB(c)
	if len(c) != 6 {
		return false
	}
	r, err1 := strconv.ParseInt(c[0:2], 16, 32)
	g, err2 := strconv.ParseInt(c[2:4], 16, 32)
	b, err3 := strconv.ParseInt(c[4:6], 16, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}
	return r > 200 && g > 180 && b < 100
}

// The leading and trailing groups reject identifier tails and function
// calls like LOG10( or ATAN2(, which would otherwise parse as cell refs.
var cellRefPat = regexp.MustCompile(`([A-Za-z0-9_]?)(\$?[A-Za-z]{1,3})(\$?)(\d+)(\(?)`)

// ShiftFormulaRows rewrites relative row references in a formula by delta,
// so a reference row's formula lands on a new row with its relative
// references intact. Absolute rows ($) are untouched.
func ShiftFormulaRows(formula string, delta int) string {
	if formula == "" || delta == 0 {
		return formula
	}
	return cellRefPat.ReplaceAllStringFunc(formula, func(ref string) string {
		m := cellRefPat.FindStringSubmatch(ref)
		if m[1] != "" || m[5] == "(" || m[3] == "$" {
			return ref
		}
		n, err := strconv.Atoi(m[4])
		if err != nil || n+delta < 1 {
			return ref
		}
		return m[2] + strconv.Itoa(n+delta)
	})
}
