package sheets

import (
	"errors"
	"time"
)

// Session is the narrow mutation surface over one workbook. The
// reconciliation engine is written against this interface so the concrete
// spreadsheet binding never leaks into locator or diff logic.
type Session interface {
	Path() string
	Sheets() []string
	HasSheet(name string) bool
	// EnsureSheet returns the sheet, creating it after all existing sheets
	// when absent.
	EnsureSheet(name string) error

	// Dims reports the used extent of a sheet (1-based row/col counts).
	Dims(sheet string) (rows, cols int, err error)

	// CellString returns the formatted cell text, "" for empty or
	// unreadable cells.
	CellString(sheet string, row, col int) string
	CellFormula(sheet string, row, col int) string
	SetCell(sheet string, row, col int, v interface{}) error
	// SetCellDate writes a date-typed cell with the schedule date format.
	SetCellDate(sheet string, row, col int, t time.Time) error
	SetCellFormula(sheet string, row, col int, formula string) error
	ClearCell(sheet string, row, col int) error

	InsertRow(sheet string, row int) error
	DeleteRow(sheet string, row int) error

	// CopyRowFormat copies cell styles (not values) from src to dst row.
	CopyRowFormat(sheet string, src, dst, maxCol int) error
	// CopyRowTo copies values and styles of a row into another sheet.
	CopyRowTo(srcSheet string, srcRow int, dstSheet string, dstRow, maxCol int) error

	// MarkRow paints a row with a solid fill and font color (hex RGB).
	MarkRow(sheet string, row, maxCol int, fillRGB, fontRGB string) error
	// FillRGB reports a cell's solid fill color, "" when unfilled.
	FillRGB(sheet string, row, col int) (string, error)
	// ClearRowFill removes the fill of a row without touching values.
	ClearRowFill(sheet string, row, maxCol int) error

	Save() error
	Close() error
}

var ErrNoSheet = errors.New("sheet not found in workbook")
