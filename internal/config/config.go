package config

import "time"

const (
	// Corpus / staging locations (overridable via env in main).
	DefaultCorpusRoot = `Z:\schedules`
	DefaultDataDir    = "./data"
	DefaultBatchDir   = "./batch_temp"

	// Read-path fan-out: corpus scans never run more than this many
	// files in parallel, regardless of corpus size.
	SearchWorkers = 6

	// Mutation-path file lock acquisition.
	FileLockTimeout = 30 * time.Second

	// Inspection date = ship date minus lead days, shifted off weekends.
	InspectionLeadDays      = 4
	InspectionLeadDaysShort = 2

	// Background sweep for pending retries and due scheduled re-entries.
	DefaultRetrySchedule = "@every 3m"

	// Undo ledger retains at most this many batch entries.
	UndoLedgerCap = 30

	// Row-search guards.
	MaxScanRows   = 5000
	MaxScanCols   = 100
	PrefixLenDiff = 3

	// Fuzzy search result cap.
	FuzzySearchCap = 100
)

// Fill/font colors and formats for system-written rows.
const (
	NewRowFillRGB    = "00B0F0" // light blue: system-entered, unverified
	CancelFontRGB    = "FF0000"
	YellowFillRGB    = "FFFF00"
	DefaultFontRGB   = "000000"
	DateNumberFmt    = "yyyy/m/d"
	ISODateLayout    = "2006-01-02"
	BatchIDLayout    = "20060102-150405"
	HistoryTimeFmt   = "2006-01-02 15:04"
	LedgerTimeFmt    = "2006-01-02 15:04:05"
	RetryClockLayout = "15:04"
)
