// Package corpus manages the on-disk set of schedule workbooks: cached
// listings, eligibility rules, master-schedule discovery and lock probing.
// The corpus is shared with human editors; nothing here assumes exclusive
// ownership.
package corpus

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ScheduleSync/internal/sheets"
)

const (
	masterMark   = "总"
	templateMark = "样板"
	cancelMark   = "取消"
	mappingMark  = "对应"
	legacyMark   = "旧"
	legacyDir    = "旧排期"
	scheduleMark = "排期"
	detailMark   = "明细"
)

// materialSuffixes are the words that, together with the MA marker, make a
// sheet a pure material sheet ("布料MA", "MA包装"). A remaining product
// prefix ("游水MA彩盒" -> "游水") keeps the sheet eligible.
var materialSuffixes = []string{"彩盒", "半成品", "包装", "产品", "客版", "布料", "成品"}

// Corpus walks and caches the schedule file tree.
type Corpus struct {
	root string

	mu        sync.Mutex
	listCache []string
	listRoot  string

	yellowMu    sync.Mutex
	yellowCache map[string]yellowEntry
}

func New(root string) *Corpus {
	return &Corpus{root: root, yellowCache: map[string]yellowEntry{}}
}

func (c *Corpus) Root() string { return c.root }

// ListFiles returns every workbook under the root, memoized until
// Invalidate. Editor lock sidecars (~$) are skipped.
func (c *Corpus) ListFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listCache != nil && c.listRoot == c.root {
		return c.listCache
	}
	var files []string
	if info, err := os.Stat(c.root); err != nil || !info.IsDir() {
		return files
	}
	filepath.Walk(c.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, "~$") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext == ".xlsx" || ext == ".xls" {
			files = append(files, path)
		}
		return nil
	})
	c.listCache = files
	c.listRoot = c.root
	return files
}

// Invalidate drops the file listing cache (root switch or manual refresh).
func (c *Corpus) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCache = nil
	c.listRoot = ""
}

// FindMaster returns the consolidated master schedule, "" when absent.
func (c *Corpus) FindMaster() string {
	for _, fp := range c.ListFiles() {
		if IsMasterFile(filepath.Base(fp)) {
			return fp
		}
	}
	return ""
}

// IsMasterFile reports whether a file name marks the consolidated master.
func IsMasterFile(name string) bool {
	return strings.Contains(name, masterMark)
}

// IsTemplateFile reports whether a file name marks a template workbook.
func IsTemplateFile(name string) bool {
	return strings.Contains(name, templateMark)
}

// InLegacyDir reports whether a path sits under a legacy-archive directory.
func InLegacyDir(path string) bool {
	return strings.Contains(path, legacyDir)
}

// HasScheduleMark reports whether a file name carries the schedule word,
// used to prefer production schedules when a sheet hint exists.
func HasScheduleMark(name string) bool {
	return strings.Contains(name, scheduleMark)
}

// IsMaterialSheet reports whether a sheet is a pure material (MA) sheet.
func IsMaterialSheet(name string) bool {
	if !strings.Contains(strings.ToUpper(name), "MA") {
		return false
	}
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(name, "MA", ""), "ma", ""))
	if cleaned == "" {
		return true
	}
	for _, kw := range materialSuffixes {
		cleaned = strings.ReplaceAll(cleaned, kw, "")
	}
	return strings.TrimSpace(cleaned) == ""
}

// SearchableSheet reports whether a sheet may hold live order rows.
func SearchableSheet(name string) bool {
	if strings.Contains(name, cancelMark) || strings.Contains(name, mappingMark) {
		return false
	}
	if strings.Contains(name, masterMark) || strings.Contains(name, legacyMark) ||
		strings.Contains(name, templateMark) {
		return false
	}
	return !IsMaterialSheet(name)
}

// CancelledSheet reports whether a sheet is an archive of cancelled rows.
func CancelledSheet(name string) bool {
	return strings.Contains(name, cancelMark)
}

// ScheduleFile is a corpus entry with its selectable sheets, for manual
// reference picking.
type ScheduleFile struct {
	File     string   `json:"file"`
	FileName string   `json:"fname"`
	Sheets   []string `json:"sheets"`
}

// ListScheduleFiles lists every non-master workbook with its live sheets.
func (c *Corpus) ListScheduleFiles() []ScheduleFile {
	var out []ScheduleFile
	for _, fp := range c.ListFiles() {
		fn := filepath.Base(fp)
		if IsMasterFile(fn) {
			continue
		}
		names, err := sheets.SheetNames(fp)
		if err != nil {
			log.Printf("[corpus] cannot list sheets of %s: %v", fn, err)
			names = []string{"Sheet1"}
		}
		var kept []string
		for _, sn := range names {
			if !strings.Contains(sn, cancelMark) && !strings.Contains(sn, detailMark) {
				kept = append(kept, sn)
			}
		}
		out = append(out, ScheduleFile{File: fp, FileName: fn, Sheets: kept})
	}
	return out
}
