// Package skumap resolves SKUs to schedule file keywords and sheet hints.
// The primary source is a user-edited JSON file; when that is missing the
// mapping is rebuilt from the master schedule's correspondence sheet.
package skumap

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"ScheduleSync/api/schedule/order"
	"ScheduleSync/internal/sheets"
)

const mappingFileName = "sku_mapping.json"

// mappingFile is the on-disk JSON layout. Keys starting with "_" are
// editor-facing metadata and never looked up.
type mappingFile struct {
	Note      string              `json:"_note,omitempty"`
	UpdatedAt string              `json:"_updated_at,omitempty"`
	Mapping   map[string][]string `json:"mapping"`
	SheetMap  map[string]string   `json:"sheet_mapping,omitempty"`
}

// Store caches the SKU mapping against the source file's mtime, hot
// reloading when editors touch it.
type Store struct {
	dataDir string
	master  func() string // master schedule path resolver, "" if none

	mu       sync.Mutex
	mapping  map[string][]string
	sheetMap map[string]string
	mtime    time.Time
	source   string
}

func New(dataDir string, masterResolver func() string) *Store {
	return &Store{dataDir: dataDir, master: masterResolver}
}

func (s *Store) path() string { return filepath.Join(s.dataDir, mappingFileName) }

// Keywords returns the file-name keywords for an exact mapping key, nil
// when unmapped.
func (s *Store) Keywords(key string) []string {
	m, _ := s.load()
	return m[strings.ToUpper(key)]
}

// Lookup tries the candidate keys in order and returns the first hit plus
// the sheet hint resolved the same way.
func (s *Store) Lookup(keys []string) (keywords []string, sheetHint string) {
	mapping, sheetMap := s.load()
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if kws := mapping[k]; len(kws) > 0 {
			keywords = kws
			break
		}
	}
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" || strings.HasPrefix(k, "_") {
			continue
		}
		if hint, ok := sheetMap[k]; ok {
			sheetHint = hint
			break
		}
	}
	return keywords, sheetHint
}

// LookupKeys builds the candidate key ladder for one SKU: the raw
// alphanumeric form, the five-digit key, the item code and its leading
// digits.
func LookupKeys(sku string) []string {
	item := order.ItemCode(sku)
	return []string{
		order.AlnumUpper(sku),
		order.SkuKey(sku),
		strings.ToUpper(item),
		order.LeadingDigits(item),
	}
}

func (s *Store) load() (map[string][]string, map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jsonPath := s.path()
	if info, err := os.Stat(jsonPath); err == nil {
		if s.source == jsonPath && info.ModTime().Equal(s.mtime) && s.mapping != nil {
			return s.mapping, s.sheetMap
		}
		mf, lerr := readMappingFile(jsonPath)
		if lerr == nil {
			s.mapping = upperKeys(mf.Mapping)
			s.sheetMap = upperKeys2(mf.SheetMap)
			s.mtime = info.ModTime()
			s.source = jsonPath
			log.Printf("[skumap] loaded %d mapping entries from %s", len(s.mapping), mappingFileName)
			return s.mapping, s.sheetMap
		}
		log.Printf("[skumap] %s unreadable: %v, falling back to master", mappingFileName, lerr)
	}

	// Fall back to the master schedule's correspondence sheet.
	masterFp := ""
	if s.master != nil {
		masterFp = s.master()
	}
	if masterFp == "" {
		if s.mapping == nil {
			s.mapping = map[string][]string{}
			s.sheetMap = map[string]string{}
		}
		return s.mapping, s.sheetMap
	}
	info, err := os.Stat(masterFp)
	if err != nil {
		return s.mapping, s.sheetMap
	}
	if s.source == masterFp && info.ModTime().Equal(s.mtime) && s.mapping != nil {
		return s.mapping, s.sheetMap
	}
	m, err := loadFromMaster(masterFp)
	if err != nil {
		log.Printf("[skumap] master mapping rebuild failed: %v", err)
		if s.mapping == nil {
			s.mapping = map[string][]string{}
			s.sheetMap = map[string]string{}
		}
		return s.mapping, s.sheetMap
	}
	s.mapping = m
	s.sheetMap = map[string]string{}
	s.mtime = info.ModTime()
	s.source = masterFp
	log.Printf("[skumap] rebuilt %d mapping entries from master schedule", len(m))
	return s.mapping, s.sheetMap
}

// Invalidate forces a reload on the next lookup.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapping = nil
	s.sheetMap = nil
	s.mtime = time.Time{}
	s.source = ""
}

func readMappingFile(path string) (*mappingFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf mappingFile
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, err
	}
	if mf.Mapping == nil {
		mf.Mapping = map[string][]string{}
	}
	return &mf, nil
}

func upperKeys(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

func upperKeys2(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

var (
	groupHeadPat = regexp.MustCompile(`(?i)zuru`)
	yearTokenPat = regexp.MustCompile(`20\d{2}`)
	keywordPat   = regexp.MustCompile(`\d{4,5}`)
	detailPrefix = regexp.MustCompile(`.*?明[细細][:：]\s*`)
	tokenSplit   = regexp.MustCompile(`[\s,;，；]+`)
	numToken     = regexp.MustCompile(`^\d{4,6}$`)
	alphaNum     = regexp.MustCompile(`^[A-Za-z]+\d+$`)
	numAlpha     = regexp.MustCompile(`^\d+[A-Za-z]+\d*$`)
)

// loadFromMaster rebuilds the mapping from the master workbook's
// correspondence sheet. Group header rows (brand + year in the first cell)
// set the active file keywords; every SKU-shaped token on the following
// rows maps to them.
func loadFromMaster(masterFp string) (map[string][]string, error) {
	snap, err := sheets.OpenSnapshot(masterFp)
	if err != nil {
		return nil, err
	}
	target := ""
	for _, sn := range snap.Sheets() {
		if strings.Contains(sn, "对应") && strings.Contains(sn, "货号") {
			target = sn
			break
		}
	}
	if target == "" {
		return nil, errors.New("master schedule has no correspondence sheet")
	}

	mapping := map[string][]string{}
	var currentKeywords []string
	for i, row := range snap.Rows(target) {
		if i == 0 {
			continue
		}
		first := ""
		if len(row) > 0 {
			first = strings.TrimSpace(row[0])
		}
		if groupHeadPat.MatchString(first) && yearTokenPat.MatchString(first) {
			currentKeywords = keywordPat.FindAllString(first, -1)
			continue
		}
		if len(currentKeywords) == 0 {
			continue
		}
		limit := 20
		if len(row) < limit {
			limit = len(row)
		}
		for _, cell := range row[:limit] {
			val := strings.TrimSpace(cell)
			if val == "" {
				continue
			}
			val = detailPrefix.ReplaceAllString(val, "")
			for _, token := range tokenSplit.Split(val, -1) {
				token = strings.TrimSpace(token)
				switch {
				case token == "":
				case numToken.MatchString(token):
					mapping[token] = currentKeywords
				case alphaNum.MatchString(token), numAlpha.MatchString(token):
					mapping[strings.ToUpper(token)] = currentKeywords
				}
			}
		}
	}
	return mapping, nil
}

// Info summarizes the mapping grouped by target file keywords.
type Info struct {
	Total  int     `json:"total"`
	Groups int     `json:"groups"`
	Detail []Group `json:"detail"`
}

type Group struct {
	Keywords []string `json:"keywords"`
	SKUs     []string `json:"skus"`
	Count    int      `json:"count"`
}

func (s *Store) Summary() Info {
	mapping, _ := s.load()
	grouped := map[string]*Group{}
	for sku, kws := range mapping {
		key := strings.Join(kws, ",")
		g, ok := grouped[key]
		if !ok {
			g = &Group{Keywords: kws}
			grouped[key] = g
		}
		g.SKUs = append(g.SKUs, sku)
	}
	info := Info{Total: len(mapping), Groups: len(grouped)}
	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		g := grouped[k]
		sort.Strings(g.SKUs)
		g.Count = len(g.SKUs)
		info.Detail = append(info.Detail, *g)
	}
	return info
}

// EditAction mutates the JSON mapping file.
type EditAction string

const (
	EditAdd    EditAction = "add"
	EditUpdate EditAction = "update"
	EditDelete EditAction = "delete"
)

var ErrUnknownSKU = errors.New("sku not present in mapping")

// Edit applies one add/update/delete to the JSON mapping file and
// invalidates the cache. The file is created on first edit.
func (s *Store) Edit(action EditAction, sku string, keywords []string) (total int, err error) {
	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return 0, errors.New("empty sku")
	}

	mf := &mappingFile{
		Note:    "SKU to schedule-file keyword mapping",
		Mapping: map[string][]string{},
	}
	if _, serr := os.Stat(s.path()); serr == nil {
		if loaded, lerr := readMappingFile(s.path()); lerr == nil {
			mf = loaded
		}
	}

	switch action {
	case EditAdd, EditUpdate:
		if len(keywords) == 0 {
			return 0, errors.New("no keywords given")
		}
		mf.Mapping[sku] = keywords
	case EditDelete:
		if _, ok := mf.Mapping[sku]; !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
		}
		delete(mf.Mapping, sku)
	default:
		return 0, fmt.Errorf("unknown mapping action %q", action)
	}

	mf.UpdatedAt = time.Now().Format("2006-01-02 15:04")
	raw, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(s.path(), raw, 0o644); err != nil {
		return 0, err
	}
	s.Invalidate()
	log.Printf("[skumap] %s sku=%s keywords=%v", action, sku, keywords)
	return len(mf.Mapping), nil
}
