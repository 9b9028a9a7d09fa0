package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ScheduleSync/internal/config"
)

// FileStore is the Postgres-free fallback, keeping both feeds as JSON files
// under the data dir. Used when no database is configured, and in tests.
type FileStore struct {
	dataDir string
	mu      sync.Mutex
}

func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

func (s *FileStore) AddRecord(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []Record
	s.read("history.json", &records)
	if r.Time == "" {
		r.Time = time.Now().Format(config.HistoryTimeFmt)
	}
	records = append(records, r)
	return s.write("history.json", records)
}

func (s *FileStore) Records(context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []Record
	s.read("history.json", &records)
	return records, nil
}

func (s *FileStore) AddIssues(_ context.Context, issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var existing []Issue
	s.read("issues.json", &existing)
	for i := range issues {
		if issues[i].Time == "" {
			issues[i].Time = time.Now().Format(config.LedgerTimeFmt)
		}
	}
	existing = append(existing, issues...)
	if len(existing) > issueFeedCap {
		existing = existing[len(existing)-issueFeedCap:]
	}
	return s.write("issues.json", existing)
}

func (s *FileStore) Issues(context.Context) ([]Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var issues []Issue
	s.read("issues.json", &issues)
	return issues, nil
}

func (s *FileStore) ClearIssues(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write("issues.json", []Issue{})
}

func (s *FileStore) read(name string, v interface{}) {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		return
	}
	json.Unmarshal(raw, v)
}

func (s *FileStore) write(name string, v interface{}) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, name), raw, 0o644)
}
