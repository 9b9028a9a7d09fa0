// Package undo keeps the write-back safety nets: per-batch workbook backups
// with a restore ledger, the queue of staged files still waiting for a busy
// destination, and clock-scheduled re-entry tasks.
package undo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/internal/config"
)

const (
	ledgerFileName    = "undo_history.json"
	pendingFileName   = "pending_retries.json"
	scheduledFileName = "scheduled_retries.json"
)

// FileRef ties a backup copy to the destination it guards.
type FileRef struct {
	Name   string `json:"name"`
	Backup string `json:"backup"`
	ZPath  string `json:"z_path"`
}

type Operation struct {
	Type   string `json:"type"`
	SKU    string `json:"sku"`
	Detail string `json:"detail"`
	Qty    int    `json:"qty,omitempty"`
}

// Entry is one undoable batch: the operations applied and the backups that
// reverse them.
type Entry struct {
	ID         string      `json:"id"`
	Time       string      `json:"time"`
	Operations []Operation `json:"operations"`
	Files      []FileRef   `json:"files"`
	Label      string      `json:"label"`
}

// Store persists the ledger and retry queues as JSON under the data dir.
// Backups live under the undo dir, named "<batchID>_<file>".
type Store struct {
	dataDir string
	undoDir string
	mu      sync.Mutex
}

func NewStore(dataDir, undoDir string) *Store {
	return &Store{dataDir: dataDir, undoDir: undoDir}
}

func (s *Store) UndoDir() string { return s.undoDir }

// Backup copies a destination workbook into the undo dir before a batch
// touches it, returning the backup path.
func (s *Store) Backup(batchID, src string) (string, error) {
	if err := os.MkdirAll(s.undoDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(s.undoDir, batchID+"_"+filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("backup %s: %w", filepath.Base(src), err)
	}
	return dst, nil
}

// SaveEntry appends to the ledger, trimming to the newest entries.
func (s *Store) SaveEntry(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, _ := s.loadLedger()
	history = append(history, e)
	if len(history) > config.UndoLedgerCap {
		history = history[len(history)-config.UndoLedgerCap:]
	}
	return s.writeLedger(history)
}

// Info lists the batches that can still be restored (backup file present).
type Info struct {
	Available bool    `json:"available"`
	Batches   []Entry `json:"batches"`
	Count     int     `json:"count"`
}

func (s *Store) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, _ := s.loadLedger()
	var valid []Entry
	for _, e := range history {
		for _, f := range e.Files {
			if f.Backup != "" {
				if _, err := os.Stat(f.Backup); err == nil {
					valid = append(valid, e)
					break
				}
			}
		}
	}
	// Newest first.
	for i, j := 0, len(valid)-1; i < j; i, j = i+1, j-1 {
		valid[i], valid[j] = valid[j], valid[i]
	}
	return Info{Available: len(valid) > 0, Batches: valid, Count: len(valid)}
}

type RestoreFailure struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

type RestoreResult struct {
	Restored  []string         `json:"restored"`
	Failed    []RestoreFailure `json:"failed"`
	UndoneIDs []string         `json:"undone_ids"`
}

var ErrNothingToUndo = errors.New("no undoable batches recorded")

// Restore rolls back the named batches by copying each backup over its
// destination. A batch leaves the ledger (and its backups are pruned) only
// when every one of its files restored cleanly; partial failures keep the
// entry so the operator can retry.
func (s *Store) Restore(batchIDs []string) (*RestoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, _ := s.loadLedger()
	if len(history) == 0 {
		return nil, ErrNothingToUndo
	}
	wanted := map[string]bool{}
	for _, id := range batchIDs {
		wanted[id] = true
	}
	res := &RestoreResult{}
	found := false

	for _, e := range history {
		if !wanted[e.ID] {
			continue
		}
		found = true
		entryClean := true
		for _, f := range e.Files {
			if f.Backup == "" {
				res.Failed = append(res.Failed, RestoreFailure{File: f.Name, Reason: "backup path missing"})
				entryClean = false
				continue
			}
			if _, err := os.Stat(f.Backup); err != nil {
				res.Failed = append(res.Failed, RestoreFailure{File: f.Name, Reason: "backup file missing"})
				entryClean = false
				continue
			}
			if _, err := os.Stat(f.ZPath); err != nil {
				res.Failed = append(res.Failed, RestoreFailure{File: f.Name, Reason: "destination missing"})
				entryClean = false
				continue
			}
			if !corpus.Writable(f.ZPath) {
				res.Failed = append(res.Failed, RestoreFailure{File: f.Name, Reason: "destination locked"})
				entryClean = false
				continue
			}
			if err := copyFile(f.Backup, f.ZPath); err != nil {
				res.Failed = append(res.Failed, RestoreFailure{File: f.Name, Reason: err.Error()})
				entryClean = false
				continue
			}
			res.Restored = append(res.Restored, f.Name)
		}
		if entryClean {
			res.UndoneIDs = append(res.UndoneIDs, e.ID)
		}
	}
	if !found {
		return nil, errors.New("batch ids not found in ledger")
	}

	if len(res.UndoneIDs) > 0 {
		undone := map[string]bool{}
		for _, id := range res.UndoneIDs {
			undone[id] = true
		}
		var remaining []Entry
		for _, e := range history {
			if undone[e.ID] {
				for _, f := range e.Files {
					if f.Backup != "" {
						if err := os.Remove(f.Backup); err != nil && !os.IsNotExist(err) {
							log.Printf("[undo] backup prune %s: %v", f.Backup, err)
						}
					}
				}
				continue
			}
			remaining = append(remaining, e)
		}
		if err := s.writeLedger(remaining); err != nil {
			return res, err
		}
	}
	return res, nil
}

// RestoreLast rolls back the newest batch.
func (s *Store) RestoreLast() (*RestoreResult, error) {
	s.mu.Lock()
	history, _ := s.loadLedger()
	s.mu.Unlock()
	if len(history) == 0 {
		return nil, ErrNothingToUndo
	}
	return s.Restore([]string{history[len(history)-1].ID})
}

func (s *Store) loadLedger() ([]Entry, error) {
	return readJSON[[]Entry](filepath.Join(s.dataDir, ledgerFileName))
}

func (s *Store) writeLedger(history []Entry) error {
	return writeJSON(s.dataDir, ledgerFileName, history)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if info, serr := os.Stat(src); serr == nil {
		os.Chtimes(dst, time.Now(), info.ModTime())
	}
	return nil
}

func readJSON[T any](path string) (T, error) {
	var v T
	raw, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

func writeJSON(dir, name string, v interface{}) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), raw, 0o644)
}
