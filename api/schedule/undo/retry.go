package undo

import (
	"path/filepath"
	"time"

	"ScheduleSync/api/schedule/order"
	"ScheduleSync/internal/config"
)

// PendingItem is a staged file whose destination was busy at publish time.
// The staged copy stays in the batch dir until a retry lands it.
type PendingItem struct {
	File      string         `json:"file"`
	Local     string         `json:"local"`
	ZPath     string         `json:"z"`
	PO        string         `json:"po,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Counts    map[string]int `json:"counts,omitempty"`
	Retries   int            `json:"retries,omitempty"`
	LastRetry string         `json:"last_retry,omitempty"`
}

func (s *Store) PendingRetries() []PendingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _ := readJSON[[]PendingItem](filepath.Join(s.dataDir, pendingFileName))
	return items
}

func (s *Store) SavePendingRetries(items []PendingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if items == nil {
		items = []PendingItem{}
	}
	return writeJSON(s.dataDir, pendingFileName, items)
}

func (s *Store) AddPending(item PendingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _ := readJSON[[]PendingItem](filepath.Join(s.dataDir, pendingFileName))
	items = append(items, item)
	return writeJSON(s.dataDir, pendingFileName, items)
}

// SweepPending walks the queue calling attempt on each item. Items whose
// attempt succeeds leave the queue; the rest stay with bumped counters.
// The read, the attempts, and the rewrite happen in one critical section,
// so items enqueued by concurrent commits are never dropped.
func (s *Store) SweepPending(attempt func(PendingItem) error) (published, stillFailed []PendingItem, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _ := readJSON[[]PendingItem](filepath.Join(s.dataDir, pendingFileName))
	if len(items) == 0 {
		return nil, nil, nil
	}
	for _, item := range items {
		if aerr := attempt(item); aerr != nil {
			item.MarkRetried()
			stillFailed = append(stillFailed, item)
			continue
		}
		published = append(published, item)
	}
	keep := stillFailed
	if keep == nil {
		keep = []PendingItem{}
	}
	return published, stillFailed, writeJSON(s.dataDir, pendingFileName, keep)
}

// MarkRetried bumps the attempt bookkeeping on a still-failing item.
func (i *PendingItem) MarkRetried() {
	i.Retries++
	i.LastRetry = time.Now().Format(config.LedgerTimeFmt)
}

// ScheduledTask is a full re-entry batch armed for a wall-clock time.
// Orders carries the request payload verbatim so the sweep can replay it.
type ScheduledTask struct {
	ID       string        `json:"id"`
	Time     string        `json:"time"` // "HH:MM"
	Orders   []order.Batch `json:"orders"`
	Label    string        `json:"label"`
	Created  string        `json:"created"`
	Status   string        `json:"status"` // pending, done, error
	Result   string        `json:"result,omitempty"`
	DoneTime string        `json:"done_time,omitempty"`
}

func (s *Store) ScheduledTasks() []ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _ := readJSON[[]ScheduledTask](filepath.Join(s.dataDir, scheduledFileName))
	return items
}

func (s *Store) SaveScheduledTasks(items []ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if items == nil {
		items = []ScheduledTask{}
	}
	return writeJSON(s.dataDir, scheduledFileName, items)
}

func (s *Store) AddScheduledTask(t ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _ := readJSON[[]ScheduledTask](filepath.Join(s.dataDir, scheduledFileName))
	items = append(items, t)
	return writeJSON(s.dataDir, scheduledFileName, items)
}

func (s *Store) CancelScheduledTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, _ := readJSON[[]ScheduledTask](filepath.Join(s.dataDir, scheduledFileName))
	kept := items[:0]
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	return writeJSON(s.dataDir, scheduledFileName, kept)
}
