// Package history records what the engine did (audit trail per PO) and the
// issues operators need to see (parse failures, unresolved SKUs, publish
// retries). Both feeds live in Postgres.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ScheduleSync/internal/config"
)

// Record is one audit line: what happened to which PO, touching which files.
type Record struct {
	Time   string `json:"time"`
	PO     string `json:"po"`
	Action string `json:"action"`
	Detail string `json:"detail"`
	Files  string `json:"files"`
}

// Issue is an operator-facing problem report surfaced on the dashboard.
type Issue struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
	Filename string `json:"filename,omitempty"`
	SKU      string `json:"sku,omitempty"`
	Tip      string `json:"tip,omitempty"`
	Time     string `json:"time"`
}

// Store is the persistence boundary for both feeds.
type Store interface {
	AddRecord(ctx context.Context, r Record) error
	Records(ctx context.Context) ([]Record, error)
	AddIssues(ctx context.Context, issues []Issue) error
	Issues(ctx context.Context) ([]Issue, error)
	ClearIssues(ctx context.Context) error
}

// issueFeedCap bounds the dashboard feed; older issues age out.
const issueFeedCap = 100

// PgStore keeps both feeds in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureSchema creates the feed tables when missing.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schedule_history (
			id       BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL DEFAULT now(),
			po       TEXT NOT NULL DEFAULT '',
			action   TEXT NOT NULL,
			detail   TEXT NOT NULL DEFAULT '',
			files    TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS schedule_issues (
			id       BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL DEFAULT now(),
			category TEXT NOT NULL,
			title    TEXT NOT NULL,
			icon     TEXT NOT NULL DEFAULT '',
			color    TEXT NOT NULL DEFAULT '',
			filename TEXT NOT NULL DEFAULT '',
			sku      TEXT NOT NULL DEFAULT '',
			tip      TEXT NOT NULL DEFAULT ''
		);
	`)
	return err
}

func (s *PgStore) AddRecord(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO schedule_history (po, action, detail, files)
		VALUES ($1, $2, $3, $4)`,
		r.PO, r.Action, r.Detail, r.Files)
	if err != nil {
		return fmt.Errorf("history insert: %w", err)
	}
	return nil
}

func (s *PgStore) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, po, action, detail, files
		FROM schedule_history
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("history query: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var ts time.Time
		var r Record
		if err := rows.Scan(&ts, &r.PO, &r.Action, &r.Detail, &r.Files); err != nil {
			return nil, err
		}
		r.Time = ts.Format(config.HistoryTimeFmt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgStore) AddIssues(ctx context.Context, issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	for _, is := range issues {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO schedule_issues (category, title, icon, color, filename, sku, tip)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			is.Category, is.Title, is.Icon, is.Color, is.Filename, is.SKU, is.Tip); err != nil {
			return fmt.Errorf("issue insert: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM schedule_issues
		WHERE id NOT IN (SELECT id FROM schedule_issues ORDER BY id DESC LIMIT $1)`,
		issueFeedCap)
	return err
}

func (s *PgStore) Issues(ctx context.Context) ([]Issue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, category, title, icon, color, filename, sku, tip
		FROM schedule_issues
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("issues query: %w", err)
	}
	defer rows.Close()
	var out []Issue
	for rows.Next() {
		var ts time.Time
		var is Issue
		if err := rows.Scan(&ts, &is.Category, &is.Title, &is.Icon, &is.Color, &is.Filename, &is.SKU, &is.Tip); err != nil {
			return nil, err
		}
		is.Time = ts.Format(config.LedgerTimeFmt)
		out = append(out, is)
	}
	return out, rows.Err()
}

func (s *PgStore) ClearIssues(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE schedule_issues`)
	return err
}
