// Package schedule wires the reconciliation engine behind an HTTP service:
// locate existing schedule rows for a purchase order, diff them against the
// order lines, and commit the approved actions back to the workbooks.
package schedule

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/history"
	"ScheduleSync/api/schedule/locate"
	"ScheduleSync/api/schedule/skumap"
	"ScheduleSync/api/schedule/undo"
	"ScheduleSync/api/schedule/writer"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/serviceiface"
)

// Engine bundles the domain collaborators. One Engine per corpus root;
// handlers and the background sweep share it.
type Engine struct {
	Corpus  *corpus.Corpus
	Mapping *skumap.Store
	Locator *locate.Locator
	Undo    *undo.Store
	Writer  *writer.Writer
	History history.Store
}

var (
	engineMu sync.RWMutex
	engine   *Engine
)

// GetEngine returns the running engine, nil until the schedule service has
// started.
func GetEngine() *Engine {
	engineMu.RLock()
	defer engineMu.RUnlock()
	return engine
}

func setEngine(e *Engine) {
	engineMu.Lock()
	defer engineMu.Unlock()
	engine = e
}

// NewEngine builds the collaborator graph. A nil pool keeps history in JSON
// files under dataDir instead of Postgres.
func NewEngine(corpusRoot, dataDir, batchDir string, pool *pgxpool.Pool) (*Engine, error) {
	for _, dir := range []string{dataDir, batchDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	c := corpus.New(corpusRoot)
	mapping := skumap.New(dataDir, c.FindMaster)
	u := undo.NewStore(dataDir, filepath.Join(dataDir, "undo"))

	var hist history.Store
	if pool != nil {
		pg := history.NewPgStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("history schema: %w", err)
		}
		hist = pg
	} else {
		hist = history.NewFileStore(dataDir)
	}

	return &Engine{
		Corpus:  c,
		Mapping: mapping,
		Locator: locate.New(c, mapping),
		Undo:    u,
		Writer:  writer.New(c, u, batchDir),
		History: hist,
	}, nil
}

type ScheduleService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
}

func NewScheduleService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &ScheduleService{config: cfg, db: db}
}

func (s *ScheduleService) Name() string {
	return "schedule"
}

func (s *ScheduleService) Start() error {
	corpusRoot := s.str("corpus_root", os.Getenv("CORPUS_ROOT"))
	if corpusRoot == "" {
		corpusRoot = config.DefaultCorpusRoot
	}
	dataDir := s.str("data_dir", config.DefaultDataDir)
	batchDir := s.str("batch_dir", config.DefaultBatchDir)
	port := s.str("port", "6171")

	eng, err := NewEngine(corpusRoot, dataDir, batchDir, s.db)
	if err != nil {
		return err
	}
	setEngine(eng)

	go StartScheduleService(eng, s.db, port)
	return nil
}

func (s *ScheduleService) Stop() error {
	return nil
}

// str reads a string key from the services.yaml config block, falling back
// to def when absent or empty.
func (s *ScheduleService) str(key, def string) string {
	if s.config != nil {
		if v, ok := s.config[key].(string); ok && v != "" {
			return v
		}
	}
	return def
}

// StartScheduleService runs the HTTP listener. Blocks; call in a goroutine.
func StartScheduleService(eng *Engine, db *pgxpool.Pool, port string) {
	router := NewRouter(eng)
	log.Printf("Schedule Service started on :%s (corpus %s)", port, eng.Corpus.Root())
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Schedule Service failed: %v", err)
	}
}
