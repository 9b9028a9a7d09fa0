// Package writer applies reconciliation actions to schedule workbooks.
// Every batch works on a staged copy: back up the destination, mutate the
// copy, then publish it over the destination only when that file is free.
package writer

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/order"
	"ScheduleSync/api/schedule/undo"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/logger"
	"ScheduleSync/internal/sheets"
)

// ErrBusy marks a destination that is locked by an editor or another batch.
var ErrBusy = corpus.ErrFileBusy

// Writer owns the write path. One Writer per corpus; the corpus-wide
// per-file locks serialize concurrent batches touching the same workbook.
type Writer struct {
	Corpus   *corpus.Corpus
	Undo     *undo.Store
	BatchDir string

	prog progress
}

func New(c *corpus.Corpus, u *undo.Store, batchDir string) *Writer {
	return &Writer{Corpus: c, Undo: u, BatchDir: batchDir}
}

// acquire takes the corpus-wide per-file lock.
func (w *Writer) acquire(path string) (release func(), err error) {
	return corpus.AcquireFile(path)
}

// FileResult reports the outcome for one workbook of a batch.
type FileResult struct {
	File      string         `json:"file"`
	Local     string         `json:"local"`
	ZPath     string         `json:"z"`
	Published bool           `json:"z_saved"`
	Msg       string         `json:"msg"`
	Counts    map[string]int `json:"counts"`
	Reason    string         `json:"reason,omitempty"`
}

type BatchResult struct {
	BatchID string       `json:"batch_id"`
	Results []FileResult `json:"results"`
	Failed  []FileResult `json:"failed"`
}

// fileOps is all actions of a batch that land in one workbook.
type fileOps struct {
	file    string
	header  order.Order
	news    []*order.Action
	modify  []*order.Action
	cancels []*order.Action
}

// Commit groups the approved actions by workbook and processes each file in
// isolation: one failing file never blocks the rest of the batch.
func (w *Writer) Commit(batches []order.Batch) *BatchResult {
	batchID := time.Now().Format(config.BatchIDLayout)
	res := &BatchResult{BatchID: batchID}

	groups := map[string]*fileOps{}
	var fileOrder []string
	for bi := range batches {
		b := &batches[bi]
		for ai := range b.Actions {
			act := &b.Actions[ai]
			fkey := act.TargetFile()
			if fkey == "" {
				continue
			}
			g, ok := groups[fkey]
			if !ok {
				g = &fileOps{file: fkey, header: b.Header}
				groups[fkey] = g
				fileOrder = append(fileOrder, fkey)
			}
			switch act.Type {
			case order.ActionNew:
				g.news = append(g.news, act)
			case order.ActionModify:
				g.modify = append(g.modify, act)
			case order.ActionCancel:
				g.cancels = append(g.cancels, act)
			}
		}
	}

	w.prog.start(len(fileOrder))
	defer w.prog.finish()

	for i, fkey := range fileOrder {
		g := groups[fkey]
		fname := filepath.Base(fkey)
		w.prog.step(i, fname)

		fr, err := w.processFile(batchID, g)
		if err != nil {
			fr.Published = false
			if errors.Is(err, ErrBusy) {
				fr.Reason = "文件被占用: " + err.Error()
			} else {
				fr.Reason = "处理异常: " + err.Error()
			}
			log.Printf("[writer] %s failed: %v", fname, err)
			res.Failed = append(res.Failed, fr)
			continue
		}
		if fr.Published {
			res.Results = append(res.Results, fr)
		} else {
			res.Failed = append(res.Failed, fr)
		}
	}
	return res
}

func (w *Writer) processFile(batchID string, g *fileOps) (FileResult, error) {
	fname := filepath.Base(g.file)
	local := filepath.Join(w.BatchDir, fname)
	fr := FileResult{
		File: fname, Local: local, ZPath: g.file,
		Counts: map[string]int{"new": len(g.news), "modify": len(g.modify), "cancel": len(g.cancels)},
	}

	release, err := w.acquire(g.file)
	if err != nil {
		return fr, err
	}
	defer release()

	backup, err := w.Undo.Backup(batchID, g.file)
	if err != nil {
		return fr, err
	}
	if err := os.MkdirAll(w.BatchDir, 0o755); err != nil {
		return fr, err
	}
	if err := copyFile(g.file, local); err != nil {
		return fr, fmt.Errorf("stage %s: %w", fname, err)
	}

	sess, err := sheets.Open(local)
	if err != nil {
		return fr, err
	}
	var msgParts []string

	// Cancels run first, highest row number first so earlier deletions
	// never shift the later ones.
	sort.Slice(g.cancels, func(i, j int) bool {
		return g.cancels[i].Record.Row > g.cancels[j].Record.Row
	})
	type deletion struct {
		sheet string
		row   int
	}
	var deleted []deletion
	for _, act := range g.cancels {
		rec := act.Record
		if err := w.cancelRow(sess, fname, rec.Sheet, rec.Row); err != nil {
			sess.Close()
			return fr, fmt.Errorf("cancel %s row %d: %w", rec.Sheet, rec.Row, err)
		}
		deleted = append(deleted, deletion{rec.Sheet, rec.Row})
		msgParts = append(msgParts, "取消"+act.SKU)
	}

	// Modifies compensate for same-sheet deletions above the row.
	for _, act := range g.modify {
		rec := act.Record
		shift := 0
		for _, d := range deleted {
			if d.sheet == rec.Sheet && d.row < rec.Row {
				shift++
			}
		}
		if err := modifyRow(sess, rec.Sheet, rec.Row-shift, act.Changes); err != nil {
			sess.Close()
			return fr, fmt.Errorf("modify %s row %d: %w", rec.Sheet, rec.Row, err)
		}
		msgParts = append(msgParts, "修改"+act.SKU)
	}

	// News adjust the reference row for same-sheet deletions and earlier
	// same-sheet inserts, and keep batch order via startAfter.
	inserted := map[string][]int{}
	lastInsert := map[string]int{}
	for _, act := range g.news {
		if act.Schedule == nil {
			continue
		}
		sched := act.Schedule
		ref := sched.Ref
		for _, d := range deleted {
			if d.sheet == sched.Sheet && d.row < ref {
				ref--
			}
		}
		for _, p := range inserted[sched.Sheet] {
			if p <= ref {
				ref++
			}
		}
		mc := sched.MaxCol
		if mc <= 0 || mc > config.MaxScanCols {
			mc = config.MaxScanCols
		}
		pos, warns, err := w.insertNew(sess, sched.Sheet, ref, mc, &g.header, act.Line, lastInsert[sched.Sheet])
		if err != nil {
			sess.Close()
			return fr, fmt.Errorf("insert %s: %w", act.SKU, err)
		}
		inserted[sched.Sheet] = append(inserted[sched.Sheet], pos)
		lastInsert[sched.Sheet] = pos
		tag := ""
		if len(warns) > 0 {
			tag = " [空字段: " + strings.Join(warns, ", ") + "]"
		}
		msgParts = append(msgParts, "新增"+act.SKU+tag)
	}

	if err := sess.Save(); err != nil {
		sess.Close()
		return fr, err
	}
	sess.Close()
	fr.Msg = strings.Join(msgParts, " | ")

	if err := publish(local, g.file); err != nil {
		fr.Reason = "文件被占用（只读）"
		if aerr := w.Undo.AddPending(undo.PendingItem{
			File: fname, Local: local, ZPath: g.file,
			PO: g.header.PONumber, Msg: fr.Msg, Reason: fr.Reason, Counts: fr.Counts,
		}); aerr != nil {
			log.Printf("[writer] pending enqueue %s: %v", fname, aerr)
		}
		return fr, nil
	}
	fr.Published = true
	logger.Audit("batch %s published %s (%s)", batchID, fname, fr.Msg)

	w.saveUndoEntry(batchID, fname, backup, g)
	return fr, nil
}

func (w *Writer) saveUndoEntry(batchID, fname, backup string, g *fileOps) {
	typeNames := map[order.ActionType]string{
		order.ActionNew: "新增", order.ActionModify: "修改", order.ActionCancel: "取消",
	}
	var ops []undo.Operation
	var labels []string
	collect := func(acts []*order.Action, t order.ActionType) {
		for _, act := range acts {
			op := undo.Operation{Type: string(t), SKU: act.SKU, Detail: act.Detail}
			if t == order.ActionNew && act.Line != nil {
				op.Qty = act.Line.Qty
			}
			ops = append(ops, op)
			label := typeNames[t] + " " + act.SKU
			if op.Qty > 0 {
				label += fmt.Sprintf(" %dpcs", op.Qty)
			}
			labels = append(labels, label)
		}
	}
	collect(g.news, order.ActionNew)
	collect(g.modify, order.ActionModify)
	collect(g.cancels, order.ActionCancel)

	label := fmt.Sprintf("[%s] %s", fname, strings.Join(truncate(labels, 3), " | "))
	if len(labels) > 3 {
		label += fmt.Sprintf(" 等%d项", len(labels))
	}
	entry := undo.Entry{
		ID:         batchID + "_" + fname,
		Time:       time.Now().Format(config.LedgerTimeFmt),
		Operations: ops,
		Files:      []undo.FileRef{{Name: fname, Backup: backup, ZPath: g.file}},
		Label:      label,
	}
	if err := w.Undo.SaveEntry(entry); err != nil {
		log.Printf("[writer] undo ledger append %s: %v", entry.ID, err)
	}
}

// publish lands a staged copy on its destination, refusing when the
// destination cannot be opened for writing.
func publish(local, dst string) error {
	if !corpus.Writable(dst) {
		return fmt.Errorf("%w: %s", ErrBusy, filepath.Base(dst))
	}
	return copyFile(local, dst)
}

// RetryPending attempts to land every staged file still in the queue. Items
// that publish leave the queue; the rest stay with bumped retry counters.
func (w *Writer) RetryPending() (published, stillFailed []undo.PendingItem) {
	published, stillFailed, err := w.Undo.SweepPending(func(item undo.PendingItem) error {
		return publish(item.Local, item.ZPath)
	})
	if err != nil {
		log.Printf("[writer] pending queue save: %v", err)
	}
	for _, item := range published {
		logger.Audit("pending retry published %s after %d attempts", item.File, item.Retries)
	}
	return published, stillFailed
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
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
	return out.Close()
}
