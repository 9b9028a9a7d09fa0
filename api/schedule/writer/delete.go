package writer

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"ScheduleSync/api/schedule/undo"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/logger"
	"ScheduleSync/internal/sheets"
)

// DeleteEntry names one schedule row to remove outright.
type DeleteEntry struct {
	File  string `json:"file"`
	Sheet string `json:"sheet"`
	Row   int    `json:"row"`
	SKU   string `json:"sku"`
}

type DeletedRow struct {
	SKU     string            `json:"sku"`
	File    string            `json:"file"`
	Sheet   string            `json:"sheet"`
	Row     int               `json:"row"`
	RowInfo map[string]string `json:"row_info"`
}

type DeleteFailure struct {
	SKU    string `json:"sku"`
	Reason string `json:"reason"`
}

type DeleteResult struct {
	Deleted []DeletedRow    `json:"deleted"`
	Failed  []DeleteFailure `json:"failed"`
	UndoID  string          `json:"undo_id,omitempty"`
}

// DeleteEntries removes rows in place, backing each file up first so the
// operation lands in the undo ledger. Rows of one file are deleted highest
// first to keep later row numbers valid.
func (w *Writer) DeleteEntries(entries []DeleteEntry) *DeleteResult {
	res := &DeleteResult{}
	if len(entries) == 0 {
		return res
	}
	batchID := time.Now().Format(config.BatchIDLayout) + "_del"

	groups := map[string][]DeleteEntry{}
	var fileOrder []string
	for _, e := range entries {
		if _, ok := groups[e.File]; !ok {
			fileOrder = append(fileOrder, e.File)
		}
		groups[e.File] = append(groups[e.File], e)
	}
	var undoFiles []undo.FileRef

	for _, fkey := range fileOrder {
		group := groups[fkey]
		sort.Slice(group, func(i, j int) bool { return group[i].Row > group[j].Row })
		fname := filepath.Base(fkey)

		release, err := w.acquire(fkey)
		if err != nil {
			failGroup(res, group, err.Error())
			continue
		}

		backup, err := w.Undo.Backup(batchID, fkey)
		if err != nil {
			failGroup(res, group, "备份失败: "+err.Error())
			release()
			continue
		}
		sess, err := sheets.Open(fkey)
		if err != nil {
			failGroup(res, group, err.Error())
			release()
			continue
		}
		anyDeleted := false
		for _, e := range group {
			if !sess.HasSheet(e.Sheet) {
				res.Failed = append(res.Failed, DeleteFailure{SKU: e.SKU, Reason: "sheet not found: " + e.Sheet})
				continue
			}
			info := map[string]string{}
			for c := 1; c <= 20; c++ {
				if v := sess.CellString(e.Sheet, e.Row, c); v != "" {
					info[fmt.Sprintf("col%d", c)] = clip(v, 50)
				}
			}
			if err := sess.DeleteRow(e.Sheet, e.Row); err != nil {
				res.Failed = append(res.Failed, DeleteFailure{SKU: e.SKU, Reason: err.Error()})
				continue
			}
			anyDeleted = true
			res.Deleted = append(res.Deleted, DeletedRow{
				SKU: e.SKU, File: fname, Sheet: e.Sheet, Row: e.Row, RowInfo: info,
			})
		}
		if anyDeleted {
			if err := sess.Save(); err != nil {
				failGroup(res, group, "保存失败: "+err.Error())
			} else {
				undoFiles = append(undoFiles, undo.FileRef{Name: fname, Backup: backup, ZPath: fkey})
			}
		}
		sess.Close()
		release()
	}

	if len(res.Deleted) > 0 {
		var ops []undo.Operation
		for _, d := range res.Deleted {
			ops = append(ops, undo.Operation{
				Type: "delete", SKU: d.SKU,
				Detail: fmt.Sprintf("删除 %s 行%d", d.Sheet, d.Row),
			})
		}
		entry := undo.Entry{
			ID:         batchID,
			Time:       time.Now().Format(config.LedgerTimeFmt),
			Operations: ops,
			Files:      undoFiles,
			Label:      fmt.Sprintf("删除 %d 行", len(res.Deleted)),
		}
		if err := w.Undo.SaveEntry(entry); err == nil {
			res.UndoID = batchID
		}
		logger.Audit("deleted %d schedule rows (batch %s)", len(res.Deleted), batchID)
	}
	return res
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func failGroup(res *DeleteResult, group []DeleteEntry, reason string) {
	reason = clip(reason, 100)
	for _, e := range group {
		dup := false
		for _, f := range res.Failed {
			if f.SKU == e.SKU {
				dup = true
				break
			}
		}
		if !dup {
			res.Failed = append(res.Failed, DeleteFailure{SKU: e.SKU, Reason: reason})
		}
	}
}
