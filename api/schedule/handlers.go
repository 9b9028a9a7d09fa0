package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ScheduleSync/api"
	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/diffengine"
	"ScheduleSync/api/schedule/history"
	"ScheduleSync/api/schedule/order"
	"ScheduleSync/api/schedule/skumap"
	"ScheduleSync/api/schedule/undo"
	"ScheduleSync/api/schedule/writer"
	"ScheduleSync/internal/config"
)

// NewRouter maps the service endpoints onto the engine. Handlers validate,
// call the engine, and shape responses; the reconciliation logic lives in
// the engine packages.
func NewRouter(eng *Engine) *mux.Router {
	h := &handlers{eng: eng}
	r := mux.NewRouter()

	r.HandleFunc("/schedule/health", h.health).Methods("GET")

	r.HandleFunc("/schedule/search-po", h.searchPO).Methods("POST")
	r.HandleFunc("/schedule/search-skus", h.searchSKUs).Methods("POST")
	r.HandleFunc("/schedule/fuzzy-search", h.fuzzySearch).Methods("POST")

	r.HandleFunc("/schedule/diff", h.diff).Methods("POST")
	r.HandleFunc("/schedule/commit", h.commit).Methods("POST")
	r.HandleFunc("/schedule/progress", h.progress).Methods("GET")
	r.HandleFunc("/schedule/delete-rows", h.deleteRows).Methods("POST")
	r.HandleFunc("/schedule/reentry", h.reentry).Methods("POST")

	r.HandleFunc("/schedule/files", h.listFiles).Methods("GET")
	r.HandleFunc("/schedule/file-status", h.fileStatus).Methods("GET")
	r.HandleFunc("/schedule/manual-ref", h.manualRef).Methods("POST")

	r.HandleFunc("/schedule/mapping", h.mappingInfo).Methods("GET")
	r.HandleFunc("/schedule/mapping", h.mappingEdit).Methods("POST")
	r.HandleFunc("/schedule/mapping/{key}", h.mappingDelete).Methods("DELETE")

	r.HandleFunc("/schedule/undo", h.undoInfo).Methods("GET")
	r.HandleFunc("/schedule/undo", h.undoRestore).Methods("POST")

	r.HandleFunc("/schedule/retries", h.pendingRetries).Methods("GET")
	r.HandleFunc("/schedule/retry-now", h.retryNow).Methods("POST")
	r.HandleFunc("/schedule/scheduled", h.scheduledList).Methods("GET")
	r.HandleFunc("/schedule/scheduled", h.scheduledAdd).Methods("POST")
	r.HandleFunc("/schedule/scheduled/{id}", h.scheduledCancel).Methods("DELETE")

	r.HandleFunc("/schedule/history", h.historyList).Methods("GET")
	r.HandleFunc("/schedule/issues", h.issuesList).Methods("GET")
	r.HandleFunc("/schedule/issues/clear", h.issuesClear).Methods("POST")

	r.HandleFunc("/schedule/yellow-rows", h.yellowRows).Methods("GET")
	r.HandleFunc("/schedule/promote-yellow", h.promoteYellow).Methods("POST")
	r.HandleFunc("/schedule/clear-master-yellow", h.clearMasterYellow).Methods("POST")

	return r
}

type handlers struct {
	eng *Engine
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Schedule Service is active"))
}

func (h *handlers) searchPO(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PO  string   `json:"po"`
		POs []string `json:"pos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.POs) > 0 {
		api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"results": h.eng.Locator.BatchSearchPOs(req.POs),
		})
		return
	}
	if strings.TrimSpace(req.PO) == "" {
		api.RespondWithError(w, http.StatusBadRequest, "po is required")
		return
	}
	records := h.eng.Locator.SearchPO(req.PO)
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (h *handlers) searchSKUs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lines []order.OrderLine `json:"lines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Lines) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, "lines is required")
		return
	}
	records := h.eng.Locator.SearchBySKUs(req.Lines)
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (h *handlers) fuzzySearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyword string `json:"keyword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Keyword) == "" {
		api.RespondWithError(w, http.StatusBadRequest, "keyword is required")
		return
	}
	records := h.eng.Locator.FuzzySearch(req.Keyword)
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (h *handlers) diff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order   order.Order    `json:"order"`
		Records []order.Record `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Order.PONumber == "" {
		api.RespondWithError(w, http.StatusBadRequest, "order.po_number is required")
		return
	}
	actions := diffengine.Diff(&req.Order, req.Records, h.eng.Locator)

	// Surface lines the locator could not place so operators can fix the
	// mapping before committing.
	var issues []history.Issue
	for i := range actions {
		a := &actions[i]
		if a.Type == order.ActionNew && a.Schedule == nil {
			issues = append(issues, history.Issue{
				Category: "unresolved_sku",
				Title:    fmt.Sprintf("未找到排期位置: %s", a.SKU),
				SKU:      a.SKU,
				Tip:      "检查SKU对照表或手动选择排期文件",
				Time:     time.Now().Format(config.LedgerTimeFmt),
			})
		}
	}
	if len(issues) > 0 {
		if err := h.eng.History.AddIssues(r.Context(), issues); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"actions":    actions,
		"unresolved": len(issues),
	})
}

func (h *handlers) commit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Orders []order.Batch `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Orders) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, "orders is required")
		return
	}
	res := h.eng.Writer.Commit(req.Orders)
	h.recordCommit(r, req.Orders, res)
	api.RespondWithJSON(w, http.StatusOK, res)
}

// recordCommit writes the audit trail and failure issues for a batch.
func (h *handlers) recordCommit(r *http.Request, batches []order.Batch, res *writer.BatchResult) {
	files := make([]string, 0, len(res.Results))
	for _, fr := range res.Results {
		files = append(files, fr.File)
	}
	for _, b := range batches {
		detail := actionSummary(b.Actions)
		rec := history.Record{
			Time:   time.Now().Format(config.HistoryTimeFmt),
			PO:     b.Header.PONumber,
			Action: "batch_write",
			Detail: detail,
			Files:  strings.Join(files, ", "),
		}
		_ = h.eng.History.AddRecord(r.Context(), rec)
	}
	if len(res.Failed) == 0 {
		return
	}
	issues := make([]history.Issue, 0, len(res.Failed))
	for _, fr := range res.Failed {
		issues = append(issues, history.Issue{
			Category: "save_failed",
			Title:    fr.Reason,
			Filename: fr.File,
			Tip:      "关闭文件后使用 retry-now 重试",
			Time:     time.Now().Format(config.LedgerTimeFmt),
		})
	}
	_ = h.eng.History.AddIssues(r.Context(), issues)
}

func actionSummary(actions []order.Action) string {
	counts := map[order.ActionType]int{}
	for _, a := range actions {
		counts[a.Type]++
	}
	parts := []string{}
	if n := counts[order.ActionNew]; n > 0 {
		parts = append(parts, fmt.Sprintf("新增%d", n))
	}
	if n := counts[order.ActionModify]; n > 0 {
		parts = append(parts, fmt.Sprintf("修改%d", n))
	}
	if n := counts[order.ActionCancel]; n > 0 {
		parts = append(parts, fmt.Sprintf("取消%d", n))
	}
	return strings.Join(parts, " ")
}

func (h *handlers) progress(w http.ResponseWriter, r *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, h.eng.Writer.Progress())
}

func (h *handlers) deleteRows(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []writer.DeleteEntry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Entries) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, "entries is required")
		return
	}
	api.RespondWithJSON(w, http.StatusOK, h.eng.Writer.DeleteEntries(req.Entries))
}

// reentry deletes the named rows and rewrites the batches in one call, for
// redoing an order whose rows landed wrong.
func (h *handlers) reentry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Deletes []writer.DeleteEntry `json:"deletes"`
		Orders  []order.Batch        `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Orders) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, "orders is required")
		return
	}
	var deleted *writer.DeleteResult
	if len(req.Deletes) > 0 {
		deleted = h.eng.Writer.DeleteEntries(req.Deletes)
	}
	res := h.eng.Writer.Commit(req.Orders)
	h.recordCommit(r, req.Orders, res)
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"deleted": deleted,
		"write":   res,
	})
}

func (h *handlers) listFiles(w http.ResponseWriter, r *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"files": h.eng.Corpus.ListScheduleFiles(),
	})
}

func (h *handlers) fileStatus(w http.ResponseWriter, r *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"statuses": h.eng.Corpus.FileStatuses(),
	})
}

func (h *handlers) manualRef(w http.ResponseWriter, r *http.Request) {
	var req struct {
		File  string `json:"file"`
		Sheet string `json:"sheet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.File == "" || req.Sheet == "" {
		api.RespondWithError(w, http.StatusBadRequest, "file and sheet are required")
		return
	}
	ref, err := corpus.ManualFindRef(req.File, req.Sheet)
	if err != nil {
		api.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, ref)
}

func (h *handlers) mappingInfo(w http.ResponseWriter, r *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, h.eng.Mapping.Summary())
}

func (h *handlers) mappingEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action   string   `json:"action"`
		SKU      string   `json:"sku"`
		Keywords []string `json:"keywords"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	action := skumap.EditAction(req.Action)
	if action != skumap.EditAdd && action != skumap.EditUpdate {
		api.RespondWithError(w, http.StatusBadRequest, "action must be add or update")
		return
	}
	if req.SKU == "" || len(req.Keywords) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, "sku and keywords are required")
		return
	}
	total, err := h.eng.Mapping.Edit(action, req.SKU, req.Keywords)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, skumap.ErrUnknownSKU) {
			status = http.StatusNotFound
		}
		api.RespondWithError(w, status, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "total": total})
}

func (h *handlers) mappingDelete(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	total, err := h.eng.Mapping.Edit(skumap.EditDelete, key, nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, skumap.ErrUnknownSKU) {
			status = http.StatusNotFound
		}
		api.RespondWithError(w, status, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "total": total})
}

func (h *handlers) undoInfo(w http.ResponseWriter, r *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, h.eng.Undo.Info())
}

func (h *handlers) undoRestore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var (
		res *undo.RestoreResult
		err error
	)
	if len(req.IDs) == 0 {
		res, err = h.eng.Undo.RestoreLast()
	} else {
		res, err = h.eng.Undo.Restore(req.IDs)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, undo.ErrNothingToUndo) {
			status = http.StatusNotFound
		}
		api.RespondWithError(w, status, err.Error())
		return
	}
	h.eng.Corpus.Invalidate()
	api.RespondWithJSON(w, http.StatusOK, res)
}

func (h *handlers) pendingRetries(w http.ResponseWriter, r *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"pending": h.eng.Undo.PendingRetries(),
	})
}

func (h *handlers) retryNow(w http.ResponseWriter, r *http.Request) {
	published, stillFailed := h.eng.Writer.RetryPending()
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"published": published,
		"pending":   stillFailed,
	})
}

func (h *handlers) scheduledList(w http.ResponseWriter, r *http.Request) {
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": h.eng.Undo.ScheduledTasks(),
	})
}

func (h *handlers) scheduledAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time   string        `json:"time"`
		Orders []order.Batch `json:"orders"`
		Label  string        `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := time.Parse(config.RetryClockLayout, req.Time); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "time must be HH:MM")
		return
	}
	if len(req.Orders) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, "orders is required")
		return
	}
	task := undo.ScheduledTask{
		ID:      fmt.Sprintf("%s-%s", time.Now().Format(config.BatchIDLayout), uuid.NewString()[:8]),
		Time:    req.Time,
		Orders:  req.Orders,
		Label:   req.Label,
		Created: time.Now().Format(config.LedgerTimeFmt),
		Status:  "pending",
	}
	if err := h.eng.Undo.AddScheduledTask(task); err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": task.ID})
}

func (h *handlers) scheduledCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.eng.Undo.CancelScheduledTask(id); err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondWithResult(w, true, "")
}

func (h *handlers) historyList(w http.ResponseWriter, r *http.Request) {
	records, err := h.eng.History.Records(r.Context())
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"history": records})
}

func (h *handlers) issuesList(w http.ResponseWriter, r *http.Request) {
	issues, err := h.eng.History.Issues(r.Context())
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"issues": issues})
}

func (h *handlers) issuesClear(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.History.ClearIssues(r.Context()); err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.RespondWithResult(w, true, "")
}

func (h *handlers) yellowRows(w http.ResponseWriter, r *http.Request) {
	useCache := r.URL.Query().Get("refresh") == ""
	rows := h.eng.Corpus.ScanYellowRows(useCache, nil)
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"rows":  rows,
		"count": len(rows),
	})
}

func (h *handlers) promoteYellow(w http.ResponseWriter, r *http.Request) {
	copied, masterName, err := h.eng.Corpus.CopyToMaster(nil)
	if err != nil {
		api.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"copied": copied,
		"master": masterName,
	})
}

func (h *handlers) clearMasterYellow(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.eng.Corpus.ClearMasterYellow()
	if err != nil {
		api.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"cleared": cleared})
}
