package jobs

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ScheduleSync/api/schedule"
	"ScheduleSync/api/schedule/history"
	"ScheduleSync/api/schedule/writer"
	"ScheduleSync/internal/config"
	"ScheduleSync/internal/logger"
	"ScheduleSync/internal/serviceiface"

	"github.com/robfig/cron/v3"
)

// SweepService drives the two background queues: staged files whose
// destination was busy at publish time, and re-entry batches armed for a
// wall-clock time. Both are swept on one cron schedule.
type SweepService struct {
	config map[string]interface{}
	cron   *cron.Cron
}

func NewSweepService(cfg map[string]interface{}) serviceiface.Service {
	return &SweepService{config: cfg}
}

func (s *SweepService) Name() string {
	return "jobs"
}

func (s *SweepService) Start() error {
	every := config.DefaultRetrySchedule
	if s.config != nil {
		if v, ok := s.config["retry_schedule"].(string); ok && v != "" {
			every = v
		}
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(every, s.sweep); err != nil {
		return fmt.Errorf("register retry sweep: %w", err)
	}
	s.cron.Start()

	logger.Audit("jobs service started, sweep schedule %q", every)
	return nil
}

func (s *SweepService) Stop() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return nil
}

func (s *SweepService) sweep() {
	eng := schedule.GetEngine()
	if eng == nil {
		return
	}
	s.retryPending(eng)
	s.runScheduled(eng)
}

// retryPending re-publishes staged copies whose destination was locked.
func (s *SweepService) retryPending(eng *schedule.Engine) {
	published, stillFailed := eng.Writer.RetryPending()
	if len(published) == 0 && len(stillFailed) == 0 {
		return
	}
	for _, item := range published {
		rec := history.Record{
			Time:   time.Now().Format(config.HistoryTimeFmt),
			PO:     item.PO,
			Action: "auto_retry",
			Detail: fmt.Sprintf("重试保存成功: %s", item.File),
			Files:  item.File,
		}
		if err := eng.History.AddRecord(context.Background(), rec); err != nil {
			log.Printf("[jobs] history record: %v", err)
		}
	}
	log.Printf("[jobs] retry sweep: %d published, %d still pending",
		len(published), len(stillFailed))
}

// runScheduled fires re-entry batches whose HH:MM has come around.
func (s *SweepService) runScheduled(eng *schedule.Engine) {
	tasks := eng.Undo.ScheduledTasks()
	now := time.Now().Format(config.RetryClockLayout)

	changed := false
	for i := range tasks {
		t := &tasks[i]
		if t.Status != "pending" || t.Time > now {
			continue
		}
		res := eng.Writer.Commit(t.Orders)
		t.DoneTime = time.Now().Format(config.LedgerTimeFmt)
		if len(res.Failed) > 0 {
			t.Status = "error"
			t.Result = describeFailures(res.Failed)
		} else {
			t.Status = "done"
			t.Result = fmt.Sprintf("已写入 %d 个文件", len(res.Results))
		}
		changed = true
		logger.Audit("scheduled re-entry %s finished: %s", t.ID, t.Result)
	}
	if changed {
		if err := eng.Undo.SaveScheduledTasks(tasks); err != nil {
			log.Printf("[jobs] scheduled queue save: %v", err)
		}
	}
}

func describeFailures(failed []writer.FileResult) string {
	parts := make([]string, 0, len(failed))
	for _, f := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", f.File, f.Reason))
	}
	return strings.Join(parts, "; ")
}
