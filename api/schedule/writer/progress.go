package writer

import "sync"

// Progress is a snapshot of the running batch, polled by the UI.
type Progress struct {
	Running bool   `json:"running"`
	Current string `json:"current"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
}

type progress struct {
	mu sync.Mutex
	p  Progress
}

func (pr *progress) start(total int) {
	pr.mu.Lock()
	pr.p = Progress{Running: true, Current: "分析中...", Total: total}
	pr.mu.Unlock()
}

func (pr *progress) step(done int, current string) {
	pr.mu.Lock()
	pr.p.Done = done
	pr.p.Current = current
	pr.mu.Unlock()
}

func (pr *progress) finish() {
	pr.mu.Lock()
	pr.p = Progress{Running: false, Current: "完成", Done: pr.p.Total, Total: pr.p.Total}
	pr.mu.Unlock()
}

// Progress returns the current batch progress.
func (w *Writer) Progress() Progress {
	w.prog.mu.Lock()
	defer w.prog.mu.Unlock()
	return w.prog.p
}
