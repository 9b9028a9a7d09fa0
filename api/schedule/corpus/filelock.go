package corpus

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"ScheduleSync/internal/config"
)

// ErrFileBusy marks a workbook locked by an editor or another writer.
var ErrFileBusy = errors.New("schedule file is busy or read only")

var (
	fileLocksMu sync.Mutex
	fileLocks   = map[string]chan struct{}{}
)

// AcquireFile takes the process-wide write lock for a workbook, giving up
// after the configured timeout. Batch commits and master promotion both go
// through here, so a commit targeting the master can never interleave with
// a yellow-row promotion.
func AcquireFile(path string) (release func(), err error) {
	fileLocksMu.Lock()
	ch, ok := fileLocks[path]
	if !ok {
		ch = make(chan struct{}, 1)
		fileLocks[path] = ch
	}
	fileLocksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-time.After(config.FileLockTimeout):
		return nil, fmt.Errorf("%w: waited %s for %s", ErrFileBusy, config.FileLockTimeout, filepath.Base(path))
	}
}
