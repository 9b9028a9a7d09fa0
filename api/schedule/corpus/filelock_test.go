package corpus

import (
	"testing"
	"time"
)

func TestAcquireFileSerializes(t *testing.T) {
	path := t.TempDir() + "/排期.xlsx"
	release, err := AcquireFile(path)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan struct{})
	go func() {
		r2, err := AcquireFile(path)
		if err == nil {
			r2()
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("lock acquired twice")
	case <-time.After(100 * time.Millisecond):
	}
	release()
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("lock never handed over")
	}
}

// Master promotion holds the same per-file lock batch commits use, so a
// commit targeting the master cannot interleave with a yellow-row sweep.
func TestMasterPromotionWaitsForFileLock(t *testing.T) {
	root := t.TempDir()
	yellowFixture(t, root)
	master := masterFixture(t, root)
	c := New(root)

	release, err := AcquireFile(master)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, _, err := c.CopyToMaster(nil); err != nil {
			t.Errorf("promote: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatal("promotion ran while the master lock was held")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("promotion never ran after release")
	}
}
