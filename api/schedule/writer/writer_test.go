package writer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/order"
	"ScheduleSync/api/schedule/undo"
)

const testSheet = "户外"

var fixtureHeaders = []string{
	"接单日期", "客户", "国家", "PO号", "客户PO", "SKU", "ITEM#", "品名",
	"数量", "内箱", "外箱", "总箱数", "出货日期", "验货期", "备注", "单价",
}

// fixtureWorkbook builds a small schedule with three dated rows (4..6).
func fixtureWorkbook(t *testing.T, dir, name string) string {
	t.Helper()
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", testSheet)
	for c, h := range fixtureHeaders {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		f.SetCellValue(testSheet, cell, h)
	}
	rows := [][]interface{}{
		{"2025-05-20", "客户A", "美国", "4500000001", "CPOA", "92105", "92105", "玩具A",
			1000, 24, 48, 21, "2025-06-10", "2025-06-06", "备注A", 2.5},
		{"2025-05-22", "客户A", "美国", "4500000002", "CPOB", "92106", "92106", "玩具B",
			2000, 24, 48, 42, "2025-06-15", "2025-06-11", "备注B", 2.8},
		{"2025-05-25", "客户C", "德国", "4500000003", "CPOC", "15745", "15745", "玩具C",
			3000, 24, 48, 63, "2025-06-25", "2025-06-21", "备注C", 3.1},
	}
	for i, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+4)
			f.SetCellValue(testSheet, cell, v)
		}
	}
	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

func newTestWriter(t *testing.T) (*Writer, *undo.Store, string) {
	t.Helper()
	root := t.TempDir()
	u := undo.NewStore(filepath.Join(root, "data"), filepath.Join(root, "data", "undo"))
	w := New(corpus.New(root), u, filepath.Join(root, "batch"))
	return w, u, root
}

func cellValue(t *testing.T, path, sheet, cell string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	v, err := f.GetCellValue(sheet, cell)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestInspectionDate(t *testing.T) {
	day := func(s string) time.Time {
		d, _ := time.Parse("2006-01-02", s)
		return d
	}
	cases := []struct {
		ship  string
		sheet string
		want  string
	}{
		{"2025-06-20", "户外", "2025-06-16"},  // Friday ship, Monday inspection
		{"2025-06-18", "户外", "2025-06-13"},  // lands Saturday, rolls to Friday
		{"2025-06-19", "户外", "2025-06-13"},  // lands Sunday, rolls to Friday
		{"2025-06-20", "河源", "2025-06-18"},  // short lead
		{"2025-06-20", "15746", "2025-06-18"}, // short lead
	}
	for _, c := range cases {
		got := InspectionDate(day(c.ship), c.sheet).Format("2006-01-02")
		if got != c.want {
			t.Errorf("InspectionDate(%s, %s) = %s, want %s", c.ship, c.sheet, got, c.want)
		}
	}
}

func TestBuildNoteFiltersPackagingByItem(t *testing.T) {
	h := &order.Order{
		TrackingCode:  "TRACK-1",
		PackagingInfo: "92105 每箱24个\n15745 每箱12个\n全部贴防伪标",
		Remark:        "加急",
	}
	note := BuildNote(h, "92105")
	want := "TRACK-1\n92105 每箱24个\n全部贴防伪标\n加急"
	if note != want {
		t.Errorf("note = %q, want %q", note, want)
	}
}

func TestBuildNoteNoItemKeepsAll(t *testing.T) {
	h := &order.Order{PackagingInfo: "92105 每箱24个\n15745 每箱12个"}
	note := BuildNote(h, "")
	if note != h.PackagingInfo {
		t.Errorf("note = %q", note)
	}
}

func TestCommitModify(t *testing.T) {
	w, u, root := newTestWriter(t)
	z := fixtureWorkbook(t, root, "户外排期.xlsx")

	batch := order.Batch{
		Header: order.Order{PONumber: "4500000002"},
		Actions: []order.Action{{
			Type:    order.ActionModify,
			SKU:     "92106",
			Record:  &order.Record{File: z, Sheet: testSheet, Row: 5},
			Changes: map[string]string{"I": "2500"},
		}},
	}
	res := w.Commit([]order.Batch{batch})
	if len(res.Failed) != 0 || len(res.Results) != 1 {
		t.Fatalf("commit result = %+v", res)
	}
	if !res.Results[0].Published {
		t.Fatal("file not published")
	}
	if v := cellValue(t, z, testSheet, "I5"); v != "2500" {
		t.Errorf("I5 = %q after modify", v)
	}
	if info := u.Info(); !info.Available {
		t.Error("no undo entry recorded")
	}
}

func TestCommitCancelArchivesRow(t *testing.T) {
	w, _, root := newTestWriter(t)
	z := fixtureWorkbook(t, root, "户外排期.xlsx")

	batch := order.Batch{
		Header: order.Order{PONumber: "4500000001"},
		Actions: []order.Action{{
			Type:   order.ActionCancel,
			SKU:    "92105",
			Record: &order.Record{File: z, Sheet: testSheet, Row: 4},
		}},
	}
	res := w.Commit([]order.Batch{batch})
	if len(res.Failed) != 0 {
		t.Fatalf("commit failed: %+v", res.Failed)
	}

	// The row moved to the cancellation archive and the schedule closed up.
	if v := cellValue(t, z, "取消订单", "D1"); v != "4500000001" {
		t.Errorf("archive D1 = %q", v)
	}
	if v := cellValue(t, z, testSheet, "D4"); v != "4500000002" {
		t.Errorf("D4 = %q after cancel, rows did not shift", v)
	}
}

func TestCommitCancelOnMasterDeletesOnly(t *testing.T) {
	w, _, root := newTestWriter(t)
	z := fixtureWorkbook(t, root, "总排期.xlsx")

	batch := order.Batch{
		Header: order.Order{PONumber: "4500000001"},
		Actions: []order.Action{{
			Type:   order.ActionCancel,
			SKU:    "92105",
			Record: &order.Record{File: z, Sheet: testSheet, Row: 4},
		}},
	}
	res := w.Commit([]order.Batch{batch})
	if len(res.Failed) != 0 {
		t.Fatalf("commit failed: %+v", res.Failed)
	}

	// The master keeps no cancellation archive.
	f, err := excelize.OpenFile(z)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, sn := range f.GetSheetList() {
		if sn == "取消订单" {
			t.Fatal("archive sheet created on master")
		}
	}
	if v, _ := f.GetCellValue(testSheet, "D4"); v != "4500000002" {
		t.Errorf("D4 = %q, row not removed", v)
	}
}

func TestCommitNewInsertsByShipDate(t *testing.T) {
	w, _, root := newTestWriter(t)
	z := fixtureWorkbook(t, root, "户外排期.xlsx")

	batch := order.Batch{
		Header: order.Order{
			PONumber: "4501234567",
			PODate:   "2025-06-01",
			Customer: "客户B",
			ShipDate: "2025-06-20",
		},
		Actions: []order.Action{{
			Type: order.ActionNew,
			SKU:  "15760UQ1",
			Line: &order.OrderLine{
				LineNo: "10", SKU: "15760UQ1", SkuSpec: "15760UQ1",
				Qty: 5000, Price: 3.2, CustomerPO: "CPO-NEW",
			},
			Schedule: &order.ScheduleRef{
				File: z, FileName: filepath.Base(z), Sheet: testSheet, Ref: 4, MaxCol: 16,
			},
		}},
	}
	res := w.Commit([]order.Batch{batch})
	if len(res.Failed) != 0 {
		t.Fatalf("commit failed: %+v", res.Failed)
	}

	// Ship 06-20 sorts before the 06-25 row, so the insert lands on row 6.
	if v := cellValue(t, z, testSheet, "D6"); v != "4501234567" {
		t.Errorf("D6 = %q, new row not at ship-date position", v)
	}
	// SKU column carries the PO-line composite.
	if v := cellValue(t, z, testSheet, "F6"); v != "4501234567-10" {
		t.Errorf("F6 = %q", v)
	}
	// ITEM# takes the spec code; quantity is the order's.
	if v := cellValue(t, z, testSheet, "G6"); v != "15760UQ1" {
		t.Errorf("G6 = %q", v)
	}
	if v := cellValue(t, z, testSheet, "I6"); v != "5000" {
		t.Errorf("I6 = %q", v)
	}
	// Product name is inherited from the reference row.
	if v := cellValue(t, z, testSheet, "H6"); v != "玩具A" {
		t.Errorf("H6 = %q, reference values not inherited", v)
	}
	// The displaced row follows the insert.
	if v := cellValue(t, z, testSheet, "D7"); v != "4500000003" {
		t.Errorf("D7 = %q", v)
	}
}

func TestCommitCancelThenModifyCompensatesRows(t *testing.T) {
	w, _, root := newTestWriter(t)
	z := fixtureWorkbook(t, root, "户外排期.xlsx")

	batch := order.Batch{
		Header: order.Order{PONumber: "4500000003"},
		Actions: []order.Action{
			{
				Type:   order.ActionCancel,
				SKU:    "92105",
				Record: &order.Record{File: z, Sheet: testSheet, Row: 4},
			},
			{
				Type:    order.ActionModify,
				SKU:     "15745",
				Record:  &order.Record{File: z, Sheet: testSheet, Row: 6},
				Changes: map[string]string{"I": "3333"},
			},
		},
	}
	res := w.Commit([]order.Batch{batch})
	if len(res.Failed) != 0 {
		t.Fatalf("commit failed: %+v", res.Failed)
	}
	// Row 6 became row 5 after the cancel above it.
	if v := cellValue(t, z, testSheet, "I5"); v != "3333" {
		t.Errorf("I5 = %q, deletion shift not compensated", v)
	}
}

func TestCommitUnresolvedNewSkipped(t *testing.T) {
	w, _, _ := newTestWriter(t)
	batch := order.Batch{
		Header: order.Order{PONumber: "4500000009"},
		Actions: []order.Action{{
			Type: order.ActionNew,
			SKU:  "99999",
			Line: &order.OrderLine{SKU: "99999", Qty: 1},
		}},
	}
	res := w.Commit([]order.Batch{batch})
	if len(res.Results) != 0 || len(res.Failed) != 0 {
		t.Fatalf("unplaceable action must produce no file work: %+v", res)
	}
}

func TestAcquireRelease(t *testing.T) {
	w, _, root := newTestWriter(t)
	path := filepath.Join(root, "a.xlsx")
	release, err := w.acquire(path)
	if err != nil {
		t.Fatal(err)
	}
	release()
	release2, err := w.acquire(path)
	if err != nil {
		t.Fatalf("second acquire after release: %v", err)
	}
	release2()
}

func TestAcquireBlocksSecondWriter(t *testing.T) {
	w, _, root := newTestWriter(t)
	path := filepath.Join(root, "contended.xlsx")

	release, err := w.acquire(path)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan struct{})
	go func() {
		r2, err := w.acquire(path)
		if err != nil {
			t.Errorf("second acquire: %v", err)
			close(got)
			return
		}
		r2()
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("second writer acquired the lock while the first held it")
	case <-time.After(100 * time.Millisecond):
	}

	release()
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("second writer never acquired the lock after release")
	}
}

func TestCommitPublishFailureQueuesRetry(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file modes do not bind for root")
	}
	w, u, root := newTestWriter(t)
	z := fixtureWorkbook(t, root, "户外排期.xlsx")
	if err := os.Chmod(z, 0o444); err != nil {
		t.Fatal(err)
	}

	batch := order.Batch{
		Header: order.Order{PONumber: "4500000002"},
		Actions: []order.Action{{
			Type:    order.ActionModify,
			SKU:     "92106",
			Record:  &order.Record{File: z, Sheet: testSheet, Row: 5},
			Changes: map[string]string{"I": "2500"},
		}},
	}
	res := w.Commit([]order.Batch{batch})
	if len(res.Results) != 0 || len(res.Failed) != 1 {
		t.Fatalf("commit result = %+v", res)
	}
	fr := res.Failed[0]
	if fr.Published || fr.Reason == "" {
		t.Fatalf("failed entry = %+v", fr)
	}

	pending := u.PendingRetries()
	if len(pending) != 1 {
		t.Fatalf("pending queue = %+v", pending)
	}
	if pending[0].PO != "4500000002" || pending[0].ZPath != z {
		t.Errorf("pending item = %+v", pending[0])
	}

	// Destination untouched, staged copy carries the edit.
	if v := cellValue(t, z, testSheet, "I5"); v == "2500" {
		t.Error("read only destination was overwritten")
	}
	if v := cellValue(t, pending[0].Local, testSheet, "I5"); v != "2500" {
		t.Errorf("staged I5 = %q", v)
	}

	// Freeing the destination lets the sweep land it.
	if err := os.Chmod(z, 0o644); err != nil {
		t.Fatal(err)
	}
	published, stillFailed := w.RetryPending()
	if len(published) != 1 || len(stillFailed) != 0 {
		t.Fatalf("retry = %v / %v", published, stillFailed)
	}
	if v := cellValue(t, z, testSheet, "I5"); v != "2500" {
		t.Errorf("I5 = %q after retry", v)
	}
}

func TestRetryPending(t *testing.T) {
	w, u, root := newTestWriter(t)

	good := filepath.Join(root, "staged.xlsx")
	os.WriteFile(good, []byte("staged"), 0o644)
	goodDst := filepath.Join(root, "dst.xlsx")
	os.WriteFile(goodDst, []byte("old"), 0o644)

	u.AddPending(undo.PendingItem{File: "dst.xlsx", Local: good, ZPath: goodDst})
	u.AddPending(undo.PendingItem{
		File: "gone.xlsx", Local: filepath.Join(root, "nope.xlsx"),
		ZPath: filepath.Join(root, "missing", "gone.xlsx"),
	})

	published, stillFailed := w.RetryPending()
	if len(published) != 1 || published[0].File != "dst.xlsx" {
		t.Fatalf("published = %v", published)
	}
	if len(stillFailed) != 1 || stillFailed[0].Retries != 1 {
		t.Fatalf("stillFailed = %+v", stillFailed)
	}
	got, _ := os.ReadFile(goodDst)
	if string(got) != "staged" {
		t.Errorf("destination = %q after retry", got)
	}
	// The queue now only holds the failing item.
	left := u.PendingRetries()
	if len(left) != 1 || left[0].File != "gone.xlsx" {
		t.Errorf("queue = %v", left)
	}
}

func TestDeleteEntries(t *testing.T) {
	w, u, root := newTestWriter(t)
	z := fixtureWorkbook(t, root, "户外排期.xlsx")

	res := w.DeleteEntries([]DeleteEntry{
		{File: z, Sheet: testSheet, Row: 4, SKU: "92105"},
		{File: z, Sheet: testSheet, Row: 5, SKU: "92106"},
	})
	if len(res.Failed) != 0 || len(res.Deleted) != 2 {
		t.Fatalf("delete result = %+v", res)
	}
	if v := cellValue(t, z, testSheet, "D4"); v != "4500000003" {
		t.Errorf("D4 = %q after deletes", v)
	}
	if info := u.Info(); !info.Available {
		t.Error("delete batch not undoable")
	}
}
