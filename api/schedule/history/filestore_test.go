package history

import (
	"context"
	"fmt"
	"testing"
)

func TestFileStoreRecords(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	if err := s.AddRecord(ctx, Record{PO: "4500000001", Action: "batch_write", Detail: "新增 1 修改 2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRecord(ctx, Record{PO: "4500000002", Action: "auto_retry", Detail: "重试保存成功", Time: "2025-06-20 09:00"}); err != nil {
		t.Fatal(err)
	}

	recs, err := s.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d", len(recs))
	}
	if recs[0].Time == "" {
		t.Error("missing time not stamped")
	}
	if recs[1].Time != "2025-06-20 09:00" {
		t.Errorf("explicit time overwritten: %q", recs[1].Time)
	}
}

func TestFileStoreIssuesCapAndClear(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	var batch []Issue
	for i := 0; i < issueFeedCap+10; i++ {
		batch = append(batch, Issue{Category: "unresolved_sku", Title: fmt.Sprintf("未找到排期位置: SKU%d", i)})
	}
	if err := s.AddIssues(ctx, batch); err != nil {
		t.Fatal(err)
	}
	issues, err := s.Issues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != issueFeedCap {
		t.Fatalf("issues = %d, want cap %d", len(issues), issueFeedCap)
	}
	// Oldest entries age out first.
	if issues[0].Title != "未找到排期位置: SKU10" {
		t.Errorf("first issue = %s", issues[0].Title)
	}
	if issues[0].Time == "" {
		t.Error("issue not timestamped")
	}

	if err := s.AddIssues(ctx, nil); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearIssues(ctx); err != nil {
		t.Fatal(err)
	}
	issues, _ = s.Issues(ctx)
	if len(issues) != 0 {
		t.Errorf("issues after clear = %d", len(issues))
	}
}
