package locate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"ScheduleSync/api/schedule/corpus"
	"ScheduleSync/api/schedule/order"
	"ScheduleSync/api/schedule/skumap"
)

// buildWorkbook writes an .xlsx with the given sheets; the first row of
// each sheet is the header.
func buildWorkbook(t *testing.T, dir, name string, sheetRows map[string][][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	first := true
	for sn, rows := range sheetRows {
		if first {
			f.SetSheetName("Sheet1", sn)
			first = false
		} else {
			f.NewSheet(sn)
		}
		for r, row := range rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				f.SetCellValue(sn, cell, v)
			}
		}
	}
	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

var scheduleHeader = []interface{}{
	"接单日期", "客户", "国家", "PO号", "客户PO", "SKU", "ITEM#", "品名",
}

func scheduleRows() [][]interface{} {
	return [][]interface{}{
		scheduleHeader,
		{"2025-05-20", "客户A", "美国", "4500000111", "CPOA", "", "92105-S001", "玩具A"},
		{"2025-05-21", "客户B", "美国", "PO:4500000222", "CPOB", "", "92105", "玩具B"},
		{"2025-05-22", "客户C", "德国", "4500000333", "CPOC", "", "92105", "玩具C"},
	}
}

func newTestLocator(t *testing.T, root string) *Locator {
	t.Helper()
	m := skumap.New(filepath.Join(root, "data"), func() string { return "" })
	return New(corpus.New(root), m)
}

func TestAutoFindSpecTierBeatsExactCount(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "92105排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	// Master schedules are never auto-find targets.
	buildWorkbook(t, root, "总排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	ref := l.AutoFind("92105-S001")
	if ref == nil {
		t.Fatal("no reference found")
	}
	if ref.FileName != "92105排期.xlsx" {
		t.Errorf("file = %s", ref.FileName)
	}
	if ref.Sheet != "户外" || ref.Ref != 2 {
		t.Errorf("ref = %s row %d, want 户外 row 2", ref.Sheet, ref.Ref)
	}
	// One spec-level hit outranks the two base-code rows.
	if ref.Count != 1 {
		t.Errorf("count = %d", ref.Count)
	}
}

func TestAutoFindExactTier(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "92105排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	// No row carries this spec suffix, the base code still matches all
	// three rows and the reference lands on the last named one.
	ref := l.AutoFind("92105-S009")
	if ref == nil {
		t.Fatal("no reference found")
	}
	if ref.Ref != 4 || ref.Count != 3 {
		t.Errorf("ref row %d count %d, want row 4 count 3", ref.Ref, ref.Count)
	}
}

func TestAutoFindPrefixTier(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "92105排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	ref := l.AutoFind("921056")
	if ref == nil {
		t.Fatal("no reference found")
	}
	if ref.Count != 3 {
		t.Errorf("count = %d", ref.Count)
	}
}

func TestAutoFindPrefersEmbeddedYear(t *testing.T) {
	root := t.TempDir()
	rows := [][]interface{}{
		scheduleHeader,
		{"2025-05-20", "客户A", "美国", "4500000444", "CPOD", "", "9298", "玩具D"},
	}
	buildWorkbook(t, root, "9298排期2024.xlsx", map[string][][]interface{}{"户外": rows})
	buildWorkbook(t, root, "9298排期2025.xlsx", map[string][][]interface{}{"户外": rows})
	l := newTestLocator(t, root)

	ref := l.AutoFind("9298-2025")
	if ref == nil {
		t.Fatal("no reference found")
	}
	if ref.FileName != "9298排期2025.xlsx" {
		t.Errorf("file = %s, year filter not applied", ref.FileName)
	}

	// A year matching no file relaxes back to the plain name search.
	ref = l.AutoFind("9298-2026")
	if ref == nil {
		t.Fatal("relaxed search found nothing")
	}
	if ref.FileName != "9298排期2024.xlsx" {
		t.Errorf("file = %s after relaxing year", ref.FileName)
	}
}

func TestAutoFindMappingSheetHintFallsBackToLastRow(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "河源排期.xlsx", map[string][][]interface{}{
		"宠物": {
			scheduleHeader,
			{"2025-05-20", "客户A", "美国", "4500000555", "CPOE", "", "99999", "玩具E"},
			{"2025-05-21", "客户B", "美国", "4500000556", "CPOF", "", "88888", "玩具F"},
		},
		"户外": scheduleRows(),
	})
	dataDir := filepath.Join(root, "data")
	os.MkdirAll(dataDir, 0o755)
	raw, _ := json.Marshal(map[string]interface{}{
		"mapping":       map[string][]string{"15745": {"河源"}},
		"sheet_mapping": map[string]string{"15745": "宠物"},
	})
	os.WriteFile(filepath.Join(dataDir, "sku_mapping.json"), raw, 0o644)
	l := newTestLocator(t, root)

	ref := l.AutoFind("15745")
	if ref == nil {
		t.Fatal("no reference found")
	}
	if ref.Sheet != "宠物" {
		t.Errorf("sheet = %s, hint not honored", ref.Sheet)
	}
	// No code match inside the hinted sheet, append after the last row.
	if ref.Ref != 3 {
		t.Errorf("ref row = %d", ref.Ref)
	}
}

func TestAutoFindHintMatchingNoSheetSkipsFile(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "河源排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	dataDir := filepath.Join(root, "data")
	os.MkdirAll(dataDir, 0o755)
	raw, _ := json.Marshal(map[string]interface{}{
		"mapping":       map[string][]string{"15745": {"河源"}},
		"sheet_mapping": map[string]string{"15745": "水上"},
	})
	os.WriteFile(filepath.Join(dataDir, "sku_mapping.json"), raw, 0o644)
	l := newTestLocator(t, root)

	// The hint is authoritative: no matching sheet means the keyword file
	// is skipped entirely, and nothing else carries this code.
	if ref := l.AutoFind("15745"); ref != nil {
		t.Errorf("unexpected reference %+v", ref)
	}
}

func TestAutoFindUnknownSKU(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "92105排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	if ref := l.AutoFind("77777"); ref != nil {
		t.Errorf("unexpected reference %+v", ref)
	}
}

func TestBatchSearchPOs(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "排期A.xlsx", map[string][][]interface{}{
		"户外": scheduleRows(),
		"取消订单": {
			scheduleHeader,
			{"2025-01-01", "客户X", "美国", "4500000111", "CPOX", "", "11111", "旧玩具"},
		},
	})
	buildWorkbook(t, root, "总排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	res := l.BatchSearchPOs([]string{"4500000111", "4500000222", "9999999"})
	if got := res["4500000111"]; len(got) != 1 || got[0].Row != 2 {
		t.Fatalf("4500000111 hits = %+v", got)
	}
	if v := res["4500000111"][0].Data["D"]; v != "4500000111" {
		t.Errorf("D = %q", v)
	}
	// Substring match inside a prefixed cell.
	if got := res["4500000222"]; len(got) != 1 || got[0].Row != 3 {
		t.Errorf("4500000222 hits = %+v", got)
	}
	if got := res["9999999"]; len(got) != 0 {
		t.Errorf("9999999 hits = %+v", got)
	}
}

func TestSearchPO(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "排期A.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	recs := l.SearchPO(" 4500000333 ")
	if len(recs) != 1 || recs[0].Row != 4 {
		t.Fatalf("hits = %+v", recs)
	}
	if recs[0].Sheet != "户外" || recs[0].FileName != "排期A.xlsx" {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestFuzzySearch(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "排期A.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	recs := l.FuzzySearch("cpoa")
	if len(recs) != 1 || recs[0].Row != 2 {
		t.Fatalf("hits = %+v", recs)
	}
	if recs[0].HitCol != "客户PO" {
		t.Errorf("hit col = %s", recs[0].HitCol)
	}

	// Digits-only fallback reaches formatted numbers.
	recs = l.FuzzySearch("45-0000-0111")
	if len(recs) != 1 || recs[0].HitCol != "PO号" {
		t.Fatalf("numeric fallback hits = %+v", recs)
	}
}

func TestSearchBySKUs(t *testing.T) {
	root := t.TempDir()
	buildWorkbook(t, root, "92105排期.xlsx", map[string][][]interface{}{"户外": scheduleRows()})
	l := newTestLocator(t, root)

	recs := l.SearchBySKUs([]order.OrderLine{{SKU: "92105-S001"}})
	if len(recs) != 3 {
		t.Fatalf("hits = %d, want all base-code rows", len(recs))
	}
	for _, r := range recs {
		if r.Sheet != "户外" {
			t.Errorf("record in %s", r.Sheet)
		}
	}
}
