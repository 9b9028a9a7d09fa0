package corpus

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"
)

func TestIsMaterialSheet(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"布料MA", true},
		{"MA包装", true},
		{"MA彩盒半成品", true},
		{"游水MA彩盒", false}, // product prefix keeps the sheet
		{"排期", false},
		{"MARCH", false}, // leftover letters mean a real sheet name
	}
	for _, c := range cases {
		if got := IsMaterialSheet(c.name); got != c.want {
			t.Errorf("IsMaterialSheet(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSearchableSheet(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"户外", true},
		{"Sheet1", true},
		{"取消订单", false},
		{"对应货号", false},
		{"总排期", false},
		{"旧排期", false},
		{"样板", false},
		{"布料MA", false},
	}
	for _, c := range cases {
		if got := SearchableSheet(c.name); got != c.want {
			t.Errorf("SearchableSheet(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestFilePredicates(t *testing.T) {
	if !IsMasterFile("2025总排期.xlsx") || IsMasterFile("户外排期.xlsx") {
		t.Error("IsMasterFile")
	}
	if !IsTemplateFile("排期样板.xlsx") || IsTemplateFile("户外排期.xlsx") {
		t.Error("IsTemplateFile")
	}
	if !InLegacyDir(filepath.Join("z", "旧排期", "a.xlsx")) || InLegacyDir("z/a.xlsx") {
		t.Error("InLegacyDir")
	}
	if !HasScheduleMark("户外排期2025.xlsx") || HasScheduleMark("对照表.xlsx") {
		t.Error("HasScheduleMark")
	}
}

func TestListFilesSkipsSidecars(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"排期A.xlsx", "~$排期A.xlsx", "readme.txt", "old.xls"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := New(dir)
	files := c.ListFiles()
	if len(files) != 2 {
		t.Fatalf("files = %v", files)
	}
	for _, fp := range files {
		base := filepath.Base(fp)
		if base != "排期A.xlsx" && base != "old.xls" {
			t.Errorf("unexpected file %s", base)
		}
	}
}

func TestFindMaster(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "户外排期.xlsx"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "2025总排期.xlsx"), []byte("x"), 0o644)
	c := New(dir)
	if got := filepath.Base(c.FindMaster()); got != "2025总排期.xlsx" {
		t.Errorf("FindMaster = %q", got)
	}
}

func utf16LE(s string) []byte {
	u16 := utf16.Encode([]rune(s))
	out := make([]byte, len(u16)*2)
	for i, u := range u16 {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func TestReadLockUserLengthPrefixed(t *testing.T) {
	dir := t.TempDir()
	name := "王小明"
	raw := append([]byte{byte(len([]rune(name)))}, utf16LE(name)...)
	lock := filepath.Join(dir, "~$排期A.xlsx")
	if err := os.WriteFile(lock, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readLockUser(lock); got != name {
		t.Errorf("readLockUser = %q, want %q", got, name)
	}
}

func TestReadLockUserASCIIFallback(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "~$排期B.xlsx")
	// No usable length byte, and the UTF-16 decode dies on the leading NUL
	// pair, so only the printable-byte scan is left.
	raw := append([]byte{0x00, 0x00}, []byte("admin")...)
	if err := os.WriteFile(lock, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readLockUser(lock); got != "admin" {
		t.Errorf("readLockUser = %q, want admin", got)
	}
}

func TestReadLockUserEmptyFile(t *testing.T) {
	dir := t.TempDir()
	lock := filepath.Join(dir, "~$排期C.xlsx")
	if err := os.WriteFile(lock, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := readLockUser(lock); got != "unknown" {
		t.Errorf("readLockUser = %q, want unknown", got)
	}
}

func TestFileStatuses(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "排期A.xlsx"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "排期B.xlsx"), []byte("x"), 0o644)

	// The sidecar replaces the first two characters of the workbook name.
	name := "李四"
	raw := append([]byte{byte(len([]rune(name)))}, utf16LE(name)...)
	os.WriteFile(filepath.Join(dir, "~$A.xlsx"), raw, 0o644)

	c := New(dir)
	byName := map[string]FileStatus{}
	for _, st := range c.FileStatuses() {
		byName[st.FileName] = st
	}
	a := byName["排期A.xlsx"]
	if a.Status != "locked" || a.User != name || a.LockType != "editing" {
		t.Errorf("排期A status = %+v", a)
	}
	if b := byName["排期B.xlsx"]; b.Status != "available" {
		t.Errorf("排期B status = %+v", b)
	}
}
