package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf16"
)

// FileStatus describes whether a workbook can currently be written.
type FileStatus struct {
	File     string `json:"file"`
	FileName string `json:"fname"`
	Status   string `json:"status"`
	User     string `json:"user"`
	LockType string `json:"lock_type"`
}

// FileStatuses probes every workbook in the corpus. An editor lock sidecar
// (~$ file, which replaces the first two characters of the workbook name) is
// the reliable signal and carries the editor's user name; otherwise an
// open-for-write probe catches read-only shares.
func (c *Corpus) FileStatuses() []FileStatus {
	var results []FileStatus
	if info, err := os.Stat(c.root); err != nil || !info.IsDir() {
		return results
	}

	locks := map[string]string{}
	if entries, err := os.ReadDir(c.root); err == nil {
		for _, e := range entries {
			name := e.Name()
			if strings.HasPrefix(name, "~$") && strings.HasSuffix(name, ".xlsx") {
				locks[name[2:]] = readLockUser(filepath.Join(c.root, name))
			}
		}
	}

	for _, fp := range c.ListFiles() {
		fname := filepath.Base(fp)
		suffix := fname
		if r := []rune(fname); len(r) > 2 {
			suffix = string(r[2:])
		}
		st := FileStatus{File: fp, FileName: fname, Status: "available"}
		if user, held := locks[suffix]; held {
			st.Status = "locked"
			st.User = user
			st.LockType = "editing"
		} else if !Writable(fp) {
			st.Status = "locked"
			st.LockType = "write denied"
		}
		results = append(results, st)
	}
	return results
}

// Writable reports whether the file can be opened for writing right now.
func Writable(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// readLockUser decodes the editor's user name out of a ~$ lock sidecar.
// The usual layout is a length byte followed by a UTF-16LE name; fall back
// to a raw UTF-16 then printable-byte decode.
func readLockUser(lockPath string) string {
	const unknown = "unknown"
	raw, err := os.ReadFile(lockPath)
	if err != nil || len(raw) == 0 {
		return unknown
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}

	nameLen := int(raw[0])
	if nameLen >= 1 && nameLen <= 50 && len(raw) > 1 {
		end := 1 + nameLen*2
		if end > len(raw) {
			end = len(raw)
		}
		if name := decodeUTF16LE(raw[1:end]); name != "" {
			return name
		}
	}
	end := 54
	if end > len(raw) {
		end = len(raw)
	}
	if name := decodeUTF16LE(raw[:end]); len(name) >= 2 {
		return name
	}
	var b strings.Builder
	for _, c := range raw[:end] {
		if c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		}
	}
	if name := strings.TrimSpace(b.String()); name != "" {
		return name
	}
	return unknown
}

func decodeUTF16LE(raw []byte) string {
	if len(raw) < 2 {
		return ""
	}
	u16 := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u16 = append(u16, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	decoded := string(utf16.Decode(u16))
	if i := strings.IndexRune(decoded, 0); i >= 0 {
		decoded = decoded[:i]
	}
	decoded = strings.TrimSpace(decoded)
	for _, r := range decoded {
		if !unicode.IsPrint(r) {
			return ""
		}
	}
	return decoded
}
