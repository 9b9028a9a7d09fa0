package order

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	wsPat       = regexp.MustCompile(`[\s\n]+`)
	itemPat     = regexp.MustCompile(`^(\d+[A-Za-z]*\d*)`)
	specPat     = regexp.MustCompile(`(?i)^(\d+[A-Za-z]*\d*(?:-S\d+)?)`)
	digitsPat   = regexp.MustCompile(`[^0-9]`)
	leadDigits  = regexp.MustCompile(`^\d+`)
	isoDatePat  = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	dmyDatePat  = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})`)
	alnumPat    = regexp.MustCompile(`[^A-Za-z0-9]`)
	yearPat     = regexp.MustCompile(`^20\d{2}$`)
)

// ItemCode extracts the base product code: "125160H-S001" -> "125160H",
// "15760UQ1" -> "15760UQ1". Pure and idempotent.
func ItemCode(s string) string {
	if s == "" {
		return ""
	}
	s = wsPat.ReplaceAllString(strings.TrimSpace(s), "")
	base := strings.SplitN(s, "-", 2)[0]
	m := itemPat.FindString(base)
	return strings.ToUpper(m)
}

// SkuSpec extracts the full spec code including a packaging variant suffix:
// "92105-S001" stays "92105-S001". Variants of the same base item differ
// only in this suffix.
func SkuSpec(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToUpper(wsPat.ReplaceAllString(strings.TrimSpace(s), ""))
	if m := specPat.FindString(s); m != "" {
		return strings.ToUpper(m)
	}
	return ItemCode(s)
}

// SkuKey reduces a SKU to its first five digits, the key space used by the
// mapping table.
func SkuKey(s string) string {
	d := digitsPat.ReplaceAllString(s, "")
	if len(d) > 5 {
		d = d[:5]
	}
	return d
}

// AlnumUpper strips separators and upper-cases, for mapping lookups.
func AlnumUpper(s string) string {
	return strings.ToUpper(alnumPat.ReplaceAllString(s, ""))
}

// LeadingDigits returns the leading numeric run of a code, "" when the code
// does not start with a digit.
func LeadingDigits(s string) string {
	return leadDigits.FindString(s)
}

// EmbeddedYear finds a 4-digit year token among '-'-separated SKU parts,
// e.g. "9298-2025-S001-NB" -> "2025".
func EmbeddedYear(sku string) string {
	for _, part := range strings.Split(sku, "-") {
		if yearPat.MatchString(part) {
			return part
		}
	}
	return ""
}

// NormalizeDate folds the date formats seen in schedules and orders into
// YYYY-MM-DD. Supports YYYY-MM-DD, DD-MM-YYYY and MM-DD-YYYY with "-" or
// "/" separators; ambiguous two-digit pairs default to month-first.
func NormalizeDate(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "-")
	if m := isoDatePat.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[1], pad2(m[2]), pad2(m[3]))
	}
	if m := dmyDatePat.FindStringSubmatch(s); m != nil {
		a, b, year := m[1], m[2], m[3]
		switch {
		case atoi(a) > 12: // a must be the day
			return fmt.Sprintf("%s-%s-%s", year, pad2(b), pad2(a))
		case atoi(b) > 12: // b must be the day
			return fmt.Sprintf("%s-%s-%s", year, pad2(a), pad2(b))
		default: // both plausible, month-first is the business convention
			return fmt.Sprintf("%s-%s-%s", year, pad2(a), pad2(b))
		}
	}
	return s
}

// ParseDate parses a date string via NormalizeDate; zero time when the
// value is not a date.
func ParseDate(s string) (time.Time, bool) {
	ns := NormalizeDate(s)
	t, err := time.Parse("2006-01-02", ns)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
