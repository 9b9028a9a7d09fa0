package writer

import (
	"regexp"
	"strings"

	"ScheduleSync/api/schedule/order"
)

var noteItemLinePat = regexp.MustCompile(`^(\d{3,})`)

// BuildNote assembles the remark cell from the order header: tracking code,
// packaging notes, free-form remark. With an item number the packaging
// notes keep only that item's lines; lines not starting with an item number
// are general instructions and always stay.
func BuildNote(h *order.Order, itemNum string) string {
	var parts []string
	if h.TrackingCode != "" {
		parts = append(parts, h.TrackingCode)
	}
	if h.PackagingInfo != "" {
		pkg := h.PackagingInfo
		if len(itemNum) >= 3 {
			var kept []string
			for _, line := range strings.Split(pkg, "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if m := noteItemLinePat.FindStringSubmatch(line); m != nil {
					lineItem := m[1]
					if strings.Contains(lineItem, itemNum) || strings.Contains(itemNum, lineItem) {
						kept = append(kept, line)
					}
					continue
				}
				kept = append(kept, line)
			}
			pkg = strings.Join(kept, "\n")
		}
		if strings.TrimSpace(pkg) != "" {
			parts = append(parts, strings.TrimSpace(pkg))
		}
	}
	if h.Remark != "" {
		parts = append(parts, h.Remark)
	}
	return strings.Join(parts, "\n")
}
