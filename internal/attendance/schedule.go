package attendance

import (
	"strconv"
	"strings"
)

// MinRequiredMinutes is both the default daily requirement and its floor.
const MinRequiredMinutes = 60

const minutesPerDay = 24 * 60

// RequiredMinutes derives the daily online-time requirement from a "HH:MM-HH:MM" slot.
// A slot ending before it starts runs past midnight.
func RequiredMinutes(slot *string) int {
	if slot == nil {
		return MinRequiredMinutes
	}
	start, end, ok := parseSlot(*slot)
	if !ok {
		return MinRequiredMinutes
	}
	d := end - start
	if d < 0 {
		d += minutesPerDay
	}
	return max(d, MinRequiredMinutes)
}

func parseSlot(s string) (start, end int, ok bool) {
	from, to, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return 0, 0, false
	}
	if start, ok = clockMinutes(from); !ok {
		return 0, 0, false
	}
	if end, ok = clockMinutes(to); !ok {
		return 0, 0, false
	}
	return start, end, true
}

func clockMinutes(s string) (int, bool) {
	hh, mm, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found || len(mm) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
