package chunk

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunLength is a calendar duration between restarts, expressed as whole
// years, months and/or days. Months may exceed 12; they are added as
// calendar months and normalized into years.
type RunLength struct {
	Years  int
	Months int
	Days   int
}

// ParseRunLength reads the 'N1yN2mN3d' notation, each component optional but
// at least one required ('1y', '18m', '1y6m', '10d', ...).
func ParseRunLength(s string) (RunLength, error) {
	var rl RunLength
	rest := strings.TrimSpace(s)
	if rest == "" {
		return rl, fmt.Errorf("run length is empty")
	}
	seen := map[byte]bool{}
	for rest != "" {
		i := 0
		for i < len(rest) && (rest[i] == '+' || rest[i] == '-' || (rest[i] >= '0' && rest[i] <= '9')) {
			i++
		}
		if i == 0 || i >= len(rest) {
			return RunLength{}, fmt.Errorf("run length %q does not match the 'N1yN2m' / 'N3d' format", s)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return RunLength{}, fmt.Errorf("run length %q: %w", s, err)
		}
		unit := rest[i]
		if seen[unit] {
			return RunLength{}, fmt.Errorf("run length %q repeats unit %q", s, string(unit))
		}
		seen[unit] = true
		switch unit {
		case 'y':
			rl.Years = n
		case 'm':
			rl.Months = n
		case 'd':
			rl.Days = n
		default:
			return RunLength{}, fmt.Errorf("run length %q has unknown unit %q", s, string(unit))
		}
		rest = rest[i+1:]
	}
	return rl, nil
}

// IsZero reports whether the run length resolves to no duration at all.
func (rl RunLength) IsZero() bool {
	return rl.Years == 0 && rl.Months == 0 && rl.Days == 0
}

func (rl RunLength) String() string {
	var b strings.Builder
	if rl.Years != 0 {
		fmt.Fprintf(&b, "%dy", rl.Years)
	}
	if rl.Months != 0 {
		fmt.Fprintf(&b, "%dm", rl.Months)
	}
	if rl.Days != 0 {
		fmt.Fprintf(&b, "%dd", rl.Days)
	}
	if b.Len() == 0 {
		return "0d"
	}
	return b.String()
}

// AddTo advances a date by the run length using exact calendar arithmetic.
// Years and months shift the calendar position keeping day and hour; a
// target month without the source day (e.g. Jan 31 + 1m) is an error rather
// than a silent normalization, because restart boundaries must be exact.
// Days are plain 24h steps applied after the year/month shift.
func (rl RunLength) AddTo(t time.Time) (time.Time, error) {
	out := t
	if rl.Years != 0 || rl.Months != 0 {
		y, m := t.Year(), int(t.Month())
		total := y*12 + (m - 1) + rl.Years*12 + rl.Months
		y2, m2 := total/12, time.Month(total%12+1)
		if t.Day() > daysIn(y2, m2) {
			return time.Time{}, &InvalidRangeError{
				Reason: fmt.Sprintf("day %d does not exist in %04d-%02d", t.Day(), y2, m2),
			}
		}
		out = time.Date(y2, m2, t.Day(), t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	}
	if rl.Days != 0 {
		out = out.AddDate(0, 0, rl.Days)
	}
	return out, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
