package coordination

import (
	"fmt"
	"sort"
	"time"
)

const (
	DayLayout = "2006-01-02"
	// MaxCandidateDates bounds a start/end range: one leap year.
	MaxCandidateDates = 366
)

// ParseDay parses a YYYY-MM-DD calendar day into UTC midnight.
func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q, want YYYY-MM-DD", ErrInvalidInput, s)
	}
	return d, nil
}

// Day truncates t to its calendar day at UTC midnight, keeping the
// year/month/day as seen in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ExpandRange returns every day from start to end, both included.
func ExpandRange(start, end time.Time) ([]time.Time, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil, ErrInvalidDateRange
	}
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if len(out) == MaxCandidateDates {
			return nil, fmt.Errorf("%w: at most %d days", ErrDateRangeTooLong, MaxCandidateDates)
		}
		out = append(out, d)
	}
	return out, nil
}

// Normalize truncates, deduplicates and sorts an explicit list of dates.
func Normalize(dates []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = Day(d)
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
