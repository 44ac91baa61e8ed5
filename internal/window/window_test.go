package window

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}

func TestFor_Bounds(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)

	w := For(now, 24*time.Hour, loc)

	if w.UpperDate != "2026-03-11" || w.LowerDate != "2026-03-11" {
		t.Fatalf("dates = %s..%s", w.LowerDate, w.UpperDate)
	}
	if w.LowerTime != "13:30:00" || w.UpperTime != "14:00:00" {
		t.Fatalf("times = %s..%s", w.LowerTime, w.UpperTime)
	}
	if w.DateKey() != "2026-03-11" {
		t.Errorf("DateKey = %s", w.DateKey())
	}
}

func TestFor_Membership(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, loc)
	w := For(now, 24*time.Hour, loc)

	at := func(d time.Duration) (string, string) {
		ts := now.Add(d)
		return ts.Format("2006-01-02"), ts.Format("15:04")
	}

	cases := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"exactly T+24h", 24 * time.Hour, true},
		{"lower bound T+23h30m", 23*time.Hour + 30*time.Minute, true},
		{"inside T+23h45m", 23*time.Hour + 45*time.Minute, true},
		{"T+25h", 25 * time.Hour, false},
		{"T+22h", 22 * time.Hour, false},
		{"just below lower bound", 23*time.Hour + 29*time.Minute, false},
		{"just above upper bound", 24*time.Hour + time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, c := at(tc.offset)
			if got := w.Contains(d, c); got != tc.want {
				t.Errorf("Contains(%s %s) = %v, want %v (window %s %s..%s %s)",
					d, c, got, tc.want, w.LowerDate, w.LowerTime, w.UpperDate, w.UpperTime)
			}
		})
	}
}

func TestFor_SpansMidnight(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 10, 0, 0, time.UTC)
	w := For(now, 24*time.Hour, time.UTC)

	if !w.SpansMidnight() {
		t.Fatalf("expected window to span midnight: %+v", w)
	}
	if !w.Contains("2026-06-01", "23:50") {
		t.Error("expected late session on lower date to be included")
	}
	if !w.Contains("2026-06-02", "00:05:00") {
		t.Error("expected early session on upper date to be included")
	}
	if w.Contains("2026-06-02", "23:50") {
		t.Error("late session on upper date must be excluded")
	}
	if w.Contains("2026-06-01", "00:05") {
		t.Error("early session on lower date must be excluded")
	}
}

func TestFor_ConvertsToLocation(t *testing.T) {
	loc := mustLoc(t, "America/Los_Angeles")
	now := time.Date(2026, 1, 15, 20, 0, 0, 0, time.UTC) // 12:00 PST

	w := For(now, 24*time.Hour, loc)
	if w.UpperDate != "2026-01-16" || w.UpperTime != "12:00:00" {
		t.Errorf("upper = %s %s, want 2026-01-16 12:00:00", w.UpperDate, w.UpperTime)
	}
}
