// Package window computes the "sessions starting soon" range a settlement pass
// looks at.
package window

import (
	"time"

	"github.com/example/class-settlement/internal/domain"
)

// Jitter is how far below the horizon the window reaches, so a scheduler
// firing every 5-30 minutes never misses a session.
const Jitter = 30 * time.Minute

// Window is an inclusive wall-clock range in the deployment timezone.
// When it straddles midnight LowerDate and UpperDate differ.
type Window struct {
	LowerDate string
	LowerTime string
	UpperDate string
	UpperTime string

	Start time.Time
	End   time.Time
}

// For returns the window [now+horizon-30m, now+horizon] rendered in loc.
func For(now time.Time, horizon time.Duration, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	end := now.Add(horizon).In(loc).Truncate(time.Second)
	start := end.Add(-Jitter)
	return Window{
		LowerDate: start.Format(domain.DateLayout),
		LowerTime: start.Format(domain.TimeLayout),
		UpperDate: end.Format(domain.DateLayout),
		UpperTime: end.Format(domain.TimeLayout),
		Start:     start,
		End:       end,
	}
}

// DateKey is the calendar date the window lands on (its upper bound).
func (w Window) DateKey() string { return w.UpperDate }

func (w Window) SpansMidnight() bool { return w.LowerDate != w.UpperDate }

// Contains mirrors the SQL predicate used by the session repository.
// date is YYYY-MM-DD, clock is HH:MM or HH:MM:SS.
func (w Window) Contains(date, clock string) bool {
	clock = domain.NormalizeTime(clock)
	if !w.SpansMidnight() {
		return date == w.UpperDate && clock >= w.LowerTime && clock <= w.UpperTime
	}
	return (date == w.LowerDate && clock >= w.LowerTime) ||
		(date == w.UpperDate && clock <= w.UpperTime)
}
