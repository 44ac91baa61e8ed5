package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// ClassSession is one scheduled occurrence of a class. Date and StartTime are
// wall-clock values in the deployment timezone.
type ClassSession struct {
	ID              string
	Title           string
	Date            string // YYYY-MM-DD
	StartTime       string // HH:MM:SS
	DurationMinutes int

	MinStudents int
	MaxStudents int
	Enrolled    int
}

// StartsAt resolves the session start in loc.
func (s ClassSession) StartsAt(loc *time.Location) (time.Time, error) {
	t := NormalizeTime(s.StartTime)
	return time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+t, loc)
}

func (s ClassSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidSession)
	}
	if s.Enrolled < 0 || s.Enrolled > s.MaxStudents {
		return fmt.Errorf("%w: enrolled %d outside 0..%d", ErrInvalidSession, s.Enrolled, s.MaxStudents)
	}
	if s.MinStudents > s.MaxStudents {
		return fmt.Errorf("%w: min_students %d > max_students %d", ErrInvalidSession, s.MinStudents, s.MaxStudents)
	}
	return nil
}

// NormalizeTime pads HH:MM to HH:MM:SS.
func NormalizeTime(t string) string {
	t = strings.TrimSpace(t)
	if len(t) == 5 && strings.Count(t, ":") == 1 {
		return t + ":00"
	}
	return t
}
