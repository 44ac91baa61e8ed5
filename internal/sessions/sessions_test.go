package sessions

import (
	"errors"
	"testing"
)

type fakeRow struct {
	vals []any
	err  error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	if len(dest) != len(f.vals) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.vals[i].(string)
		case *int:
			*p = f.vals[i].(int)
		default:
			return errors.New("unexpected destination type")
		}
	}
	return nil
}

func TestScanSession(t *testing.T) {
	row := fakeRow{vals: []any{"s-1", "Pottery for Kids", "2026-05-02", "10:30:00", 90, 8, 12, 10}}

	s, err := scanSession(row)
	if err != nil {
		t.Fatalf("scanSession: %v", err)
	}
	if s.ID != "s-1" || s.Title != "Pottery for Kids" || s.Date != "2026-05-02" || s.StartTime != "10:30:00" {
		t.Errorf("unexpected identity fields: %+v", s)
	}
	if s.DurationMinutes != 90 || s.MinStudents != 8 || s.MaxStudents != 12 || s.Enrolled != 10 {
		t.Errorf("unexpected counts: %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("scanned session should validate: %v", err)
	}
}

func TestScanSession_Error(t *testing.T) {
	boom := errors.New("boom")
	if _, err := scanSession(fakeRow{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected scan error to propagate, got %v", err)
	}
}
