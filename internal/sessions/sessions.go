package sessions

import (
	"context"

	"github.com/example/class-settlement/internal/db"
	"github.com/example/class-settlement/internal/domain"
	"github.com/example/class-settlement/internal/window"
)

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

const selectSession = `
SELECT id,title,to_char(session_date,'YYYY-MM-DD'),to_char(start_time,'HH24:MI:SS'),
       class_duration,min_students,max_students,enrolled
FROM class_sessions`

// ListStartingIn returns the sessions whose start falls inside w.
func (r *Repo) ListStartingIn(ctx context.Context, w window.Window) ([]domain.ClassSession, error) {
	var (
		rows db.Rows
		err  error
	)
	if w.SpansMidnight() {
		rows, err = r.db.Query(ctx, selectSession+`
WHERE (session_date = $1::date AND start_time >= $2::time)
   OR (session_date = $3::date AND start_time <= $4::time)
ORDER BY session_date, start_time`, w.LowerDate, w.LowerTime, w.UpperDate, w.UpperTime)
	} else {
		rows, err = r.db.Query(ctx, selectSession+`
WHERE session_date = $1::date
  AND start_time BETWEEN $2::time AND $3::time
ORDER BY start_time`, w.UpperDate, w.LowerTime, w.UpperTime)
	}
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	out := []domain.ClassSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) Get(ctx context.Context, id string) (domain.ClassSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx, selectSession+` WHERE id=$1`, id))
	if err != nil {
		return domain.ClassSession{}, db.WrapNotFound(err)
	}
	return s, nil
}

func scanSession(row db.Row) (domain.ClassSession, error) {
	var s domain.ClassSession
	if err := row.Scan(&s.ID, &s.Title, &s.Date, &s.StartTime, &s.DurationMinutes, &s.MinStudents, &s.MaxStudents, &s.Enrolled); err != nil {
		return domain.ClassSession{}, err
	}
	return s, nil
}
