package runs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/class-settlement/internal/db"
	"github.com/example/class-settlement/internal/settlement"
)

// Repo stores one row per settlement pass in settlement_runs.
type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Save(ctx context.Context, rep settlement.Report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	var runErr *string
	if rep.Error != "" {
		runErr = &rep.Error
	}
	return r.db.Exec(ctx, `
INSERT INTO settlement_runs(id, started_at, finished_at, report, error)
VALUES ($1::uuid, $2, $3, $4::jsonb, $5)
ON CONFLICT (id) DO UPDATE SET finished_at=EXCLUDED.finished_at, report=EXCLUDED.report, error=EXCLUDED.error`,
		rep.RunID, rep.StartedAt, rep.FinishedAt, string(body), runErr)
}

// Latest returns the most recently started pass.
func (r *Repo) Latest(ctx context.Context) (settlement.Report, error) {
	var body []byte
	err := r.db.QueryRow(ctx, `SELECT report::text FROM settlement_runs ORDER BY started_at DESC LIMIT 1`).Scan(&body)
	if err != nil {
		return settlement.Report{}, db.WrapNotFound(err)
	}
	return decode(body)
}

func decode(body []byte) (settlement.Report, error) {
	var rep settlement.Report
	if err := json.Unmarshal(body, &rep); err != nil {
		return settlement.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return rep, nil
}
