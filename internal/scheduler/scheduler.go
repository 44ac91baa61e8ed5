package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/class-settlement/internal/settlement"
)

type Runner interface {
	RunOnce(ctx context.Context) (settlement.Report, error)
}

// Scheduler fires one settlement pass immediately and then on a cron
// schedule. Passes may overlap; the engine is idempotent.
type Scheduler struct {
	Runner   Runner
	Spec     string
	Location *time.Location
	Log      *zap.SugaredLogger

	wg sync.WaitGroup
}

func (s *Scheduler) Run(ctx context.Context) error {
	if s.Log == nil {
		s.Log = zap.NewNop().Sugar()
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	// In-flight passes finish their calls after shutdown starts.
	runCtx := context.WithoutCancel(ctx)

	l := cronLogger{s.Log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l)),
	)
	if _, err := c.AddFunc(s.Spec, func() { s.fire(runCtx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.Spec, err)
	}

	s.Log.Infow("settlement scheduler started", "schedule", s.Spec, "timezone", loc.String())

	// kick immediately
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fire(runCtx)
	}()
	c.Start()

	<-ctx.Done()
	s.Log.Infow("settlement scheduler stopping")
	<-c.Stop().Done()
	s.wg.Wait()
	s.Log.Infow("settlement scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) fire(ctx context.Context) {
	r, err := s.Runner.RunOnce(ctx)
	if err != nil {
		s.Log.Errorw("settlement pass failed", "run_id", r.RunID, "err", err)
		return
	}
	s.Log.Debugw("settlement pass complete", "run_id", r.RunID, "sessions", r.SessionsProcessed)
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debugw("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Errorw("cron: "+msg, append(kv, "err", err)...)
}
