package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/class-settlement/internal/settlement"
)

type countingRunner struct {
	mu    sync.Mutex
	calls int
	err   error
	fired chan struct{}
}

func (c *countingRunner) RunOnce(ctx context.Context) (settlement.Report, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	select {
	case c.fired <- struct{}{}:
	default:
	}
	return settlement.Report{RunID: "r"}, c.err
}

func TestRunFiresImmediatelyAndStops(t *testing.T) {
	r := &countingRunner{fired: make(chan struct{}, 1), err: errors.New("db down")}
	s := &Scheduler{Runner: r, Spec: "@every 1h", Location: time.UTC}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-r.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not run a pass on start")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls != 1 {
		t.Errorf("expected exactly one pass, got %d", r.calls)
	}
}

func TestRunRejectsBadSchedule(t *testing.T) {
	s := &Scheduler{Runner: &countingRunner{}, Spec: "every now and then"}
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
