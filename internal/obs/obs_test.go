package obs

import (
	"context"
	"testing"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "classsettle", "test", "")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, dev := range []bool{true, false} {
		l, err := NewLogger(dev)
		if err != nil {
			t.Fatalf("NewLogger(%v): %v", dev, err)
		}
		l.Infow("logger ready", "dev", dev)
	}
}
