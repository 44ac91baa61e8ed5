package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/example/class-settlement/internal/domain"
)

func TestWrapNotFound(t *testing.T) {
	if WrapNotFound(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if err := WrapNotFound(pgx.ErrNoRows); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ErrNoRows should map to ErrNotFound, got %v", err)
	}
	if err := WrapNotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)); !IsNotFound(err) {
		t.Errorf("wrapped ErrNoRows should be not-found, got %v", err)
	}
	boom := errors.New("connection reset")
	err := WrapNotFound(boom)
	if !errors.Is(err, boom) || IsNotFound(err) {
		t.Errorf("other errors must be wrapped, got %v", err)
	}
}
