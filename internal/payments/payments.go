// Package payments resolves existing authorization holds at a payment
// processor. Adapters exist for Mercado Pago, Omise and Midtrans; all of them
// read the hold first and report success without acting when the hold is
// already in the requested state.
package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/class-settlement/internal/domain"
)

const (
	OpCapture = "capture"
	OpCancel  = "cancel"
)

// Hold identifies an authorization created at checkout.
type Hold struct {
	ReferenceID string
	Amount      decimal.Decimal
}

// Outcome is the processor's view after a capture or cancel attempt.
type Outcome struct {
	Succeeded bool
	Status    string
}

type Processor interface {
	Capture(ctx context.Context, h Hold) (Outcome, error)
	CancelAuthorization(ctx context.Context, h Hold) (Outcome, error)
}

type Config struct {
	Provider string

	MPAccessToken string

	OmisePublicKey string
	OmiseSecretKey string

	MidtransServerKey  string
	MidtransProduction bool
}

// New builds the processor named by cfg.Provider.
func New(cfg Config) (Processor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "mercadopago", "mp":
		return NewMercadoPago(cfg.MPAccessToken)
	case "omise":
		return NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	case "midtrans":
		return NewMidtrans(cfg.MidtransServerKey, cfg.MidtransProduction)
	default:
		return nil, fmt.Errorf("unknown payment processor %q", cfg.Provider)
	}
}

type statusFunc func(ctx context.Context, ref string) (string, error)

// resolve drives one hold toward the state accepted by done. The hold is read
// first; act only runs when the hold is not there yet.
func resolve(ctx context.Context, op string, h Hold, read, act statusFunc, done func(string) bool) (Outcome, error) {
	if strings.TrimSpace(h.ReferenceID) == "" {
		return Outcome{}, &domain.ProcessorError{Op: op, Err: fmt.Errorf("empty reference")}
	}

	current, err := read(ctx, h.ReferenceID)
	if err != nil {
		return Outcome{}, &domain.ProcessorError{Op: op + " (read)", ReferenceID: h.ReferenceID, Err: err}
	}
	if done(current) {
		return Outcome{Succeeded: true, Status: current}, nil
	}

	status, err := act(ctx, h.ReferenceID)
	if err != nil {
		return Outcome{Status: status}, &domain.ProcessorError{Op: op, ReferenceID: h.ReferenceID, Status: status, Err: err}
	}
	return Outcome{Succeeded: done(status), Status: status}, nil
}

// blocking runs an SDK call that takes no context, giving up when ctx is done.
// The call itself keeps running until the SDK's own HTTP timeout fires.
func blocking(ctx context.Context, fn func() (string, error)) (string, error) {
	type result struct {
		status string
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := fn()
		ch <- result{s, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.status, r.err
	}
}

func oneOf(vals ...string) func(string) bool {
	return func(s string) bool {
		for _, v := range vals {
			if strings.EqualFold(s, v) {
				return true
			}
		}
		return false
	}
}
