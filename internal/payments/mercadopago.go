package payments

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
)

// mpPayments is the slice of payment.Client used here.
type mpPayments interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
	Capture(ctx context.Context, id int) (*payment.Response, error)
	Cancel(ctx context.Context, id int) (*payment.Response, error)
}

// MercadoPago settles holds created with capture=false. Captured payments
// report "approved", released ones "cancelled".
type MercadoPago struct {
	api mpPayments
}

func NewMercadoPago(accessToken string) (*MercadoPago, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("mercadopago: access token is required")
	}
	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &MercadoPago{api: payment.NewClient(cfg)}, nil
}

func (m *MercadoPago) Capture(ctx context.Context, h Hold) (Outcome, error) {
	return resolve(ctx, OpCapture, h, m.status, m.call(m.api.Capture), oneOf("approved"))
}

func (m *MercadoPago) CancelAuthorization(ctx context.Context, h Hold) (Outcome, error) {
	return resolve(ctx, OpCancel, h, m.status, m.call(m.api.Cancel), oneOf("cancelled"))
}

func (m *MercadoPago) status(ctx context.Context, ref string) (string, error) {
	return m.call(m.api.Get)(ctx, ref)
}

func (m *MercadoPago) call(fn func(context.Context, int) (*payment.Response, error)) statusFunc {
	return func(ctx context.Context, ref string) (string, error) {
		id, err := strconv.Atoi(ref)
		if err != nil {
			return "", fmt.Errorf("invalid payment id %q", ref)
		}
		res, err := fn(ctx, id)
		if err != nil {
			return "", err
		}
		if res == nil {
			return "", fmt.Errorf("empty response for payment %d", id)
		}
		return res.Status, nil
	}
}
