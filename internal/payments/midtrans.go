package payments

import (
	"context"
	"fmt"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

type midtransAPI interface {
	Status(id string) (string, error)
	Capture(id string, gross float64) (string, error)
	Cancel(id string) (string, error)
}

type midtransCore struct{ c *coreapi.Client }

// The SDK returns *midtrans.Error; a nil one must not become a non-nil error.
func midtransErr(e *midtrans.Error) error {
	if e == nil {
		return nil
	}
	return e
}

func (m midtransCore) Status(id string) (string, error) {
	res, e := m.c.CheckTransaction(id)
	if err := midtransErr(e); err != nil {
		return "", err
	}
	return res.TransactionStatus, nil
}

func (m midtransCore) Capture(id string, gross float64) (string, error) {
	res, e := m.c.CaptureTransaction(&coreapi.CaptureReq{TransactionID: id, GrossAmt: gross})
	if err := midtransErr(e); err != nil {
		return "", err
	}
	return res.TransactionStatus, nil
}

func (m midtransCore) Cancel(id string) (string, error) {
	res, e := m.c.CancelTransaction(id)
	if err := midtransErr(e); err != nil {
		return "", err
	}
	return res.TransactionStatus, nil
}

// Midtrans settles card transactions authorized with type "authorize".
// Captured holds report "capture" and later "settlement".
type Midtrans struct {
	api midtransAPI
}

func NewMidtrans(serverKey string, production bool) (*Midtrans, error) {
	if serverKey == "" {
		return nil, fmt.Errorf("midtrans: server key is required")
	}
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	c := &coreapi.Client{}
	c.New(serverKey, env)
	return &Midtrans{api: midtransCore{c: c}}, nil
}

func (m *Midtrans) Capture(ctx context.Context, h Hold) (Outcome, error) {
	gross, _ := h.Amount.Float64()
	act := func(ctx context.Context, ref string) (string, error) {
		return blocking(ctx, func() (string, error) { return m.api.Capture(ref, gross) })
	}
	return resolve(ctx, OpCapture, h, m.status, act, oneOf("capture", "settlement"))
}

func (m *Midtrans) CancelAuthorization(ctx context.Context, h Hold) (Outcome, error) {
	act := func(ctx context.Context, ref string) (string, error) {
		return blocking(ctx, func() (string, error) { return m.api.Cancel(ref) })
	}
	return resolve(ctx, OpCancel, h, m.status, act, oneOf("cancel"))
}

func (m *Midtrans) status(ctx context.Context, ref string) (string, error) {
	return blocking(ctx, func() (string, error) { return m.api.Status(ref) })
}
