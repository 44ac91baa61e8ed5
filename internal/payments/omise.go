package payments

import (
	"context"
	"fmt"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

type omiseCharges interface {
	Retrieve(id string) (*omise.Charge, error)
	Capture(id string) (*omise.Charge, error)
	Reverse(id string) (*omise.Charge, error)
}

type omiseClient struct{ c *omise.Client }

func (o omiseClient) Retrieve(id string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	return ch, o.c.Do(ch, &operations.RetrieveCharge{ChargeID: id})
}

func (o omiseClient) Capture(id string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	return ch, o.c.Do(ch, &operations.CaptureCharge{ChargeID: id})
}

func (o omiseClient) Reverse(id string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	return ch, o.c.Do(ch, &operations.ReverseCharge{ChargeID: id})
}

// Omise settles charges created with capture=false. A reversed authorization
// is the released state.
type Omise struct {
	api omiseCharges
}

func NewOmise(publicKey, secretKey string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	return &Omise{api: omiseClient{c: c}}, nil
}

func (o *Omise) Capture(ctx context.Context, h Hold) (Outcome, error) {
	return resolve(ctx, OpCapture, h, o.call(o.api.Retrieve), o.call(o.api.Capture), oneOf("successful", "paid"))
}

func (o *Omise) CancelAuthorization(ctx context.Context, h Hold) (Outcome, error) {
	return resolve(ctx, OpCancel, h, o.call(o.api.Retrieve), o.call(o.api.Reverse), oneOf("reversed"))
}

func (o *Omise) call(fn func(string) (*omise.Charge, error)) statusFunc {
	return func(ctx context.Context, ref string) (string, error) {
		return blocking(ctx, func() (string, error) {
			ch, err := fn(ref)
			if err != nil {
				return "", err
			}
			return chargeStatus(ch), nil
		})
	}
}

// chargeStatus folds the charge flags into one status string.
func chargeStatus(ch *omise.Charge) string {
	switch {
	case ch == nil:
		return ""
	case ch.Reversed:
		return "reversed"
	case ch.Paid:
		return "paid"
	default:
		return string(ch.Status)
	}
}
