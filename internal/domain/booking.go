package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentHeld      PaymentStatus = "held"
	PaymentCompleted PaymentStatus = "completed"
	PaymentCanceled  PaymentStatus = "canceled"
	PaymentFailed    PaymentStatus = "failed"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// ActiveBookingStatuses are the booking statuses settlement may act on.
var ActiveBookingStatuses = []BookingStatus{BookingConfirmed, BookingPending}

func (s BookingStatus) Active() bool {
	return s == BookingConfirmed || s == BookingPending
}

// Contact is the addressee of settlement emails. It is read-only here.
type Contact struct {
	ParentName string
	ChildName  string
	Email      string
}

func (c Contact) Addressable() bool {
	return strings.TrimSpace(c.Email) != ""
}

type Booking struct {
	ID        string
	SessionID string
	StudentID string

	PaymentStatus      PaymentStatus
	BookingStatus      BookingStatus
	PaymentAmount      decimal.Decimal
	PaymentReferenceID *string
	Notes              string

	NotifiedAt *time.Time
	SettledAt  *time.Time

	Contact Contact
}

func (b Booking) Reference() string {
	if b.PaymentReferenceID == nil {
		return ""
	}
	return *b.PaymentReferenceID
}

// Eligible reports whether the booking still carries a hold that settlement
// must resolve.
func (b Booking) Eligible() bool {
	return b.PaymentStatus == PaymentHeld && b.Reference() != "" && b.BookingStatus.Active()
}

func (b Booking) Notified() bool {
	return b.NotifiedAt != nil
}
