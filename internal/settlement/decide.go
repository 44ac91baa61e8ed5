package settlement

import (
	"github.com/example/class-settlement/internal/domain"
	"github.com/example/class-settlement/internal/notify"
	"github.com/example/class-settlement/internal/payments"
)

// Decision is what a session's enrollment implies for every held booking.
type Decision struct {
	Proceed bool

	PaymentStatus domain.PaymentStatus
	BookingStatus domain.BookingStatus
	Email         notify.Kind
	Action        string
}

// Decide proceeds when enrollment reaches the minimum. A session exactly at
// the minimum proceeds.
func Decide(s domain.ClassSession) Decision {
	if s.Enrolled >= s.MinStudents {
		return Decision{
			Proceed:       true,
			PaymentStatus: domain.PaymentCompleted,
			BookingStatus: domain.BookingConfirmed,
			Email:         notify.KindConfirmation,
			Action:        payments.OpCapture,
		}
	}
	return Decision{
		Proceed:       false,
		PaymentStatus: domain.PaymentCanceled,
		BookingStatus: domain.BookingCancelled,
		Email:         notify.KindCancellation,
		Action:        payments.OpCancel,
	}
}
