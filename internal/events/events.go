// Package events publishes settlement outcomes to a RabbitMQ topic exchange.
package events

import "time"

const (
	KeySessionDecided  = "settlement.session.decided"
	KeyPaymentCaptured = "settlement.payment.captured"
	KeyPaymentCanceled = "settlement.payment.canceled"
	KeyPaymentFailed   = "settlement.payment.failed"

	DefaultExchange = "settlement.exchange"
)

type SessionDecided struct {
	RunID       string    `json:"runId"`
	SessionID   string    `json:"sessionId"`
	Proceed     bool      `json:"proceed"`
	Enrolled    int       `json:"enrolled"`
	MinStudents int       `json:"minStudents"`
	At          time.Time `json:"at"`
}

type PaymentSettled struct {
	RunID       string    `json:"runId"`
	SessionID   string    `json:"sessionId"`
	BookingID   string    `json:"bookingId"`
	ReferenceID string    `json:"referenceId"`
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}
