package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/class-settlement/internal/db"
	"github.com/example/class-settlement/internal/domain"
)

// StatusUpdate is the bulk transition applied to a session's active bookings.
// A nil PaymentStatus leaves payment_status untouched.
type StatusUpdate struct {
	PaymentStatus *domain.PaymentStatus
	BookingStatus domain.BookingStatus
	Notes         string
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

const selectBooking = `
SELECT b.id,b.session_id,COALESCE(b.student_id,''),b.payment_status,b.booking_status,
       b.payment_amount::text,b.payment_reference_id,b.notes,b.notified_at,b.settled_at,
       COALESCE(s.parent_name,''),COALESCE(s.child_name,''),COALESCE(s.email,'')
FROM bookings b
LEFT JOIN students s ON s.id = b.student_id`

// ListHeld returns the session's bookings that still carry a processor hold.
func (r *Repo) ListHeld(ctx context.Context, sessionID string) ([]domain.Booking, error) {
	return r.list(ctx, selectBooking+`
WHERE b.session_id=$1
  AND b.payment_status='held'
  AND b.payment_reference_id IS NOT NULL
ORDER BY b.created_at`, sessionID)
}

// ListActive returns pending/confirmed bookings joined with their contact.
// Bookings without a resolvable email come back with an empty Contact.
func (r *Repo) ListActive(ctx context.Context, sessionID string) ([]domain.Booking, error) {
	return r.list(ctx, selectBooking+`
WHERE b.session_id=$1
  AND b.booking_status IN ('confirmed','pending')
ORDER BY b.created_at`, sessionID)
}

// BulkUpdateStatus applies u to every active booking of the session in one
// statement. Notes are appended.
func (r *Repo) BulkUpdateStatus(ctx context.Context, sessionID string, u StatusUpdate) (bool, error) {
	var payment *string
	if u.PaymentStatus != nil {
		p := string(*u.PaymentStatus)
		payment = &p
	}
	n, err := r.db.ExecCount(ctx, `
UPDATE bookings
SET payment_status = COALESCE($2, payment_status),
    booking_status = $3,
    notes = CASE WHEN $4 = '' THEN notes
                 WHEN notes = '' THEN $4
                 ELSE notes || E'\n' || $4 END,
    updated_at = now()
WHERE session_id=$1
  AND booking_status IN ('confirmed','pending')`,
		sessionID, payment, string(u.BookingStatus), u.Notes)
	if err != nil {
		return false, fmt.Errorf("bulk update session %s: %w", sessionID, err)
	}
	return n > 0, nil
}

// UpdateSingle records the authoritative outcome for one booking. Only a
// booking still held is written; false means another writer got there first.
func (r *Repo) UpdateSingle(ctx context.Context, bookingID string, payment domain.PaymentStatus, booking domain.BookingStatus, notes string) (bool, error) {
	n, err := r.db.ExecCount(ctx, `
UPDATE bookings
SET payment_status=$2,
    booking_status=$3,
    notes = CASE WHEN $4 = '' THEN notes ELSE $4 END,
    settled_at = CASE WHEN $2 IN ('completed','canceled') THEN now() ELSE settled_at END,
    payment_claimed_at = NULL,
    updated_at = now()
WHERE id=$1
  AND payment_status='held'`, bookingID, string(payment), string(booking), notes)
	if err != nil {
		return false, fmt.Errorf("update booking %s: %w", bookingID, err)
	}
	return n > 0, nil
}

func (r *Repo) Get(ctx context.Context, bookingID string) (domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, selectBooking+` WHERE b.id=$1`, bookingID))
	if err != nil {
		return domain.Booking{}, db.WrapNotFound(err)
	}
	return b, nil
}

// CurrentPaymentStatus re-reads payment_status right before a processor call.
func (r *Repo) CurrentPaymentStatus(ctx context.Context, bookingID string) (domain.PaymentStatus, error) {
	var s string
	if err := r.db.QueryRow(ctx, `SELECT payment_status FROM bookings WHERE id=$1`, bookingID).Scan(&s); err != nil {
		return "", db.WrapNotFound(err)
	}
	return domain.PaymentStatus(s), nil
}

// ClaimNotification stamps notified_at if no pass has yet. Only the pass
// that wins the claim sends the email.
func (r *Repo) ClaimNotification(ctx context.Context, bookingID string) (bool, error) {
	n, err := r.db.ExecCount(ctx, `
UPDATE bookings SET notified_at=now(), updated_at=now()
WHERE id=$1 AND notified_at IS NULL`, bookingID)
	if err != nil {
		return false, fmt.Errorf("claim notification %s: %w", bookingID, err)
	}
	return n > 0, nil
}

// ReleaseNotification undoes a claim whose email was not sent.
func (r *Repo) ReleaseNotification(ctx context.Context, bookingID string) error {
	return r.db.Exec(ctx, `UPDATE bookings SET notified_at=NULL, updated_at=now() WHERE id=$1`, bookingID)
}

// ClaimPayment reserves a held booking for one pass's processor call. A claim
// older than lease is treated as abandoned.
func (r *Repo) ClaimPayment(ctx context.Context, bookingID string, lease time.Duration) (bool, error) {
	n, err := r.db.ExecCount(ctx, `
UPDATE bookings SET payment_claimed_at=now(), updated_at=now()
WHERE id=$1
  AND payment_status='held'
  AND (payment_claimed_at IS NULL OR payment_claimed_at < now() - $2 * interval '1 second')`,
		bookingID, lease.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim payment %s: %w", bookingID, err)
	}
	return n > 0, nil
}

func (r *Repo) ReleasePayment(ctx context.Context, bookingID string) error {
	return r.db.Exec(ctx, `UPDATE bookings SET payment_claimed_at=NULL, updated_at=now() WHERE id=$1`, bookingID)
}

// AppendNote adds an operator-facing line to the booking's notes.
func (r *Repo) AppendNote(ctx context.Context, bookingID, note string) error {
	return r.db.Exec(ctx, `
UPDATE bookings
SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
    updated_at = now()
WHERE id=$1`, bookingID, note)
}

func (r *Repo) list(ctx context.Context, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row db.Row) (domain.Booking, error) {
	var (
		b                   domain.Booking
		payment, booking    string
		amount              string
		notifiedAt, settled *time.Time
	)
	if err := row.Scan(
		&b.ID, &b.SessionID, &b.StudentID, &payment, &booking,
		&amount, &b.PaymentReferenceID, &b.Notes, &notifiedAt, &settled,
		&b.Contact.ParentName, &b.Contact.ChildName, &b.Contact.Email,
	); err != nil {
		return domain.Booking{}, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking %s amount %q: %w", b.ID, amount, err)
	}
	b.PaymentStatus = domain.PaymentStatus(payment)
	b.BookingStatus = domain.BookingStatus(booking)
	b.PaymentAmount = amt
	b.NotifiedAt = notifiedAt
	b.SettledAt = settled
	return b, nil
}
