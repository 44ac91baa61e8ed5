// Package settlement decides, per class session, whether held payments are
// captured or released and carries the decision through the booking store,
// the customer emails and the payment processor.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/class-settlement/internal/bookings"
	"github.com/example/class-settlement/internal/domain"
	"github.com/example/class-settlement/internal/events"
	"github.com/example/class-settlement/internal/notify"
	"github.com/example/class-settlement/internal/payments"
	"github.com/example/class-settlement/internal/window"
)

type SessionStore interface {
	ListStartingIn(ctx context.Context, w window.Window) ([]domain.ClassSession, error)
}

type BookingStore interface {
	ListHeld(ctx context.Context, sessionID string) ([]domain.Booking, error)
	ListActive(ctx context.Context, sessionID string) ([]domain.Booking, error)
	BulkUpdateStatus(ctx context.Context, sessionID string, u bookings.StatusUpdate) (bool, error)
	UpdateSingle(ctx context.Context, bookingID string, payment domain.PaymentStatus, booking domain.BookingStatus, notes string) (bool, error)
	CurrentPaymentStatus(ctx context.Context, bookingID string) (domain.PaymentStatus, error)
	ClaimPayment(ctx context.Context, bookingID string, lease time.Duration) (bool, error)
	ReleasePayment(ctx context.Context, bookingID string) error
	ClaimNotification(ctx context.Context, bookingID string) (bool, error)
	ReleaseNotification(ctx context.Context, bookingID string) error
	AppendNote(ctx context.Context, bookingID, note string) error
}

type Notifier interface {
	Send(ctx context.Context, kind notify.Kind, c domain.Contact, s domain.ClassSession, b domain.Booking) error
}

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// RunStore keeps a record of each pass.
type RunStore interface {
	Save(ctx context.Context, r Report) error
}

type Options struct {
	Horizon            time.Duration
	Location           *time.Location
	SessionConcurrency int
	BookingConcurrency int
	CallTimeout        time.Duration
	Now                func() time.Time
}

type Deps struct {
	Sessions  SessionStore
	Bookings  BookingStore
	Processor payments.Processor
	Notifier  Notifier

	// optional
	Runs      RunStore
	Publisher Publisher
	Log       *zap.SugaredLogger
}

type Engine struct {
	sessions  SessionStore
	bookings  BookingStore
	processor payments.Processor
	notifier  Notifier
	runs      RunStore
	pub       Publisher
	log       *zap.SugaredLogger
	tracer    trace.Tracer

	opts Options
}

func NewEngine(d Deps, opts Options) (*Engine, error) {
	if d.Sessions == nil || d.Bookings == nil || d.Processor == nil || d.Notifier == nil {
		return nil, errors.New("settlement: sessions, bookings, processor and notifier are required")
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 24 * time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SessionConcurrency < 1 {
		opts.SessionConcurrency = 1
	}
	if opts.BookingConcurrency < 1 {
		opts.BookingConcurrency = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	return &Engine{
		sessions:  d.Sessions,
		bookings:  d.Bookings,
		processor: d.Processor,
		notifier:  d.Notifier,
		runs:      d.Runs,
		pub:       d.Publisher,
		log:       d.Log,
		tracer:    otel.Tracer("github.com/example/class-settlement/internal/settlement"),
		opts:      opts,
	}, nil
}

// RunOnce settles every session in the window computed from the current time.
func (e *Engine) RunOnce(ctx context.Context) (Report, error) {
	return e.RunAt(ctx, e.opts.Now())
}

// RunAt settles every session starting in the window anchored at now. The
// only error returned is a failure to list sessions; the report then covers
// zero sessions.
func (e *Engine) RunAt(ctx context.Context, now time.Time) (Report, error) {
	runID := uuid.NewString()
	started := e.opts.Now()
	w := window.For(now, e.opts.Horizon, e.opts.Location)
	log := e.log.With("run_id", runID)

	ctx, span := e.tracer.Start(ctx, "settlement.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("window.start", w.Start.Format(time.RFC3339)),
		attribute.String("window.end", w.End.Format(time.RFC3339)),
	))
	defer span.End()

	listCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	sessions, err := e.sessions.ListStartingIn(listCtx, w)
	cancel()
	if err != nil {
		log.Errorw("list sessions failed", "window_start", w.Start, "window_end", w.End, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "list sessions")
		r := summarize(runID, started, e.opts.Now(), nil)
		r.Error = err.Error()
		e.save(ctx, log, r)
		return r, fmt.Errorf("list sessions: %w", err)
	}
	log.Infow("settlement run started", "sessions", len(sessions), "window_start", w.Start, "window_end", w.End)

	outcomes := make([]SessionOutcome, len(sessions))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.SessionConcurrency)
	for i, s := range sessions {
		i, s := i, s
		g.Go(func() error {
			outcomes[i] = e.settle(ctx, runID, s)
			return nil
		})
	}
	_ = g.Wait()

	r := summarize(runID, started, e.opts.Now(), outcomes)
	span.SetAttributes(
		attribute.Int("sessions", r.SessionsProcessed),
		attribute.Int("payments.failed", r.PaymentsFailed),
	)
	log.Infow("settlement run finished",
		"sessions", r.SessionsProcessed,
		"emails_confirmed", r.EmailsConfirmed,
		"emails_cancelled", r.EmailsCancelled,
		"emails_failed", r.EmailsFailed,
		"payments_captured", r.PaymentsCaptured,
		"payments_canceled", r.PaymentsCanceled,
		"payments_failed", r.PaymentsFailed,
		"took", r.FinishedAt.Sub(r.StartedAt),
	)
	e.save(ctx, log, r)
	return r, nil
}

// SettleSession settles one session outside of a scheduled pass.
func (e *Engine) SettleSession(ctx context.Context, s domain.ClassSession) SessionOutcome {
	return e.settle(ctx, uuid.NewString(), s)
}

func (e *Engine) settle(ctx context.Context, runID string, s domain.ClassSession) (out SessionOutcome) {
	log := e.log.With("run_id", runID, "session_id", s.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("session settlement panicked", "panic", r)
			out = SessionOutcome{SessionID: s.ID, Title: s.Title, Enrolled: s.Enrolled, MinStudents: s.MinStudents}
		}
	}()

	ctx, span := e.tracer.Start(ctx, "settlement.session", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.Int("session.enrolled", s.Enrolled),
		attribute.Int("session.min_students", s.MinStudents),
	))
	defer span.End()

	out = e.settleSession(ctx, log, runID, s)
	span.SetAttributes(attribute.Bool("session.proceed", out.Proceed))
	if out.PaymentsFailed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d payments failed", out.PaymentsFailed))
	}
	return out
}

func (e *Engine) settleSession(ctx context.Context, log *zap.SugaredLogger, runID string, s domain.ClassSession) SessionOutcome {
	out := SessionOutcome{
		SessionID:   s.ID,
		Title:       s.Title,
		Enrolled:    s.Enrolled,
		MinStudents: s.MinStudents,
	}
	if err := s.Validate(); err != nil {
		log.Warnw("session fails invariants, settling anyway", "err", err)
	}

	// fetched
	var active, held []domain.Booking
	err := e.call(ctx, func(ctx context.Context) (err error) {
		active, err = e.bookings.ListActive(ctx, s.ID)
		return err
	})
	if err != nil {
		log.Errorw("list active bookings failed", "err", err)
	}
	err = e.call(ctx, func(ctx context.Context) (err error) {
		held, err = e.bookings.ListHeld(ctx, s.ID)
		return err
	})
	if err != nil {
		log.Errorw("list held bookings failed", "err", err)
	}

	// decided
	d := Decide(s)
	out.Proceed = d.Proceed
	log.Infow("session decided", "proceed", d.Proceed, "enrolled", s.Enrolled, "min_students", s.MinStudents,
		"active", len(active), "held", len(held))
	e.publish(ctx, log, events.KeySessionDecided, events.SessionDecided{
		RunID: runID, SessionID: s.ID, Proceed: d.Proceed, Enrolled: s.Enrolled, MinStudents: s.MinStudents, At: e.opts.Now(),
	})

	// bookings updated; payment_status is left for the per-booking step
	note := fmt.Sprintf("settlement %s: enrolled %d, minimum %d (%s)",
		decisionWord(d), s.Enrolled, s.MinStudents, e.opts.Now().UTC().Format(time.RFC3339))
	err = e.call(ctx, func(ctx context.Context) error {
		_, err := e.bookings.BulkUpdateStatus(ctx, s.ID, bookings.StatusUpdate{BookingStatus: d.BookingStatus, Notes: note})
		return err
	})
	if err != nil {
		log.Errorw("bulk booking update failed", "booking_status", d.BookingStatus, "err", err)
	}

	// notified; every eligible booking is in the held snapshot
	e.notifyAll(ctx, log, s, d, held, &out)

	// payments processed
	e.settlePayments(ctx, log, runID, s, d, held, &out)

	return out
}

type emailResult int

const (
	emailNone emailResult = iota
	emailSent
	emailFailed
	emailSkipped
)

func (e *Engine) notifyAll(ctx context.Context, log *zap.SugaredLogger, s domain.ClassSession, d Decision, held []domain.Booking, out *SessionOutcome) {
	results := make([]emailResult, len(held))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.BookingConcurrency)
	for i, b := range held {
		if !b.Eligible() || b.Notified() {
			continue
		}
		i, b := i, b
		g.Go(func() error {
			results[i] = e.notifyOne(ctx, log.With("booking_id", b.ID), s, d, b)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r {
		case emailSent:
			if d.Proceed {
				out.EmailsConfirmed++
			} else {
				out.EmailsCancelled++
			}
		case emailFailed:
			out.EmailsFailed++
		case emailSkipped:
			out.EmailsSkipped++
		}
	}
}

func (e *Engine) notifyOne(ctx context.Context, log *zap.SugaredLogger, s domain.ClassSession, d Decision, b domain.Booking) (res emailResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("notification panicked", "panic", r)
			res = emailFailed
		}
	}()

	if !b.Contact.Addressable() {
		log.Infow("no contact email, skipping notification")
		return emailSkipped
	}

	var won bool
	err := e.call(ctx, func(ctx context.Context) (err error) {
		won, err = e.bookings.ClaimNotification(ctx, b.ID)
		return err
	})
	if err != nil {
		log.Errorw("claim notification failed", "err", err)
		return emailFailed
	}
	if !won {
		log.Debugw("notification already claimed by another pass")
		return emailNone
	}

	err = e.call(ctx, func(ctx context.Context) error {
		return e.notifier.Send(ctx, d.Email, b.Contact, s, b)
	})
	if err != nil {
		log.Errorw("notification failed", "kind", d.Email, "err", err)
		rerr := e.call(ctx, func(ctx context.Context) error {
			return e.bookings.ReleaseNotification(ctx, b.ID)
		})
		if rerr != nil {
			log.Errorw("release notification claim failed", "err", rerr)
		}
		return emailFailed
	}
	return emailSent
}

type paymentResult int

const (
	paymentNone paymentResult = iota
	paymentSettled
	paymentFailed
	paymentSkipped
)

func (e *Engine) settlePayments(ctx context.Context, log *zap.SugaredLogger, runID string, s domain.ClassSession, d Decision, held []domain.Booking, out *SessionOutcome) {
	results := make([]paymentResult, len(held))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.BookingConcurrency)
	for i, b := range held {
		i, b := i, b
		g.Go(func() error {
			results[i] = e.settlePayment(ctx, log.With("booking_id", b.ID, "reference_id", b.Reference()), runID, d, b)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r {
		case paymentSettled:
			if d.Proceed {
				out.PaymentsCaptured++
			} else {
				out.PaymentsCanceled++
			}
		case paymentFailed:
			out.PaymentsFailed++
		case paymentSkipped:
			out.PaymentsSkipped++
		}
	}
}

func (e *Engine) settlePayment(ctx context.Context, log *zap.SugaredLogger, runID string, d Decision, b domain.Booking) (res paymentResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("payment settlement panicked", "panic", r)
			res = paymentFailed
		}
	}()

	// A booking cancelled before this pass is never charged.
	if d.Proceed && !b.BookingStatus.Active() {
		log.Warnw("held booking is no longer active, leaving for manual reconciliation", "booking_status", b.BookingStatus)
		return paymentSkipped
	}

	var current domain.PaymentStatus
	err := e.call(ctx, func(ctx context.Context) (err error) {
		current, err = e.bookings.CurrentPaymentStatus(ctx, b.ID)
		return err
	})
	if err != nil {
		log.Errorw("payment status re-read failed", "err", err)
		return paymentFailed
	}
	if current != domain.PaymentHeld {
		log.Infow("payment already settled, skipping", "payment_status", current)
		return paymentSkipped
	}

	var won bool
	err = e.call(ctx, func(ctx context.Context) (err error) {
		won, err = e.bookings.ClaimPayment(ctx, b.ID, e.claimLease())
		return err
	})
	if err != nil {
		log.Errorw("claim payment failed", "err", err)
		return paymentFailed
	}
	if !won {
		log.Infow("payment claimed by another pass, skipping")
		return paymentSkipped
	}

	hold := payments.Hold{ReferenceID: b.Reference(), Amount: b.PaymentAmount}
	var outcome payments.Outcome
	err = e.call(ctx, func(ctx context.Context) (err error) {
		if d.Proceed {
			outcome, err = e.processor.Capture(ctx, hold)
		} else {
			outcome, err = e.processor.CancelAuthorization(ctx, hold)
		}
		return err
	})
	if err != nil || !outcome.Succeeded {
		status := outcome.Status
		if status == "" {
			status = "error"
		}
		log.Errorw("payment action failed", "action", d.Action, "status", status, "err", err)
		e.note(ctx, log, b.ID, fmt.Sprintf("%s %s at %s", d.Action, status, e.opts.Now().UTC().Format(time.RFC3339)))
		e.releasePayment(ctx, log, b.ID)
		e.publishPayment(ctx, log, events.KeyPaymentFailed, runID, d, b, status, err)
		return paymentFailed
	}

	var updated bool
	err = e.call(ctx, func(ctx context.Context) (err error) {
		updated, err = e.bookings.UpdateSingle(ctx, b.ID, d.PaymentStatus, d.BookingStatus, "")
		return err
	})
	if err != nil || !updated {
		// The processor pre-check makes the next pass finish this booking.
		log.Errorw("booking update after payment failed", "action", d.Action, "status", outcome.Status, "updated", updated, "err", err)
		e.releasePayment(ctx, log, b.ID)
		return paymentFailed
	}

	log.Infow("payment settled", "action", d.Action, "status", outcome.Status, "amount", b.PaymentAmount.StringFixed(2))
	key := events.KeyPaymentCanceled
	if d.Proceed {
		key = events.KeyPaymentCaptured
	}
	e.publishPayment(ctx, log, key, runID, d, b, outcome.Status, nil)
	return paymentSettled
}

// call bounds one external call by the configured timeout.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	return fn(ctx)
}

// claimLease covers the re-read, claim, processor call and update of one
// booking, each bounded by CallTimeout.
func (e *Engine) claimLease() time.Duration {
	return 4 * e.opts.CallTimeout
}

func (e *Engine) releasePayment(ctx context.Context, log *zap.SugaredLogger, bookingID string) {
	err := e.call(ctx, func(ctx context.Context) error {
		return e.bookings.ReleasePayment(ctx, bookingID)
	})
	if err != nil {
		log.Errorw("release payment claim failed", "err", err)
	}
}

func (e *Engine) note(ctx context.Context, log *zap.SugaredLogger, bookingID, note string) {
	err := e.call(ctx, func(ctx context.Context) error {
		return e.bookings.AppendNote(ctx, bookingID, note)
	})
	if err != nil {
		log.Errorw("append note failed", "err", err)
	}
}

func (e *Engine) publish(ctx context.Context, log *zap.SugaredLogger, key string, v any) {
	err := e.call(ctx, func(ctx context.Context) error {
		return e.pub.PublishJSON(ctx, key, v)
	})
	if err != nil {
		log.Warnw("publish event failed", "key", key, "err", err)
	}
}

func (e *Engine) publishPayment(ctx context.Context, log *zap.SugaredLogger, key, runID string, d Decision, b domain.Booking, status string, cause error) {
	ev := events.PaymentSettled{
		RunID:       runID,
		SessionID:   b.SessionID,
		BookingID:   b.ID,
		ReferenceID: b.Reference(),
		Action:      d.Action,
		Status:      status,
		At:          e.opts.Now(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	e.publish(ctx, log, key, ev)
}

func (e *Engine) save(ctx context.Context, log *zap.SugaredLogger, r Report) {
	if e.runs == nil {
		return
	}
	err := e.call(ctx, func(ctx context.Context) error {
		return e.runs.Save(ctx, r)
	})
	if err != nil {
		log.Errorw("persist settlement run failed", "err", err)
	}
}

func decisionWord(d Decision) string {
	if d.Proceed {
		return "proceed"
	}
	return "abort"
}
