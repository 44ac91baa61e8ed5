package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/class-settlement/internal/bookings"
	"github.com/example/class-settlement/internal/domain"
	"github.com/example/class-settlement/internal/notify"
	"github.com/example/class-settlement/internal/payments"
	"github.com/example/class-settlement/internal/window"
)

// effectLog records the order of side effects across fakes.
type effectLog struct {
	mu     sync.Mutex
	events []string
}

func (t *effectLog) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

// first returns the index of the first event with prefix, or -1.
func (t *effectLog) first(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.events {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

func (t *effectLog) last(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.events) - 1; i >= 0; i-- {
		if strings.HasPrefix(t.events[i], prefix) {
			return i
		}
	}
	return -1
}

type memSessions struct {
	sessions []domain.ClassSession
	err      error
	windows  []window.Window
	mu       sync.Mutex
}

func (m *memSessions) ListStartingIn(_ context.Context, w window.Window) ([]domain.ClassSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows = append(m.windows, w)
	if m.err != nil {
		return nil, m.err
	}
	out := []domain.ClassSession{}
	for _, s := range m.sessions {
		if w.Contains(s.Date, s.StartTime) {
			out = append(out, s)
		}
	}
	return out, nil
}

// memBookings is an in-memory booking table with the same filters as the SQL.
type memBookings struct {
	mu    sync.Mutex
	rows  map[string]*domain.Booking
	trace *effectLog

	listActiveErr error
	listHeldErr   error
	bulkErr       error
	updateErr     map[string]error
	claimed       map[string]bool
	// settledElsewhere makes the re-read report a status another pass wrote.
	settledElsewhere map[string]domain.PaymentStatus

	bulkCalls int
}

func newMemBookings(tr *effectLog, bs ...domain.Booking) *memBookings {
	m := &memBookings{rows: map[string]*domain.Booking{}, trace: tr, claimed: map[string]bool{}}
	for _, b := range bs {
		b := b
		m.rows[b.ID] = &b
	}
	return m
}

func (m *memBookings) sorted(sessionID string, keep func(*domain.Booking) bool) []domain.Booking {
	out := []domain.Booking{}
	for _, b := range m.rows {
		if b.SessionID == sessionID && keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memBookings) ListHeld(_ context.Context, sessionID string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listHeldErr != nil {
		return nil, m.listHeldErr
	}
	return m.sorted(sessionID, func(b *domain.Booking) bool {
		return b.PaymentStatus == domain.PaymentHeld && b.Reference() != ""
	}), nil
}

func (m *memBookings) ListActive(_ context.Context, sessionID string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listActiveErr != nil {
		return nil, m.listActiveErr
	}
	return m.sorted(sessionID, func(b *domain.Booking) bool { return b.BookingStatus.Active() }), nil
}

func (m *memBookings) BulkUpdateStatus(_ context.Context, sessionID string, u bookings.StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bulkCalls++
	m.trace.add("bulk:%s", sessionID)
	if m.bulkErr != nil {
		return false, m.bulkErr
	}
	n := 0
	for _, b := range m.rows {
		if b.SessionID != sessionID || !b.BookingStatus.Active() {
			continue
		}
		if u.PaymentStatus != nil {
			b.PaymentStatus = *u.PaymentStatus
		}
		b.BookingStatus = u.BookingStatus
		b.Notes = appendNote(b.Notes, u.Notes)
		n++
	}
	return n > 0, nil
}

func (m *memBookings) UpdateSingle(_ context.Context, id string, p domain.PaymentStatus, bs domain.BookingStatus, notes string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[id]; err != nil {
		return false, err
	}
	b, ok := m.rows[id]
	if !ok || b.PaymentStatus != domain.PaymentHeld {
		return false, nil
	}
	delete(m.claimed, id)
	b.PaymentStatus = p
	b.BookingStatus = bs
	b.Notes = appendNote(b.Notes, notes)
	now := time.Now()
	b.SettledAt = &now
	return true, nil
}

func (m *memBookings) CurrentPaymentStatus(_ context.Context, id string) (domain.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settledElsewhere[id]; ok {
		return s, nil
	}
	b, ok := m.rows[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return b.PaymentStatus, nil
}

func (m *memBookings) ClaimPayment(_ context.Context, id string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.PaymentStatus != domain.PaymentHeld || m.claimed[id] {
		return false, nil
	}
	m.claimed[id] = true
	return true, nil
}

func (m *memBookings) ReleasePayment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, id)
	return nil
}

func (m *memBookings) ClaimNotification(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok || b.NotifiedAt != nil {
		return false, nil
	}
	now := time.Now()
	b.NotifiedAt = &now
	return true, nil
}

func (m *memBookings) ReleaseNotification(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.rows[id]; ok {
		b.NotifiedAt = nil
	}
	return nil
}

func (m *memBookings) AppendNote(_ context.Context, id, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.rows[id]; ok {
		b.Notes = appendNote(b.Notes, note)
	}
	return nil
}

func (m *memBookings) get(id string) domain.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func appendNote(notes, note string) string {
	switch {
	case note == "":
		return notes
	case notes == "":
		return note
	default:
		return notes + "\n" + note
	}
}

type fakeProcessor struct {
	mu       sync.Mutex
	trace    *effectLog
	captured map[string]int
	canceled map[string]int
	calls    map[string]int
	failOn   map[string]error
	status   map[string]string // non-success status to report
	panicOn  map[string]bool
	delay    time.Duration
}

func newFakeProcessor(tr *effectLog) *fakeProcessor {
	return &fakeProcessor{
		trace:    tr,
		captured: map[string]int{},
		canceled: map[string]int{},
		calls:    map[string]int{},
		failOn:   map[string]error{},
		status:   map[string]string{},
		panicOn:  map[string]bool{},
	}
}

// act charges or releases at most once per reference; a repeat reports
// success like the adapters' pre-read does.
func (f *fakeProcessor) act(op string, h payments.Hold, counts map[string]int, ok string) (payments.Outcome, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace.add("pay:%s:%s", op, h.ReferenceID)
	f.calls[h.ReferenceID]++
	if f.panicOn[h.ReferenceID] {
		panic("processor exploded")
	}
	if err := f.failOn[h.ReferenceID]; err != nil {
		return payments.Outcome{}, err
	}
	if s, bad := f.status[h.ReferenceID]; bad {
		return payments.Outcome{Status: s}, nil
	}
	if counts[h.ReferenceID] == 0 {
		counts[h.ReferenceID]++
	}
	return payments.Outcome{Succeeded: true, Status: ok}, nil
}

func (f *fakeProcessor) Capture(_ context.Context, h payments.Hold) (payments.Outcome, error) {
	return f.act("capture", h, f.captured, "approved")
}

func (f *fakeProcessor) CancelAuthorization(_ context.Context, h payments.Hold) (payments.Outcome, error) {
	return f.act("cancel", h, f.canceled, "cancelled")
}

func (f *fakeProcessor) total(m map[string]int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

type sentEmail struct {
	kind      notify.Kind
	bookingID string
	to        string
}

type fakeNotifier struct {
	mu     sync.Mutex
	trace  *effectLog
	sent   []sentEmail
	failOn map[string]bool
	delay  time.Duration
}

func (f *fakeNotifier) Send(_ context.Context, kind notify.Kind, c domain.Contact, _ domain.ClassSession, b domain.Booking) error {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trace.add("notify:%s", b.ID)
	if f.failOn[b.ID] {
		return errors.New("smtp 451")
	}
	f.sent = append(f.sent, sentEmail{kind: kind, bookingID: b.ID, to: c.Email})
	return nil
}

func (f *fakeNotifier) count(kind notify.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type memRuns struct {
	mu      sync.Mutex
	reports []Report
}

func (m *memRuns) Save(_ context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, r)
	return nil
}

type memPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (m *memPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return nil
}

func (m *memPublisher) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range m.keys {
		if k == key {
			n++
		}
	}
	return n
}

// fixture builders

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

// sessionAt returns a session starting d after testNow.
func sessionAt(id string, d time.Duration, min, enrolled int) domain.ClassSession {
	start := testNow.Add(d)
	return domain.ClassSession{
		ID:              id,
		Title:           "Class " + id,
		Date:            start.Format(domain.DateLayout),
		StartTime:       start.Format(domain.TimeLayout),
		DurationMinutes: 60,
		MinStudents:     min,
		MaxStudents:     12,
		Enrolled:        enrolled,
	}
}

func heldBookings(sessionID string, n int) []domain.Booking {
	out := make([]domain.Booking, 0, n)
	for i := 0; i < n; i++ {
		ref := fmt.Sprintf("%s-ref-%02d", sessionID, i)
		out = append(out, domain.Booking{
			ID:                 fmt.Sprintf("%s-b%02d", sessionID, i),
			SessionID:          sessionID,
			StudentID:          fmt.Sprintf("st-%02d", i),
			PaymentStatus:      domain.PaymentHeld,
			BookingStatus:      domain.BookingPending,
			PaymentAmount:      decimal.RequireFromString("45.00"),
			PaymentReferenceID: &ref,
			Contact: domain.Contact{
				ParentName: fmt.Sprintf("Parent %d", i),
				ChildName:  fmt.Sprintf("Child %d", i),
				Email:      fmt.Sprintf("parent%d@example.com", i),
			},
		})
	}
	return out
}

type harness struct {
	trace     *effectLog
	sessions  *memSessions
	bookings  *memBookings
	processor *fakeProcessor
	notifier  *fakeNotifier
	runs      *memRuns
	pub       *memPublisher
	engine    *Engine
}

func newHarness(sessions []domain.ClassSession, bs []domain.Booking) *harness {
	tr := &effectLog{}
	h := &harness{
		trace:     tr,
		sessions:  &memSessions{sessions: sessions},
		bookings:  newMemBookings(tr, bs...),
		processor: newFakeProcessor(tr),
		notifier:  &fakeNotifier{trace: tr, failOn: map[string]bool{}},
		runs:      &memRuns{},
		pub:       &memPublisher{},
	}
	e, err := NewEngine(Deps{
		Sessions:  h.sessions,
		Bookings:  h.bookings,
		Processor: h.processor,
		Notifier:  h.notifier,
		Runs:      h.runs,
		Publisher: h.pub,
	}, Options{
		Horizon:            24 * time.Hour,
		Location:           time.UTC,
		SessionConcurrency: 3,
		BookingConcurrency: 4,
		CallTimeout:        time.Second,
		Now:                func() time.Time { return testNow },
	})
	if err != nil {
		panic(err)
	}
	h.engine = e
	return h
}
