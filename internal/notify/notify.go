// Package notify renders and sends the settlement emails. Each booking gets a
// confirmation when its session proceeds or a cancellation when it does not.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/example/class-settlement/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindCancellation Kind = "cancellation"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Transport interface {
	Send(ctx context.Context, m Message) error
}

// LinkSigner produces the opaque token used in "view booking" links.
type LinkSigner interface {
	Sign(bookingID, sessionID string) (string, error)
}

type Options struct {
	BaseURL  string
	Location *time.Location
	Links    LinkSigner
}

type Sender struct {
	transport Transport
	opts      Options

	html *htmltemplate.Template
	text *texttemplate.Template
}

func NewSender(t Transport, opts Options) (*Sender, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	h, err := htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	tx, err := texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Sender{transport: t, opts: opts, html: h, text: tx}, nil
}

func (s *Sender) SendConfirmation(ctx context.Context, c domain.Contact, sess domain.ClassSession, b domain.Booking) error {
	return s.Send(ctx, KindConfirmation, c, sess, b)
}

func (s *Sender) SendCancellation(ctx context.Context, c domain.Contact, sess domain.ClassSession, b domain.Booking) error {
	return s.Send(ctx, KindCancellation, c, sess, b)
}

// Send renders the kind's template pair and hands it to the transport.
func (s *Sender) Send(ctx context.Context, kind Kind, c domain.Contact, sess domain.ClassSession, b domain.Booking) error {
	if !c.Addressable() {
		return domain.ErrUnaddressable
	}
	m, err := s.Render(kind, c, sess, b)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, m)
}

type templateData struct {
	ParentName      string
	ChildName       string
	Title           string
	When            string
	DurationMinutes int
	Amount          string
	Link            string
}

func (s *Sender) Render(kind Kind, c domain.Contact, sess domain.ClassSession, b domain.Booking) (Message, error) {
	data := templateData{
		ParentName:      firstNonEmpty(c.ParentName, "there"),
		ChildName:       firstNonEmpty(c.ChildName, "your child"),
		Title:           sess.Title,
		When:            s.when(sess),
		DurationMinutes: sess.DurationMinutes,
		Amount:          "$" + b.PaymentAmount.StringFixed(2),
		Link:            s.link(b),
	}

	var subject string
	switch kind {
	case KindConfirmation:
		subject = fmt.Sprintf("Confirmed: %s is going ahead", sess.Title)
	case KindCancellation:
		subject = fmt.Sprintf("Cancelled: %s (you have not been charged)", sess.Title)
	default:
		return Message{}, fmt.Errorf("unknown email kind %q", kind)
	}

	var html, text bytes.Buffer
	if err := s.html.ExecuteTemplate(&html, string(kind)+".html.tmpl", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	if err := s.text.ExecuteTemplate(&text, string(kind)+".txt.tmpl", data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", kind, err)
	}

	return Message{
		To:      strings.TrimSpace(c.Email),
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func (s *Sender) when(sess domain.ClassSession) string {
	t, err := sess.StartsAt(s.opts.Location)
	if err != nil {
		return strings.TrimSpace(sess.Date + " " + sess.StartTime)
	}
	return t.Format("Monday, January 2 at 3:04 PM MST")
}

// link is best effort; an email without a link is still sent.
func (s *Sender) link(b domain.Booking) string {
	if s.opts.Links == nil || s.opts.BaseURL == "" {
		return ""
	}
	tok, err := s.opts.Links.Sign(b.ID, b.SessionID)
	if err != nil {
		return ""
	}
	return strings.TrimRight(s.opts.BaseURL, "/") + "/bookings/view?t=" + url.QueryEscape(tok)
}

func firstNonEmpty(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
