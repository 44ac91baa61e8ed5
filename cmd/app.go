package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/class-settlement/internal/auth"
	"github.com/example/class-settlement/internal/bookings"
	"github.com/example/class-settlement/internal/config"
	"github.com/example/class-settlement/internal/db"
	"github.com/example/class-settlement/internal/events"
	"github.com/example/class-settlement/internal/migrate"
	"github.com/example/class-settlement/internal/notify"
	"github.com/example/class-settlement/internal/obs"
	"github.com/example/class-settlement/internal/payments"
	"github.com/example/class-settlement/internal/runs"
	"github.com/example/class-settlement/internal/sessions"
	"github.com/example/class-settlement/internal/settlement"
)

const linkTTL = 30 * 24 * time.Hour

// app holds everything a command needs; close releases it in reverse order.
type app struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	db       *db.DB
	sessions *sessions.Repo
	bookings *bookings.Repo
	runs     *runs.Repo
	links    *auth.Links
	engine   *settlement.Engine

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setup(ctx context.Context, migrateUp bool) (_ *app, err error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	log, err := obs.NewLogger(cfg.DevMode)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	shutdownTracer, err := obs.InitTracer(ctx, "classsettle", Version, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warnw("tracer shutdown", "err", err)
		}
	})

	a.db, err = db.Open(ctx, cfg.DatabaseURL, db.Options{
		MaxConns:        int32(cfg.SessionConcurrency*cfg.BookingConcurrency + 2),
		ApplicationName: "classsettle",
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)
	if err := a.db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if migrateUp {
		applied, err := migrate.Up(ctx, a.db)
		if err != nil {
			return nil, err
		}
		if len(applied) > 0 {
			log.Infow("migrations applied", "files", applied)
		}
	}

	a.sessions = sessions.NewRepo(a.db)
	a.bookings = bookings.NewRepo(a.db)
	a.runs = runs.NewRepo(a.db)

	proc, err := payments.New(cfg.Payments())
	if err != nil {
		return nil, err
	}

	hash, block, ok, err := cfg.LinkKeys()
	if err != nil {
		return nil, err
	}
	if ok {
		a.links = auth.NewLinks(hash, block, linkTTL)
	}

	var transport notify.Transport = notify.LogTransport{Log: log}
	if cfg.SMTPHost != "" {
		if transport, err = notify.NewSMTP(cfg.SMTP()); err != nil {
			return nil, err
		}
	} else {
		log.Warnw("SMTP_HOST not set; emails are logged, not sent")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := notify.Options{BaseURL: cfg.BaseURL, Location: loc}
	if a.links != nil {
		opts.Links = a.links
	}
	sender, err := notify.NewSender(transport, opts)
	if err != nil {
		return nil, err
	}

	var pub settlement.Publisher = events.Nop{}
	if cfg.RabbitURL != "" {
		p, err := events.NewPublisher(cfg.RabbitURL, cfg.SettlementExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		pub = p
	}

	a.engine, err = settlement.NewEngine(settlement.Deps{
		Sessions:  a.sessions,
		Bookings:  a.bookings,
		Processor: proc,
		Notifier:  sender,
		Runs:      a.runs,
		Publisher: pub,
		Log:       log,
	}, settlement.Options{
		Horizon:            cfg.Horizon(),
		Location:           loc,
		SessionConcurrency: cfg.SessionConcurrency,
		BookingConcurrency: cfg.BookingConcurrency,
		CallTimeout:        cfg.CallTimeout,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}
