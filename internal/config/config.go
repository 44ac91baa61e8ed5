package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/example/class-settlement/internal/notify"
	"github.com/example/class-settlement/internal/payments"
)

type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":8080"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:8080"`

	// settlement
	Timezone           string        `envconfig:"TIMEZONE" default:"America/New_York"`
	HorizonHours       int           `envconfig:"HORIZON_HOURS" default:"24"`
	Schedule           string        `envconfig:"SETTLEMENT_SCHEDULE" default:"*/15 * * * *"`
	SessionConcurrency int           `envconfig:"SESSION_CONCURRENCY" default:"4"`
	BookingConcurrency int           `envconfig:"BOOKING_CONCURRENCY" default:"4"`
	CallTimeout        time.Duration `envconfig:"CALL_TIMEOUT" default:"15s"`

	// payment processor
	PaymentProcessor   string `envconfig:"PAYMENT_PROCESSOR" default:"mercadopago"`
	MPAccessToken      string `envconfig:"MP_ACCESS_TOKEN"`
	OmisePublicKey     string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey     string `envconfig:"OMISE_SECRET_KEY"`
	MidtransServerKey  string `envconfig:"MIDTRANS_SERVER_KEY"`
	MidtransProduction bool   `envconfig:"MIDTRANS_PRODUCTION" default:"false"`

	// mail; an empty SMTP_HOST logs emails instead of sending them
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	MailFrom     string `envconfig:"MAIL_FROM" default:"classes@localhost"`

	// base64 securecookie keys for booking links, or paths to files holding them
	LinkHashKey  string `envconfig:"LINK_HASH_KEY"`
	LinkBlockKey string `envconfig:"LINK_BLOCK_KEY"`

	TriggerSecretHash string `envconfig:"TRIGGER_SECRET_HASH"`

	RabbitURL          string `envconfig:"RABBIT_URL"`
	SettlementExchange string `envconfig:"SETTLEMENT_EXCHANGE" default:"settlement.exchange"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	DevMode      bool   `envconfig:"DEV_MODE" default:"false"`
	GinMode      string `envconfig:"GIN_MODE" default:"release"`
}

// FromEnv loads .env (when present) and then the process environment.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	if c.HorizonHours < 1 {
		errs = append(errs, fmt.Errorf("HORIZON_HOURS must be >= 1"))
	}
	if c.SessionConcurrency < 1 || c.BookingConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SESSION_CONCURRENCY and BOOKING_CONCURRENCY must be >= 1"))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CALL_TIMEOUT must be positive"))
	}
	switch strings.ToLower(c.PaymentProcessor) {
	case "mercadopago", "mp":
		if c.MPAccessToken == "" {
			errs = append(errs, fmt.Errorf("MP_ACCESS_TOKEN is required for mercadopago"))
		}
	case "omise":
		if c.OmisePublicKey == "" || c.OmiseSecretKey == "" {
			errs = append(errs, fmt.Errorf("OMISE_PUBLIC_KEY and OMISE_SECRET_KEY are required for omise"))
		}
	case "midtrans":
		if c.MidtransServerKey == "" {
			errs = append(errs, fmt.Errorf("MIDTRANS_SERVER_KEY is required for midtrans"))
		}
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_PROCESSOR %q is not one of mercadopago, omise, midtrans", c.PaymentProcessor))
	}
	if (c.LinkHashKey == "") != (c.LinkBlockKey == "") {
		errs = append(errs, fmt.Errorf("LINK_HASH_KEY and LINK_BLOCK_KEY must be set together"))
	}
	return errors.Join(errs...)
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c Config) Horizon() time.Duration {
	return time.Duration(c.HorizonHours) * time.Hour
}

func (c Config) Payments() payments.Config {
	return payments.Config{
		Provider:           c.PaymentProcessor,
		MPAccessToken:      c.MPAccessToken,
		OmisePublicKey:     c.OmisePublicKey,
		OmiseSecretKey:     c.OmiseSecretKey,
		MidtransServerKey:  c.MidtransServerKey,
		MidtransProduction: c.MidtransProduction,
	}
}

func (c Config) SMTP() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.MailFrom,
	}
}

// LinkKeys decodes the booking-link keys. ok is false when none are set.
func (c Config) LinkKeys() (hash, block []byte, ok bool, err error) {
	if c.LinkHashKey == "" {
		return nil, nil, false, nil
	}
	if hash, err = decodeB64(c.LinkHashKey); err != nil {
		return nil, nil, false, fmt.Errorf("LINK_HASH_KEY: %w", err)
	}
	if block, err = decodeB64(c.LinkBlockKey); err != nil {
		return nil, nil, false, fmt.Errorf("LINK_BLOCK_KEY: %w", err)
	}
	switch len(block) {
	case 16, 24, 32:
	default:
		return nil, nil, false, fmt.Errorf("LINK_BLOCK_KEY must decode to 16, 24 or 32 bytes (got %d)", len(block))
	}
	return hash, block, true, nil
}

func decodeB64(s string) ([]byte, error) {
	// allow pointing to file path for k8s secret mounts
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}
