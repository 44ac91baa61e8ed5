package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/class-settlement/internal/auth"
	"github.com/example/class-settlement/internal/domain"
	"github.com/example/class-settlement/internal/settlement"
)

type Runner interface {
	RunOnce(ctx context.Context) (settlement.Report, error)
}

type RunHistory interface {
	Latest(ctx context.Context) (settlement.Report, error)
}

type BookingLookup interface {
	Get(ctx context.Context, bookingID string) (domain.Booking, error)
}

type LinkVerifier interface {
	Verify(token string) (bookingID, sessionID string, err error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP trigger for settlement passes, for deployments where an
// external cron polls instead of the in-process scheduler.
type Server struct {
	Runner   Runner
	Runs     RunHistory
	Bookings BookingLookup
	Links    LinkVerifier
	DB       Pinger

	TriggerSecretHash string
	Log               *zap.SugaredLogger
}

const requestIDKey = "request_id"

func (s *Server) Routes(ginMode string) *gin.Engine {
	if s.Log == nil {
		s.Log = zap.NewNop().Sugar()
	}
	gin.SetMode(ginMode)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(RequestID())

	r.GET("/healthz", s.handleHealth)
	r.GET("/bookings/view", s.handleBookingView)

	api := r.Group("/api/settlement", s.requireTrigger())
	{
		api.POST("/run", s.handleRun)
		api.GET("/run", s.handleRun)
		api.GET("/runs/latest", s.handleLatest)
	}
	return r
}

// RequestID tags each request with X-Request-ID, generating one if absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) requireTrigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.TriggerSecretHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "trigger secret not configured"})
			return
		}
		tok, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok || !auth.CheckSecret(s.TriggerSecretHash, tok) {
			s.Log.Warnw("rejected settlement trigger", "request_id", c.GetString(requestIDKey), "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.DB != nil {
		if err := s.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRun(c *gin.Context) {
	// The pass completes even if the poller gives up waiting.
	ctx := context.WithoutCancel(c.Request.Context())
	rid := c.GetString(requestIDKey)

	s.Log.Infow("settlement triggered over http", "request_id", rid)
	report, err := s.Runner.RunOnce(ctx)
	if err != nil {
		s.Log.Errorw("settlement pass failed", "request_id", rid, "run_id", report.RunID, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleLatest(c *gin.Context) {
	if s.Runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history not available"})
		return
	}
	report, err := s.Runs.Latest(c.Request.Context())
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no settlement runs yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type bookingView struct {
	BookingID     string               `json:"bookingId"`
	SessionID     string               `json:"sessionId"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	BookingStatus domain.BookingStatus `json:"bookingStatus"`
	Amount        string               `json:"amount"`
	SettledAt     *time.Time           `json:"settledAt,omitempty"`
}

// handleBookingView resolves the signed link sent in settlement emails.
func (s *Server) handleBookingView(c *gin.Context) {
	if s.Links == nil || s.Bookings == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking links are disabled"})
		return
	}
	bookingID, sessionID, err := s.Links.Verify(c.Query("t"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	b, err := s.Bookings.Get(c.Request.Context(), bookingID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && b.SessionID != sessionID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bookingView{
		BookingID:     b.ID,
		SessionID:     b.SessionID,
		PaymentStatus: b.PaymentStatus,
		BookingStatus: b.BookingStatus,
		Amount:        b.PaymentAmount.StringFixed(2),
		SettledAt:     b.SettledAt,
	})
}

func Start(ctx context.Context, addr string, h http.Handler, log *zap.SugaredLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Infow("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
