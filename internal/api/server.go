// Package api exposes the bot over HTTP: health probes, a generic chat
// webhook and the appointment export.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/valenrosasc/chatbot/internal/conversation"
	"github.com/valenrosasc/chatbot/internal/export"
)

const maxBodyBytes = 64 << 10

// MessageHandler runs one conversation step.
type MessageHandler interface {
	HandleMessage(ctx context.Context, in conversation.Inbound) ([]string, error)
}

// Pinger reports whether the database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	Port                 int
	APIKey               string
	VerifyToken          string
	WebhookRatePerMinute int
}

// HTTPServer serves /health, /healthz, /readyz, /webhook and /export.
type HTTPServer struct {
	opts    Options
	handler MessageHandler
	db      Pinger
	redis   *redis.Client
	store   export.AppointmentLister
	limiter *senderLimiter
	logger  *zerolog.Logger
	ready   atomic.Bool
	started time.Time
	now     func() time.Time
	server  *http.Server
}

// NewHTTPServer builds the server. rdb may be nil when sessions live in memory.
func NewHTTPServer(opts Options, handler MessageHandler, db Pinger, rdb *redis.Client, store export.AppointmentLister, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "http").Logger()
	s := &HTTPServer{
		opts:    opts,
		handler: handler,
		db:      db,
		redis:   rdb,
		store:   store,
		limiter: newSenderLimiter(opts.WebhookRatePerMinute),
		logger:  &l,
		now:     time.Now,
	}
	s.started = s.now()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routing table.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/export", s.handleExport)
	return mux
}

// MarkReady flips /health to ok once initialization is complete.
func (s *HTTPServer) MarkReady() {
	s.ready.Store(true)
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
