package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/valenrosasc/chatbot/internal/conversation"
	"github.com/valenrosasc/chatbot/internal/metrics"
)

// WebhookRequest is one inbound chat message from a messaging gateway.
type WebhookRequest struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

// WebhookResponse carries the replies to deliver, in order.
type WebhookResponse struct {
	Messages []string `json:"messages"`
}

// handleWebhook dispatches on method.
// GET /webhook performs the verify-token handshake, POST /webhook delivers a message.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("webhook")

	switch r.Method {
	case http.MethodGet:
		s.handleWebhookVerify(w, r)
	case http.MethodPost:
		s.handleWebhookMessage(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET or POST")
	}
}

func (s *HTTPServer) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if s.opts.VerifyToken == "" ||
		q.Get("hub.mode") != "subscribe" ||
		q.Get("hub.verify_token") != s.opts.VerifyToken {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

func (s *HTTPServer) handleWebhookMessage(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.SenderID = strings.TrimSpace(req.SenderID)
	if req.SenderID == "" {
		writeError(w, http.StatusBadRequest, "sender_id is required")
		return
	}

	if !s.limiter.allow(req.SenderID) {
		writeError(w, http.StatusTooManyRequests, "too many messages")
		return
	}

	ctx := s.logger.With().Str("sender", req.SenderID).Logger().WithContext(r.Context())
	replies, err := s.handler.HandleMessage(ctx, conversation.Inbound{SenderID: req.SenderID, Text: req.Text})
	if err != nil {
		// The replies still tell the user what to do next.
		s.logger.Error().Err(err).Str("sender", req.SenderID).Msg("webhook message failed")
	}
	if replies == nil {
		replies = []string{}
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Messages: replies})
}

const limiterPruneSize = 10000

// senderLimiter throttles inbound messages per sender.
type senderLimiter struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

func newSenderLimiter(perMinute int) *senderLimiter {
	return &senderLimiter{perMin: perMinute, limiters: make(map[string]*rate.Limiter)}
}

func (l *senderLimiter) allow(sender string) bool {
	if l.perMin <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[sender]
	if !ok {
		if len(l.limiters) >= limiterPruneSize {
			l.prune()
		}
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)
		l.limiters[sender] = lim
	}
	return lim.Allow()
}

// prune drops limiters that have refilled completely; they carry no state.
func (l *senderLimiter) prune() {
	for sender, lim := range l.limiters {
		if lim.Tokens() >= float64(l.perMin) {
			delete(l.limiters, sender)
		}
	}
}
