package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/valenrosasc/chatbot/internal/conversation"
	"github.com/valenrosasc/chatbot/internal/models"
)

type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) HandleMessage(ctx context.Context, in conversation.Inbound) ([]string, error) {
	args := m.Called(ctx, in)
	var replies []string
	if v := args.Get(0); v != nil {
		replies = v.([]string)
	}
	return replies, args.Error(1)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

type fakeLister struct {
	appts []models.Appointment
	err   error
}

func (f fakeLister) ListAppointments(context.Context) ([]models.Appointment, error) {
	return f.appts, f.err
}

func newTestServer(t *testing.T, opts Options, handler MessageHandler, db Pinger, rdb *redis.Client, store fakeLister) *HTTPServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	return NewHTTPServer(opts, handler, db, rdb, store, &logger)
}

func TestHealth(t *testing.T) {
	start := time.Date(2025, 3, 6, 10, 0, 0, 0, time.UTC)

	t.Run("StartingThenReady", func(t *testing.T) {
		s := newTestServer(t, Options{}, &MockHandler{}, fakePinger{}, nil, fakeLister{})
		s.started = start
		s.now = func() time.Time { return start.Add(90 * time.Second) }

		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.JSONEq(t, `{"status":"starting"}`, rr.Body.String())

		s.MarkReady()
		rr = httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok","uptime_seconds":90}`, rr.Body.String())
	})

	t.Run("ZeroUptimeIsReported", func(t *testing.T) {
		s := newTestServer(t, Options{}, &MockHandler{}, fakePinger{}, nil, fakeLister{})
		s.started = start
		s.now = func() time.Time { return start.Add(400 * time.Millisecond) }
		s.MarkReady()

		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok","uptime_seconds":0}`, rr.Body.String())
	})
}

func TestLivenessAndReadiness(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tests := []struct {
		name       string
		db         Pinger
		stopRedis  bool
		ready      bool
		path       string
		wantStatus int
	}{
		{"liveness always ok", fakePinger{err: errors.New("down")}, false, false, "/healthz", http.StatusOK},
		{"not ready before init", fakePinger{}, false, false, "/readyz", http.StatusServiceUnavailable},
		{"ready", fakePinger{}, false, true, "/readyz", http.StatusOK},
		{"db down", fakePinger{err: errors.New("closed")}, false, true, "/readyz", http.StatusServiceUnavailable},
		{"redis down", fakePinger{}, true, true, "/readyz", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.stopRedis {
				mr.SetError("LOADING")
				defer mr.SetError("")
			}
			s := newTestServer(t, Options{}, &MockHandler{}, tt.db, rdb, fakeLister{})
			if tt.ready {
				s.MarkReady()
			}
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestWebhookVerify(t *testing.T) {
	s := newTestServer(t, Options{VerifyToken: "secret"}, &MockHandler{}, fakePinger{}, nil, fakeLister{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=12345", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=secret&hub.challenge=12345", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, http.NoBody))
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rr.Body.String())
			}
		})
	}
}

func TestWebhookMessage(t *testing.T) {
	t.Run("delivers replies", func(t *testing.T) {
		handler := &MockHandler{}
		handler.On("HandleMessage", mock.Anything, conversation.Inbound{SenderID: "573001112233", Text: "hola"}).
			Return([]string{"menu"}, nil).Once()
		s := newTestServer(t, Options{}, handler, fakePinger{}, nil, fakeLister{})

		rr := httptest.NewRecorder()
		body := strings.NewReader(`{"sender_id":"573001112233","text":"hola"}`)
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", body))

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp WebhookResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, []string{"menu"}, resp.Messages)
		handler.AssertExpectations(t)
	})

	t.Run("engine error still replies", func(t *testing.T) {
		handler := &MockHandler{}
		handler.On("HandleMessage", mock.Anything, mock.Anything).
			Return([]string{"try again"}, errors.New("save session: redis down")).Once()
		s := newTestServer(t, Options{}, handler, fakePinger{}, nil, fakeLister{})

		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"sender_id":"1","text":"x"}`)))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"messages":["try again"]}`, rr.Body.String())
	})

	t.Run("bad requests", func(t *testing.T) {
		s := newTestServer(t, Options{}, &MockHandler{}, fakePinger{}, nil, fakeLister{})
		for _, body := range []string{`not json`, `{"text":"hola"}`, `{"sender_id":"  ","text":"hola"}`, `{"sender_id":"1","extra":true}`} {
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		}

		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/webhook", http.NoBody))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("per sender throttle", func(t *testing.T) {
		handler := &MockHandler{}
		handler.On("HandleMessage", mock.Anything, mock.Anything).Return([]string{"ok"}, nil)
		s := newTestServer(t, Options{WebhookRatePerMinute: 2}, handler, fakePinger{}, nil, fakeLister{})

		post := func(sender string) int {
			rr := httptest.NewRecorder()
			body := `{"sender_id":"` + sender + `","text":"hola"}`
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body)))
			return rr.Code
		}

		assert.Equal(t, http.StatusOK, post("a"))
		assert.Equal(t, http.StatusOK, post("a"))
		assert.Equal(t, http.StatusTooManyRequests, post("a"))
		assert.Equal(t, http.StatusOK, post("b"))
	})
}

func TestExport(t *testing.T) {
	store := fakeLister{appts: []models.Appointment{
		{ID: 1, PersonID: "111", FullName: "Ana", Phone: "300", Date: "06-03-2025", TimeSlot: "15:00"},
	}}

	t.Run("requires api key", func(t *testing.T) {
		s := newTestServer(t, Options{APIKey: "k"}, &MockHandler{}, fakePinger{}, nil, store)
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/export", http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("disabled without configured key", func(t *testing.T) {
		s := newTestServer(t, Options{}, &MockHandler{}, fakePinger{}, nil, store)
		req := httptest.NewRequest(http.MethodGet, "/export", http.NoBody)
		req.Header.Set("X-API-Key", "")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("returns workbook", func(t *testing.T) {
		s := newTestServer(t, Options{APIKey: "k"}, &MockHandler{}, fakePinger{}, nil, store)
		req := httptest.NewRequest(http.MethodGet, "/export", http.NoBody)
		req.Header.Set("X-API-Key", "k")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), ".xlsx")

		f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Citas")
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("store failure", func(t *testing.T) {
		s := newTestServer(t, Options{APIKey: "k"}, &MockHandler{}, fakePinger{}, nil, fakeLister{err: errors.New("closed")})
		req := httptest.NewRequest(http.MethodGet, "/export", http.NoBody)
		req.Header.Set("X-API-Key", "k")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
