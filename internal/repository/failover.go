package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/valenrosasc/chatbot/internal/conversation"
)

const recheckInterval = time.Minute

// FailoverSessionStore uses primary while it is healthy and switches to
// fallback after a primary failure. The primary is retried once per
// recheckInterval.
type FailoverSessionStore struct {
	primary  conversation.SessionStore
	fallback conversation.SessionStore
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSessionStore(primary, fallback conversation.SessionStore, logger *zerolog.Logger) *FailoverSessionStore {
	l := logger.With().Str("component", "session_failover").Logger()
	return &FailoverSessionStore{primary: primary, fallback: fallback, logger: &l}
}

func (f *FailoverSessionStore) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Since(f.lastCheck) >= recheckInterval
}

func (f *FailoverSessionStore) markDown(err error) {
	if !f.isDown.Swap(true) {
		f.logger.Warn().Err(err).Msg("primary session store failed, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *FailoverSessionStore) markUp() {
	if f.isDown.Swap(false) {
		f.logger.Info().Msg("primary session store recovered")
	}
}

// Get reads from the primary. A session the fallback picked up during an
// outage is moved to the primary once it answers again.
func (f *FailoverSessionStore) Get(ctx context.Context, senderID string) (*conversation.Session, error) {
	if f.usePrimary() {
		s, err := f.primary.Get(ctx, senderID)
		switch {
		case err == nil:
			f.markUp()
			f.dropFallback(ctx, senderID)
			return s, nil
		case errors.Is(err, conversation.ErrSessionNotFound):
			f.markUp()
			return f.promote(ctx, senderID)
		}
		f.markDown(err)
	}
	return f.fallback.Get(ctx, senderID)
}

func (f *FailoverSessionStore) Put(ctx context.Context, session *conversation.Session) error {
	if f.usePrimary() {
		err := f.primary.Put(ctx, session)
		if err == nil {
			f.markUp()
			f.dropFallback(ctx, session.SenderID)
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.Put(ctx, session)
}

func (f *FailoverSessionStore) promote(ctx context.Context, senderID string) (*conversation.Session, error) {
	s, err := f.fallback.Get(ctx, senderID)
	if err != nil {
		return nil, conversation.ErrSessionNotFound
	}
	if err := f.primary.Put(ctx, s); err != nil {
		f.markDown(err)
		return s, nil
	}
	f.dropFallback(ctx, senderID)
	f.logger.Debug().Str("sender", senderID).Msg("session moved back to primary store")
	return s, nil
}

// dropFallback removes the fallback copy once the primary holds the session.
func (f *FailoverSessionStore) dropFallback(ctx context.Context, senderID string) {
	if err := f.fallback.Delete(ctx, senderID); err != nil {
		f.logger.Warn().Err(err).Str("sender", senderID).Msg("failed to clear fallback session")
	}
}

func (f *FailoverSessionStore) Delete(ctx context.Context, senderID string) error {
	// Sessions may live in either store after a failover.
	fallbackErr := f.fallback.Delete(ctx, senderID)
	if f.usePrimary() {
		err := f.primary.Delete(ctx, senderID)
		if err == nil {
			f.markUp()
			return fallbackErr
		}
		f.markDown(err)
	}
	return fallbackErr
}
