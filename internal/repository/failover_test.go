package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/valenrosasc/chatbot/internal/conversation"
)

// flakySessions is an in-memory primary that can be switched off.
type flakySessions struct {
	*conversation.MemorySessionStore
	down bool
}

var errPrimaryDown = errors.New("connection refused")

func (f *flakySessions) Get(ctx context.Context, senderID string) (*conversation.Session, error) {
	if f.down {
		return nil, errPrimaryDown
	}
	return f.MemorySessionStore.Get(ctx, senderID)
}

func (f *flakySessions) Put(ctx context.Context, session *conversation.Session) error {
	if f.down {
		return errPrimaryDown
	}
	return f.MemorySessionStore.Put(ctx, session)
}

func (f *flakySessions) Delete(ctx context.Context, senderID string) error {
	if f.down {
		return errPrimaryDown
	}
	return f.MemorySessionStore.Delete(ctx, senderID)
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) Get(ctx context.Context, senderID string) (*conversation.Session, error) {
	args := m.Called(ctx, senderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversation.Session), args.Error(1)
}

func (m *mockSessions) Put(ctx context.Context, session *conversation.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessions) Delete(ctx context.Context, senderID string) error {
	args := m.Called(ctx, senderID)
	return args.Error(0)
}

func TestFailoverSessionStore(t *testing.T) {
	primary := new(mockSessions)
	fallback := new(mockSessions)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		state := &conversation.Session{SenderID: "1"}
		primary.On("Get", ctx, "1").Return(state, nil).Once()
		fallback.On("Delete", ctx, "1").Return(nil).Once()

		got, err := repo.Get(ctx, "1")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryNotFoundIsNotAFailure", func(t *testing.T) {
		primary.On("Get", ctx, "x").Return(nil, conversation.ErrSessionNotFound).Once()
		fallback.On("Get", ctx, "x").Return(nil, conversation.ErrSessionNotFound).Once()

		_, err := repo.Get(ctx, "x")
		assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
		assert.False(t, repo.isDown.Load())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		state := &conversation.Session{SenderID: "2"}
		primary.On("Get", ctx, "2").Return(nil, errors.New("fail")).Once()
		fallback.On("Get", ctx, "2").Return(state, nil).Once()

		got, err := repo.Get(ctx, "2")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("WhileDownUsesFallbackOnly", func(t *testing.T) {
		state := &conversation.Session{SenderID: "4"}
		fallback.On("Put", ctx, state).Return(nil).Once()

		assert.NoError(t, repo.Put(ctx, state))
		primary.AssertNotCalled(t, "Put", ctx, state)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		state := &conversation.Session{SenderID: "3"}
		primary.On("Get", ctx, "3").Return(state, nil).Once()
		fallback.On("Delete", ctx, "3").Return(nil).Once()

		got, err := repo.Get(ctx, "3")
		assert.NoError(t, err)
		assert.Equal(t, state, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("DeleteClearsBoth", func(t *testing.T) {
		fallback.On("Delete", ctx, "5").Return(nil).Once()
		primary.On("Delete", ctx, "5").Return(nil).Once()

		assert.NoError(t, repo.Delete(ctx, "5"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverSessionStore_OutageRecovery(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	newStores := func() (*flakySessions, *conversation.MemorySessionStore, *FailoverSessionStore) {
		primary := &flakySessions{MemorySessionStore: conversation.NewMemorySessionStore()}
		fallback := conversation.NewMemorySessionStore()
		return primary, fallback, NewFailoverSessionStore(primary, fallback, &logger)
	}
	bringUp := func(repo *FailoverSessionStore, primary *flakySessions) {
		primary.down = false
		repo.lastCheck = time.Now().Add(-2 * time.Minute)
	}

	t.Run("SessionWrittenDuringOutageIsPromoted", func(t *testing.T) {
		primary, fallback, repo := newStores()
		primary.down = true

		s := conversation.NewSession("573001112233")
		s.State = conversation.StateBookingTime
		s.CandidateDates = []string{"01-01-2020"}
		require.NoError(t, repo.Put(ctx, s))
		assert.Equal(t, 1, fallback.Len())

		bringUp(repo, primary)
		got, err := repo.Get(ctx, s.SenderID)
		require.NoError(t, err)
		assert.Equal(t, conversation.StateBookingTime, got.State)
		assert.Equal(t, 1, primary.Len())
		assert.Zero(t, fallback.Len())
	})

	t.Run("SecondOutageDoesNotResurrectStaleSession", func(t *testing.T) {
		primary, fallback, repo := newStores()
		primary.down = true

		stale := conversation.NewSession("573001112233")
		stale.State = conversation.StateBookingTime
		stale.CandidateDates = []string{"01-01-2020"}
		require.NoError(t, repo.Put(ctx, stale))

		bringUp(repo, primary)
		fresh := conversation.NewSession("573001112233")
		fresh.State = conversation.StateBookingPhone
		require.NoError(t, repo.Put(ctx, fresh))
		assert.Zero(t, fallback.Len())

		primary.down = true
		_, err := repo.Get(ctx, fresh.SenderID)
		assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
	})
}
