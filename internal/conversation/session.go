package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/valenrosasc/chatbot/internal/models"
)

// Flow is the conversational task a sender is in.
type Flow string

const (
	FlowNone       Flow = "none"
	FlowBooking    Flow = "booking"
	FlowListing    Flow = "listing"
	FlowCancelling Flow = "cancelling"
)

// State is the step a sender's dialogue is waiting on.
type State string

const (
	StateMenu State = "menu"

	StateBookingPersonID State = "booking.await_person_id"
	StateBookingFullName State = "booking.await_full_name"
	StateBookingPhone    State = "booking.await_phone"
	StateBookingDate     State = "booking.await_date"
	StateBookingTime     State = "booking.await_time"

	StateListingPersonID State = "listing.await_person_id"

	StateCancelPersonID     State = "cancel.await_person_id"
	StateCancelSelection    State = "cancel.await_selection"
	StateCancelConfirmation State = "cancel.await_confirmation"
)

// Flow returns the flow the state belongs to.
func (s State) Flow() Flow {
	switch {
	case strings.HasPrefix(string(s), "booking."):
		return FlowBooking
	case strings.HasPrefix(string(s), "listing."):
		return FlowListing
	case strings.HasPrefix(string(s), "cancel."):
		return FlowCancelling
	default:
		return FlowNone
	}
}

// ErrSessionNotFound is returned by session stores for unknown senders.
var ErrSessionNotFound = errors.New("session not found")

// Session is the dialogue position and collected data of one sender.
type Session struct {
	SenderID              string               `json:"sender_id"`
	Flow                  Flow                 `json:"flow"`
	State                 State                `json:"state"`
	Draft                 models.Appointment   `json:"draft"`
	CandidateDates        []string             `json:"candidate_dates,omitempty"`
	CandidateAppointments []models.Appointment `json:"candidate_appointments,omitempty"`
	Selected              *models.Appointment  `json:"selected,omitempty"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// NewSession creates a session parked at the root menu.
func NewSession(senderID string) *Session {
	return &Session{
		SenderID:  senderID,
		Flow:      FlowNone,
		State:     StateMenu,
		UpdatedAt: time.Now(),
	}
}

// Reset drops everything collected so far and parks the session at the menu.
func (s *Session) Reset() {
	s.Flow = FlowNone
	s.State = StateMenu
	s.Draft = models.Appointment{}
	s.CandidateDates = nil
	s.CandidateAppointments = nil
	s.Selected = nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	if s.CandidateDates != nil {
		c.CandidateDates = append([]string(nil), s.CandidateDates...)
	}
	if s.CandidateAppointments != nil {
		c.CandidateAppointments = append([]models.Appointment(nil), s.CandidateAppointments...)
	}
	if s.Selected != nil {
		selected := *s.Selected
		c.Selected = &selected
	}
	return &c
}

// SessionStore keeps sessions by sender identity.
type SessionStore interface {
	Get(ctx context.Context, senderID string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Delete(ctx context.Context, senderID string) error
}

// MemorySessionStore keeps sessions in process memory. Abandoned sessions stay
// until overwritten, deleted or the process restarts.
type MemorySessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, senderID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[senderID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemorySessionStore) Put(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SenderID] = session.Clone()
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, senderID)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// senderLocks serializes message handling per sender.
type senderLocks struct {
	mu    sync.Mutex
	locks map[string]*senderLock
}

type senderLock struct {
	sync.Mutex
	refs int
}

func newSenderLocks() *senderLocks {
	return &senderLocks{locks: make(map[string]*senderLock)}
}

// lock blocks until the sender is free and returns the matching unlock.
func (l *senderLocks) lock(senderID string) func() {
	l.mu.Lock()
	sl, ok := l.locks[senderID]
	if !ok {
		sl = &senderLock{}
		l.locks[senderID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, senderID)
		}
		l.mu.Unlock()
	}
}
