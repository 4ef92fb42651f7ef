// Package conversation implements the per-sender dialogue state machine that
// drives booking, listing and cancelling appointments.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/valenrosasc/chatbot/internal/events"
	"github.com/valenrosasc/chatbot/internal/metrics"
	"github.com/valenrosasc/chatbot/internal/models"
	"github.com/valenrosasc/chatbot/internal/slots"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// AppointmentStore is the persistence the engine needs.
type AppointmentStore interface {
	ListAppointmentsByPerson(ctx context.Context, personID string) ([]models.Appointment, error)
	InsertAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error)
	DeleteAppointment(ctx context.Context, personID, date, timeSlot string) (bool, error)
}

// Validator checks booking invariants before an insert.
type Validator interface {
	Validate(ctx context.Context, candidate models.Appointment) error
}

// DateProvider offers the candidate booking dates.
type DateProvider interface {
	NextBusinessDays(startExclusive time.Time, count int) []time.Time
}

// Publisher receives appointment events produced by completed flows.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}

// Services is everything a step may call.
type Services struct {
	Store     AppointmentStore
	Rules     Validator
	Calendar  DateProvider
	Slots     slots.Catalog
	Publisher Publisher
	Now       func() time.Time

	DaysAhead  int
	DailyLimit int
}

// Inbound is one text message from a sender.
type Inbound struct {
	SenderID string
	Text     string
}

type stepResult struct {
	event       Event
	messages    []string
	appointment models.Appointment
}

type (
	stepHandler func(ctx context.Context, s *Session, input string) stepResult
	entryAction func(ctx context.Context, s *Session) []string
	effect      func(ctx context.Context, s *Session, res stepResult)
)

// Engine advances one sender's dialogue one message at a time.
type Engine struct {
	svc      Services
	sessions SessionStore
	locks    *senderLocks
	content  atomic.Pointer[Content]
	logger   *zerolog.Logger

	handlers map[State]stepHandler
	entries  map[State]entryAction
	effects  map[transition]effect
}

// NewEngine wires the step handlers, entry actions and transition effects.
func NewEngine(svc Services, sessions SessionStore, content Content, logger *zerolog.Logger) *Engine {
	if svc.Now == nil {
		svc.Now = time.Now
	}
	if svc.DaysAhead <= 0 {
		svc.DaysAhead = 7
	}
	if svc.DailyLimit <= 0 {
		svc.DailyLimit = 2
	}
	if len(svc.Slots) == 0 {
		svc.Slots = slots.DefaultCatalog
	}
	if svc.Calendar == nil {
		svc.Calendar = slots.NewCalendar(nil)
	}

	l := logger.With().Str("component", "conversation").Logger()
	e := &Engine{
		svc:      svc,
		sessions: sessions,
		locks:    newSenderLocks(),
		logger:   &l,
	}
	e.SetContent(content)

	e.handlers = map[State]stepHandler{
		StateMenu:               e.handleMenu,
		StateBookingPersonID:    e.handleBookingPersonID,
		StateBookingFullName:    e.handleBookingFullName,
		StateBookingPhone:       e.handleBookingPhone,
		StateBookingDate:        e.handleBookingDate,
		StateBookingTime:        e.handleBookingTime,
		StateListingPersonID:    e.handleListing,
		StateCancelPersonID:     e.handleCancelPersonID,
		StateCancelSelection:    e.handleCancelSelection,
		StateCancelConfirmation: e.handleCancelConfirmation,
	}

	e.entries = map[State]entryAction{
		StateMenu:               e.enterMenu,
		StateBookingPersonID:    e.enterBookingStart,
		StateBookingDate:        e.enterBookingDate,
		StateBookingTime:        e.enterBookingTime,
		StateListingPersonID:    func(context.Context, *Session) []string { return []string{msgAskListPersonID} },
		StateCancelPersonID:     e.enterCancelStart,
		StateCancelSelection:    e.enterCancelSelection,
		StateCancelConfirmation: e.enterCancelConfirmation,
	}

	e.effects = map[transition]effect{
		{StateBookingTime, EventCommitted}:        e.publish(events.AppointmentBooked),
		{StateCancelConfirmation, EventConfirmed}: e.publish(events.AppointmentCancelled),
	}

	return e
}

// SetContent swaps the office text and menu keywords.
func (e *Engine) SetContent(c Content) {
	keywords := make([]string, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		if k = normalize(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	c.Keywords = keywords
	e.content.Store(&c)
}

// HandleMessage runs one step of the sender's dialogue and returns the replies.
// Messages from the same sender are processed one at a time. A non-nil error is
// an infrastructure failure; the returned replies are still meant for the user.
func (e *Engine) HandleMessage(ctx context.Context, in Inbound) ([]string, error) {
	unlock := e.locks.lock(in.SenderID)
	defer unlock()

	logger := e.log(ctx)

	session, err := e.sessions.Get(ctx, in.SenderID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		session = NewSession(in.SenderID)
	case err != nil:
		return []string{msgGenericTryAgain}, fmt.Errorf("load session: %w", err)
	}

	from := session.State
	handler, ok := e.handlers[from]
	if !ok {
		logger.Warn().Str("state", string(from)).Msg("session in unknown state, resetting")
		session.Reset()
		from, handler = StateMenu, e.handleMenu
	}

	metrics.IncMessage(string(from.Flow()))

	res := handler(ctx, session, strings.TrimSpace(in.Text))
	to, ok := Next(from, res.event)
	if !ok {
		logger.Error().Str("transition", transition{from, res.event}.String()).Msg("no transition defined")
		res.messages = append(res.messages, msgSomethingWrong)
		to = StateMenu
	}

	if fx := e.effects[transition{from, res.event}]; fx != nil {
		fx(ctx, session, res)
	}

	out := res.messages
	if to != from {
		session.State = to
		session.Flow = to.Flow()
		if enter := e.entries[to]; enter != nil {
			out = append(out, enter(ctx, session)...)
		}
	}

	logger.Debug().
		Str("sender", in.SenderID).
		Str("from", string(from)).
		Str("event", string(res.event)).
		Str("to", string(session.State)).
		Msg("conversation step")

	session.UpdatedAt = e.svc.Now()
	if session.State == StateMenu {
		err = e.sessions.Delete(ctx, in.SenderID)
	} else {
		err = e.sessions.Put(ctx, session)
	}
	if err != nil {
		return out, fmt.Errorf("save session: %w", err)
	}
	return out, nil
}

// Restart drops whatever the sender was doing and returns the menu.
func (e *Engine) Restart(ctx context.Context, senderID string) ([]string, error) {
	unlock := e.locks.lock(senderID)
	defer unlock()

	out := []string{renderMenu(*e.content.Load())}
	if err := e.sessions.Delete(ctx, senderID); err != nil {
		return out, fmt.Errorf("delete session: %w", err)
	}
	return out, nil
}

func (e *Engine) publish(eventType string) effect {
	return func(ctx context.Context, s *Session, res stepResult) {
		if e.svc.Publisher == nil {
			return
		}
		e.svc.Publisher.Publish(ctx, events.Event{
			Type:        eventType,
			SenderID:    s.SenderID,
			Appointment: res.appointment,
		})
	}
}

// Root menu

func (e *Engine) handleMenu(_ context.Context, _ *Session, input string) stepResult {
	c := e.content.Load()
	switch input {
	case "1":
		return stepResult{event: EventBook}
	case "2":
		return stepResult{event: EventList}
	case "3":
		return stepResult{event: EventInfo, messages: []string{renderInfo(*c)}}
	case "4":
		return stepResult{event: EventCancel}
	}

	if matchesKeyword(input, c.Keywords) {
		return stepResult{event: EventGreeting, messages: []string{renderMenu(*c)}}
	}
	return stepResult{event: EventUnknown, messages: []string{renderNotUnderstood()}}
}

func (e *Engine) enterMenu(_ context.Context, s *Session) []string {
	s.Reset()
	return []string{renderMenu(*e.content.Load())}
}

// Booking flow

func (e *Engine) enterBookingStart(_ context.Context, s *Session) []string {
	s.Draft = models.Appointment{}
	s.CandidateDates = nil
	return []string{msgAskPersonID}
}

func (e *Engine) handleBookingPersonID(_ context.Context, s *Session, input string) stepResult {
	if !digitsOnly.MatchString(input) {
		return stepResult{event: EventInvalid, messages: []string{msgInvalidPersonID}}
	}
	s.Draft.PersonID = input
	return stepResult{event: EventValid, messages: []string{msgPersonIDSaved, msgAskFullName}}
}

func (e *Engine) handleBookingFullName(_ context.Context, s *Session, input string) stepResult {
	if input == "" {
		return stepResult{event: EventInvalid, messages: []string{msgInvalidFullName}}
	}
	s.Draft.FullName = input
	return stepResult{event: EventValid, messages: []string{msgFullNameSaved, msgAskPhone}}
}

func (e *Engine) handleBookingPhone(_ context.Context, s *Session, input string) stepResult {
	if !digitsOnly.MatchString(input) {
		return stepResult{event: EventInvalid, messages: []string{msgInvalidPhone}}
	}
	s.Draft.Phone = input
	return stepResult{event: EventValid}
}

func (e *Engine) enterBookingDate(_ context.Context, s *Session) []string {
	days := e.svc.Calendar.NextBusinessDays(e.svc.Now(), e.svc.DaysAhead)
	s.CandidateDates = slots.FormatDates(days)
	return []string{renderDates(s.CandidateDates)}
}

func (e *Engine) handleBookingDate(_ context.Context, s *Session, input string) stepResult {
	if input == "0" {
		return stepResult{event: EventAbort, messages: []string{msgBackToMenu}}
	}
	if s.Draft.PersonID == "" || s.Draft.FullName == "" || s.Draft.Phone == "" || len(s.CandidateDates) == 0 {
		return stepResult{event: EventMissingData, messages: []string{msgSomethingWrong}}
	}

	idx, ok := slots.ParseIndex(input, len(s.CandidateDates))
	if !ok {
		return stepResult{event: EventInvalid, messages: []string{msgInvalidOption, renderDates(s.CandidateDates)}}
	}
	s.Draft.Date = s.CandidateDates[idx-1]
	return stepResult{event: EventValid}
}

func (e *Engine) enterBookingTime(_ context.Context, s *Session) []string {
	return []string{renderTimes(s.Draft.Date, e.svc.Slots)}
}

func (e *Engine) handleBookingTime(ctx context.Context, s *Session, input string) stepResult {
	if input == "0" {
		return stepResult{event: EventAbort, messages: []string{msgBackToMenu}}
	}

	slot, ok := e.svc.Slots.Pick(input)
	if !ok {
		return stepResult{event: EventInvalid, messages: []string{msgInvalidOption, renderTimes(s.Draft.Date, e.svc.Slots)}}
	}

	candidate := s.Draft
	candidate.TimeSlot = slot
	if missing := candidate.MissingFields(); len(missing) > 0 {
		e.log(ctx).Warn().Strs("missing", missing).Msg("booking draft incomplete")
		return stepResult{event: EventMissingData, messages: []string{msgSomethingWrong}}
	}

	if err := e.svc.Rules.Validate(ctx, candidate); err != nil {
		return e.bookingFailure(ctx, candidate, err)
	}

	stored, err := e.svc.Store.InsertAppointment(ctx, candidate)
	if err != nil {
		return e.bookingFailure(ctx, candidate, err)
	}

	metrics.IncBookingCreated("created")
	return stepResult{event: EventCommitted, messages: []string{renderBooked(stored)}, appointment: stored}
}

func (e *Engine) bookingFailure(ctx context.Context, candidate models.Appointment, err error) stepResult {
	switch {
	case errors.Is(err, models.ErrSlotTaken):
		metrics.IncBookingCreated("slot_taken")
		return stepResult{event: EventRejected, messages: []string{renderSlotTaken(candidate)}}
	case errors.Is(err, models.ErrDailyLimitExceeded):
		metrics.IncBookingCreated("daily_limit")
		return stepResult{event: EventRejected, messages: []string{renderDailyLimit(candidate, e.svc.DailyLimit)}}
	default:
		metrics.IncBookingCreated("error")
		e.log(ctx).Error().Err(err).Str("fecha", candidate.Date).Str("hora", candidate.TimeSlot).Msg("booking failed")
		return stepResult{event: EventFailed, messages: []string{msgBookingError}}
	}
}

// Listing flow

func (e *Engine) handleListing(ctx context.Context, _ *Session, input string) stepResult {
	appts, err := e.svc.Store.ListAppointmentsByPerson(ctx, input)
	if err != nil {
		e.log(ctx).Error().Err(err).Msg("list appointments failed")
		return stepResult{event: EventFailed, messages: []string{msgLookupError}}
	}
	if len(appts) == 0 {
		return stepResult{event: EventNotFound, messages: []string{msgNoAppointments}}
	}
	return stepResult{event: EventFound, messages: []string{renderListing(input, appts)}}
}

// Cancelling flow

func (e *Engine) enterCancelStart(_ context.Context, s *Session) []string {
	s.CandidateAppointments = nil
	s.Selected = nil
	return []string{msgAskCancelID}
}

func (e *Engine) handleCancelPersonID(ctx context.Context, s *Session, input string) stepResult {
	appts, err := e.svc.Store.ListAppointmentsByPerson(ctx, input)
	if err != nil {
		e.log(ctx).Error().Err(err).Msg("list appointments for cancel failed")
		return stepResult{event: EventFailed, messages: []string{msgLookupError}}
	}
	if len(appts) == 0 {
		return stepResult{event: EventNotFound, messages: []string{msgNoCancelMatches}}
	}
	s.CandidateAppointments = appts
	return stepResult{event: EventFound}
}

func (e *Engine) enterCancelSelection(_ context.Context, s *Session) []string {
	return []string{renderCancelChoices(s.CandidateAppointments)}
}

func (e *Engine) handleCancelSelection(_ context.Context, s *Session, input string) stepResult {
	if input == "0" {
		return stepResult{event: EventAbort, messages: []string{msgBackToMenu}}
	}
	if len(s.CandidateAppointments) == 0 {
		return stepResult{event: EventMissingData, messages: []string{msgSomethingWrong}}
	}

	idx, ok := slots.ParseIndex(input, len(s.CandidateAppointments))
	if !ok {
		return stepResult{event: EventInvalid, messages: []string{msgInvalidOption, renderCancelChoices(s.CandidateAppointments)}}
	}
	selected := s.CandidateAppointments[idx-1]
	s.Selected = &selected
	return stepResult{event: EventValid}
}

func (e *Engine) enterCancelConfirmation(_ context.Context, s *Session) []string {
	return []string{renderConfirmCancel(*s.Selected)}
}

func (e *Engine) handleCancelConfirmation(ctx context.Context, s *Session, input string) stepResult {
	switch normalize(input) {
	case "si", "sí":
	case "no":
		return stepResult{event: EventDeclined, messages: []string{msgBackToMenu}}
	default:
		return stepResult{event: EventNotUnderstood, messages: []string{msgInvalidYesNo}}
	}

	if s.Selected == nil {
		return stepResult{event: EventMissingData, messages: []string{msgSomethingWrong}}
	}

	appt := *s.Selected
	removed, err := e.svc.Store.DeleteAppointment(ctx, appt.PersonID, appt.Date, appt.TimeSlot)
	if err != nil {
		e.log(ctx).Error().Err(err).Msg("cancel appointment failed")
		return stepResult{event: EventFailed, messages: []string{msgCancelError}}
	}
	if !removed {
		return stepResult{event: EventNotFound, messages: []string{msgAlreadyCancelled}}
	}

	metrics.IncBookingCancelled()
	return stepResult{event: EventConfirmed, messages: []string{renderCancelled(appt)}, appointment: appt}
}

// log prefers the request-scoped logger attached by the transport.
func (e *Engine) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return e.logger
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matchesKeyword(input string, keywords []string) bool {
	words := strings.FieldsFunc(normalize(input), func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == '¡' || r == '¿'
	})
	for _, w := range words {
		for _, k := range keywords {
			if w == k {
				return true
			}
		}
	}
	return false
}
