package conversation

import "fmt"

// Event is the classification of one inbound message at a given state.
type Event string

const (
	EventBook     Event = "book"
	EventList     Event = "list"
	EventInfo     Event = "info"
	EventCancel   Event = "cancel"
	EventGreeting Event = "greeting"
	EventUnknown  Event = "unknown"

	EventValid       Event = "valid"
	EventInvalid     Event = "invalid"
	EventAbort       Event = "abort"
	EventMissingData Event = "missing_data"

	EventCommitted Event = "committed"
	EventRejected  Event = "rejected"
	EventFailed    Event = "failed"

	EventFound         Event = "found"
	EventNotFound      Event = "not_found"
	EventConfirmed     Event = "confirmed"
	EventDeclined      Event = "declined"
	EventNotUnderstood Event = "not_understood"
)

type transition struct {
	from  State
	event Event
}

func (t transition) String() string {
	return fmt.Sprintf("%s --%s-->", t.from, t.event)
}

// transitions is the complete dialogue graph. A (state, event) pair missing
// here is a programming error and sends the sender back to the menu.
var transitions = map[transition]State{
	{StateMenu, EventBook}:     StateBookingPersonID,
	{StateMenu, EventList}:     StateListingPersonID,
	{StateMenu, EventCancel}:   StateCancelPersonID,
	{StateMenu, EventInfo}:     StateMenu,
	{StateMenu, EventGreeting}: StateMenu,
	{StateMenu, EventUnknown}:  StateMenu,

	{StateBookingPersonID, EventValid}:   StateBookingFullName,
	{StateBookingPersonID, EventInvalid}: StateBookingPersonID,

	{StateBookingFullName, EventValid}:   StateBookingPhone,
	{StateBookingFullName, EventInvalid}: StateBookingFullName,

	{StateBookingPhone, EventValid}:   StateBookingDate,
	{StateBookingPhone, EventInvalid}: StateBookingPhone,

	{StateBookingDate, EventValid}:       StateBookingTime,
	{StateBookingDate, EventInvalid}:     StateBookingDate,
	{StateBookingDate, EventAbort}:       StateMenu,
	{StateBookingDate, EventMissingData}: StateBookingPersonID,

	{StateBookingTime, EventCommitted}:   StateMenu,
	{StateBookingTime, EventRejected}:    StateMenu,
	{StateBookingTime, EventFailed}:      StateBookingPersonID,
	{StateBookingTime, EventInvalid}:     StateBookingTime,
	{StateBookingTime, EventAbort}:       StateMenu,
	{StateBookingTime, EventMissingData}: StateBookingPersonID,

	{StateListingPersonID, EventFound}:    StateMenu,
	{StateListingPersonID, EventNotFound}: StateMenu,
	{StateListingPersonID, EventFailed}:   StateMenu,

	{StateCancelPersonID, EventFound}:    StateCancelSelection,
	{StateCancelPersonID, EventNotFound}: StateMenu,
	{StateCancelPersonID, EventFailed}:   StateMenu,

	{StateCancelSelection, EventValid}:       StateCancelConfirmation,
	{StateCancelSelection, EventInvalid}:     StateCancelSelection,
	{StateCancelSelection, EventAbort}:       StateMenu,
	{StateCancelSelection, EventMissingData}: StateCancelPersonID,

	{StateCancelConfirmation, EventConfirmed}:     StateMenu,
	{StateCancelConfirmation, EventDeclined}:      StateMenu,
	{StateCancelConfirmation, EventNotUnderstood}: StateMenu,
	{StateCancelConfirmation, EventNotFound}:      StateMenu,
	{StateCancelConfirmation, EventFailed}:        StateMenu,
	{StateCancelConfirmation, EventMissingData}:   StateCancelPersonID,
}

// Next returns the state reached from "from" on event.
func Next(from State, event Event) (State, bool) {
	to, ok := transitions[transition{from, event}]
	return to, ok
}
