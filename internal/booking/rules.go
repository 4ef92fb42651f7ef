// Package booking holds the invariants every new appointment must satisfy.
package booking

import (
	"context"
	"fmt"

	"github.com/valenrosasc/chatbot/internal/models"
)

// AppointmentLister reads the current appointments.
type AppointmentLister interface {
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
}

// Rules validates candidate appointments against the stored ones.
type Rules struct {
	store              AppointmentLister
	maxPerPersonPerDay int
}

// NewRules creates the rule set. maxPerPersonPerDay defaults to 2.
func NewRules(store AppointmentLister, maxPerPersonPerDay int) *Rules {
	if maxPerPersonPerDay <= 0 {
		maxPerPersonPerDay = 2
	}
	return &Rules{store: store, maxPerPersonPerDay: maxPerPersonPerDay}
}

// Validate returns models.ErrSlotTaken when (date, time slot) is already booked
// and models.ErrDailyLimitExceeded when the person already reached the daily
// limit on that date. Every call reads a fresh list.
func (r *Rules) Validate(ctx context.Context, candidate models.Appointment) error {
	existing, err := r.store.ListAppointments(ctx)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}

	sameDay := 0
	for _, a := range existing {
		if a.SameSlot(candidate) {
			return models.ErrSlotTaken
		}
		if a.PersonID == candidate.PersonID && a.Date == candidate.Date {
			sameDay++
		}
	}

	if sameDay >= r.maxPerPersonPerDay {
		return models.ErrDailyLimitExceeded
	}
	return nil
}

// MaxPerPersonPerDay returns the configured daily limit.
func (r *Rules) MaxPerPersonPerDay() int {
	return r.maxPerPersonPerDay
}
