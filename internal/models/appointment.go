package models

import (
	"errors"
	"strings"
)

// DateLayout is the office-local display and storage format for appointment dates.
const DateLayout = "02-01-2006"

var (
	ErrSlotTaken          = errors.New("time slot already taken")
	ErrDailyLimitExceeded = errors.New("daily appointment limit exceeded")
)

// Appointment is a booked (date, time slot) for a patient.
// All business fields are kept exactly as they are stored.
type Appointment struct {
	ID       int64  `json:"id"`
	PersonID string `json:"person_id"` // cédula
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Date     string `json:"date"`      // DD-MM-YYYY
	TimeSlot string `json:"time_slot"` // HH:MM
}

// SameSlot reports whether both appointments occupy the same (date, time slot).
func (a Appointment) SameSlot(other Appointment) bool {
	return a.Date == other.Date && a.TimeSlot == other.TimeSlot
}

// MissingFields returns the names of the required fields that are still empty.
func (a Appointment) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.PersonID) == "" {
		missing = append(missing, "person_id")
	}
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(a.Date) == "" {
		missing = append(missing, "date")
	}
	if strings.TrimSpace(a.TimeSlot) == "" {
		missing = append(missing, "time_slot")
	}
	return missing
}
