package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/valenrosasc/chatbot/internal/models"
)

// fecha is stored as DD-MM-YYYY text, so chronological order needs the parts reversed.
const orderByDateAndSlot = `ORDER BY substr(fecha, 7, 4), substr(fecha, 4, 2), substr(fecha, 1, 2), hora, id`

// ListAppointments returns every appointment ordered by date, then time slot.
func (db *DB) ListAppointments(ctx context.Context) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, cedula, nombre, celular, fecha, hora
		FROM citas `+orderByDateAndSlot)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	return scanAppointments(rows)
}

// ListAppointmentsByPerson returns the appointments of one person, same ordering.
func (db *DB) ListAppointmentsByPerson(ctx context.Context, personID string) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, cedula, nombre, celular, fecha, hora
		FROM citas
		WHERE cedula = ? `+orderByDateAndSlot, personID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by person: %w", err)
	}
	defer rows.Close()

	return scanAppointments(rows)
}

// InsertAppointment stores a new appointment. The person's daily count and the
// insert run in one write transaction; a taken (fecha, hora) pair is rejected by
// the unique constraint.
func (db *DB) InsertAppointment(ctx context.Context, appt models.Appointment) (models.Appointment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM citas WHERE cedula = ? AND fecha = ?`,
		appt.PersonID, appt.Date).Scan(&count)
	if err != nil {
		return models.Appointment{}, fmt.Errorf("count daily appointments: %w", err)
	}
	if count >= db.dailyLimit {
		return models.Appointment{}, models.ErrDailyLimitExceeded
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO citas (cedula, nombre, celular, fecha, hora)
		VALUES (?, ?, ?, ?, ?)`,
		appt.PersonID, appt.FullName, appt.Phone, appt.Date, appt.TimeSlot)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Appointment{}, models.ErrSlotTaken
		}
		return models.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Appointment{}, fmt.Errorf("insert appointment id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return models.Appointment{}, models.ErrSlotTaken
		}
		return models.Appointment{}, fmt.Errorf("commit insert: %w", err)
	}

	appt.ID = id
	db.logger.Debug().Int64("id", id).Str("fecha", appt.Date).Str("hora", appt.TimeSlot).Msg("Appointment inserted")
	return appt, nil
}

// DeleteAppointment removes the appointment of personID at (date, timeSlot).
// It reports false when nothing matched.
func (db *DB) DeleteAppointment(ctx context.Context, personID, date, timeSlot string) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM citas WHERE cedula = ? AND fecha = ? AND hora = ?`,
		personID, date, timeSlot)
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete appointment rows: %w", err)
	}
	return n > 0, nil
}

func scanAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var out []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.PersonID, &a.FullName, &a.Phone, &a.Date, &a.TimeSlot); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
