// Package export renders the appointment book as an Excel workbook.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/valenrosasc/chatbot/internal/models"
)

const (
	appointmentsSheet = "Citas"
	summarySheet      = "Resumen"
)

var appointmentColumns = []string{"ID", "Cédula", "Nombre", "Celular", "Fecha", "Hora"}

// AppointmentLister returns every stored appointment in calendar order.
type AppointmentLister interface {
	ListAppointments(ctx context.Context) ([]models.Appointment, error)
}

// sheetWriter appends rows to the active sheet of an excelize file.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, col := range columns {
		row[i] = col
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(1, w.currentRow-1)
	end, _ := excelize.CoordinatesToCellName(len(columns), w.currentRow-1)
	return w.file.SetCellStyle(w.currentSheet, start, end, style)
}

func (w *sheetWriter) writeRow(row []any) error {
	if w.currentSheet == "" {
		return errors.New("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return err
	}
	w.currentRow++
	return nil
}

// WriteAppointments writes a workbook with every appointment and a per-day count.
func WriteAppointments(ctx context.Context, store AppointmentLister, out io.Writer) error {
	appts, err := store.ListAppointments(ctx)
	if err != nil {
		return fmt.Errorf("list appointments: %w", err)
	}

	w := newSheetWriter()
	defer w.file.Close()

	if err := w.addSheet(appointmentsSheet); err != nil {
		return err
	}
	if err := w.writeHeader(appointmentColumns); err != nil {
		return err
	}

	var days []string
	perDay := make(map[string]int)
	for _, a := range appts {
		if err := w.writeRow([]any{a.ID, a.PersonID, a.FullName, a.Phone, a.Date, a.TimeSlot}); err != nil {
			return err
		}
		if perDay[a.Date] == 0 {
			days = append(days, a.Date)
		}
		perDay[a.Date]++
	}

	if err := w.addSheet(summarySheet); err != nil {
		return err
	}
	if err := w.writeHeader([]string{"Fecha", "Citas"}); err != nil {
		return err
	}
	for _, day := range days {
		if err := w.writeRow([]any{day, perDay[day]}); err != nil {
			return err
		}
	}

	if err := w.file.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
