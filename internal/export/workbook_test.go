package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/valenrosasc/chatbot/internal/models"
)

type staticLister struct {
	appts []models.Appointment
	err   error
}

func (s staticLister) ListAppointments(context.Context) ([]models.Appointment, error) {
	return s.appts, s.err
}

func TestWriteAppointments(t *testing.T) {
	store := staticLister{appts: []models.Appointment{
		{ID: 1, PersonID: "111", FullName: "Ana", Phone: "300", Date: "06-03-2025", TimeSlot: "15:00"},
		{ID: 2, PersonID: "222", FullName: "Luis", Phone: "301", Date: "06-03-2025", TimeSlot: "15:30"},
		{ID: 3, PersonID: "111", FullName: "Ana", Phone: "300", Date: "07-03-2025", TimeSlot: "16:00"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteAppointments(context.Background(), store, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Citas", "Resumen"}, f.GetSheetList())

	rows, err := f.GetRows("Citas")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, appointmentColumns, rows[0])
	assert.Equal(t, []string{"2", "222", "Luis", "301", "06-03-2025", "15:30"}, rows[2])

	summary, err := f.GetRows("Resumen")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Fecha", "Citas"}, {"06-03-2025", "2"}, {"07-03-2025", "1"}}, summary)
}

func TestWriteAppointments_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAppointments(context.Background(), staticLister{}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Citas")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteAppointments_StoreError(t *testing.T) {
	var buf bytes.Buffer
	err := WriteAppointments(context.Background(), staticLister{err: errors.New("db closed")}, &buf)
	assert.ErrorContains(t, err, "db closed")
	assert.Zero(t, buf.Len())
}
