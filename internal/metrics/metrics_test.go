package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := counterValue(t, bookingCreated.WithLabelValues("created"))
	IncBookingCreated("created")
	assert.Equal(t, before+1, counterValue(t, bookingCreated.WithLabelValues("created")))

	before = counterValue(t, bookingCancelled)
	IncBookingCancelled()
	assert.Equal(t, before+1, counterValue(t, bookingCancelled))

	before = counterValue(t, backupUploads.WithLabelValues("ok"))
	IncBackupUpload("ok")
	assert.Equal(t, before+1, counterValue(t, backupUploads.WithLabelValues("ok")))

	before = counterValue(t, messagesReceived.WithLabelValues("booking"))
	IncMessage("booking")
	assert.Equal(t, before+1, counterValue(t, messagesReceived.WithLabelValues("booking")))
}
