package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.EventProcessed("guiding")
	r.EventProcessed("guiding")
	r.EventProcessed("image")
	r.EventUnknown()
	r.EventFailed()
	r.DecodeError(errors.New("bad frame"))
	r.ReconnectScheduled(1, time.Second)
	r.SeedCompleted(42, true)
	r.SetSubscribers(3)
	r.SetDashboardClients(2)
	r.SlowClientDropped()
	r.PublishFailed()
	r.ObserveBroadcast(2048)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.eventsProcessed.WithLabelValues("guiding")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsProcessed.WithLabelValues("image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.eventsUnknown))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.seedRuns.WithLabelValues("success")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.seedReplayed))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.subscribers))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestConnectionStateIsExclusive(t *testing.T) {
	r := NewRecorder(nil)
	r.ConnectionState("connecting")
	r.ConnectionState("connected")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.connState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.connState.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.connState.WithLabelValues("disabled")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.EventProcessed("stack")
		r.ConnectionState("connected")
		r.SeedCompleted(0, false)
		r.ObserveBroadcast(10)
	})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRecorder(nil)
	r.EventUnknown()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "observatory_events_unknown_total 1")
}
