// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and the dashboard server.
package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "observatory"

// connStates are the label values of the connection state gauge.
var connStates = []string{"disconnected", "connecting", "connected", "reconnect-scheduled", "disabled"}

// Recorder implements the observer interfaces of the normalizer, seeder,
// socket client and dashboard server. A nil *Recorder is a no-op.
type Recorder struct {
	once sync.Once
	reg  *prom.Registry

	eventsProcessed *prom.CounterVec
	eventsUnknown   prom.Counter
	eventsFailed    prom.Counter
	decodeErrors    prom.Counter
	reconnects      prom.Counter
	connState       *prom.GaugeVec
	seedRuns        *prom.CounterVec
	seedReplayed    prom.Gauge
	subscribers     prom.Gauge
	dashClients     prom.Gauge
	slowClients     prom.Counter
	publishFailures prom.Counter
	broadcastSize   prom.Histogram
}

// NewRecorder constructs and registers the metrics on reg, or on a fresh
// registry when reg is nil.
func NewRecorder(reg *prom.Registry) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{reg: reg}
	r.once.Do(func() {
		r.eventsProcessed = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Controller events applied to state, by domain",
		}, []string{"domain"})
		r.eventsUnknown = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_unknown_total",
			Help:      "Controller events with an unrecognized type",
		})
		r.eventsFailed = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Controller events that failed during normalization",
		})
		r.decodeErrors = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "frame_decode_errors_total",
			Help:      "Controller frames dropped because they could not be decoded",
		})
		r.reconnects = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "controller_reconnects_total",
			Help:      "Reconnect attempts scheduled for the controller socket",
		})
		r.connState = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_connection_state",
			Help:      "1 for the controller socket's current state, 0 otherwise",
		}, []string{"state"})
		r.seedRuns = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "seed_runs_total",
			Help:      "History seeding runs by result",
		}, []string{"result"})
		r.seedReplayed = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "seed_events_applied",
			Help:      "Events applied by the last history seeding run",
		})
		r.subscribers = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "state_subscribers",
			Help:      "Registered state store listeners",
		})
		r.dashClients = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_clients",
			Help:      "Connected dashboard websocket clients",
		})
		r.slowClients = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_slow_clients_total",
			Help:      "Dashboard clients disconnected for falling behind",
		})
		r.publishFailures = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "nats_publish_failures_total",
			Help:      "State envelopes that could not be published to NATS",
		})
		r.broadcastSize = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_bytes",
			Help:      "Size of envelopes broadcast to dashboard clients",
			Buckets:   prom.ExponentialBuckets(512, 2, 10),
		})
		reg.MustRegister(r.eventsProcessed, r.eventsUnknown, r.eventsFailed, r.decodeErrors, r.reconnects,
			r.connState, r.seedRuns, r.seedReplayed, r.subscribers, r.dashClients, r.slowClients,
			r.publishFailures, r.broadcastSize)
	})
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Recorder) EventProcessed(domain string) {
	if r == nil {
		return
	}
	r.eventsProcessed.WithLabelValues(domain).Inc()
}

func (r *Recorder) EventUnknown() {
	if r == nil {
		return
	}
	r.eventsUnknown.Inc()
}

func (r *Recorder) EventFailed() {
	if r == nil {
		return
	}
	r.eventsFailed.Inc()
}

func (r *Recorder) DecodeError(error) {
	if r == nil {
		return
	}
	r.decodeErrors.Inc()
}

func (r *Recorder) ReconnectScheduled(int, time.Duration) {
	if r == nil {
		return
	}
	r.reconnects.Inc()
}

// ConnectionState marks state as the current controller connection state.
func (r *Recorder) ConnectionState(state string) {
	if r == nil {
		return
	}
	for _, s := range connStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.connState.WithLabelValues(s).Set(v)
	}
}

func (r *Recorder) SeedCompleted(applied int, ok bool) {
	if r == nil {
		return
	}
	result := "failed"
	if ok {
		result = "success"
	}
	r.seedRuns.WithLabelValues(result).Inc()
	r.seedReplayed.Set(float64(applied))
}

func (r *Recorder) SetSubscribers(n int) {
	if r == nil {
		return
	}
	r.subscribers.Set(float64(n))
}

func (r *Recorder) SetDashboardClients(n int) {
	if r == nil {
		return
	}
	r.dashClients.Set(float64(n))
}

func (r *Recorder) SlowClientDropped() {
	if r == nil {
		return
	}
	r.slowClients.Inc()
}

func (r *Recorder) PublishFailed() {
	if r == nil {
		return
	}
	r.publishFailures.Inc()
}

func (r *Recorder) ObserveBroadcast(bytes int) {
	if r == nil {
		return
	}
	r.broadcastSize.Observe(float64(bytes))
}
