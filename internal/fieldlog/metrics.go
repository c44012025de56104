package fieldlog

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for change tracking.
type Metrics struct {
	ChangesWritten   *prometheus.CounterVec
	CallbackErrors   *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

// NewMetrics registers the tracking metrics with reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ChangesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldlog_changes_written_total",
			Help: "Total number of field logs written",
		}, []string{"entity_type"}),
		CallbackErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldlog_callback_errors_total",
			Help: "Total number of callback failures, by whether they were silenced",
		}, []string{"entity_type", "silenced"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldlog_dispatch_seconds",
			Help:    "Duration of callback dispatch for one mutation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) changeWritten(entityType string) {
	if m == nil {
		return
	}
	m.ChangesWritten.WithLabelValues(entityType).Inc()
}

func (m *Metrics) callbackFailed(entityType string, silenced bool) {
	if m == nil {
		return
	}
	m.CallbackErrors.WithLabelValues(entityType, strconv.FormatBool(silenced)).Inc()
}

// observeDispatch records the duration of a dispatch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) observeDispatch(start time.Time) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(time.Since(start).Seconds())
}
