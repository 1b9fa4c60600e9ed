package lifecycle

import (
	"time"

	clierr "github.com/ggonzalez94/dex-cli/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "dex"

// Metrics holds the controller's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Outcomes    *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Quotes      *prometheus.CounterVec
	StaleQuotes prometheus.Counter
}

// NewMetrics registers the instruments on reg. Pass a dedicated registry; the
// CLI writes it out as a textfile at exit.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "lifecycle",
			Name:      "stage_transitions_total",
			Help:      "Lifecycle stage transitions by action and stage",
		}, []string{"action", "stage"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "lifecycle",
			Name:      "actions_total",
			Help:      "Terminal actions by action and outcome",
		}, []string{"action", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "lifecycle",
			Name:      "action_duration_seconds",
			Help:      "Wall time from start to terminal stage",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"action"}),
		Quotes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Quote requests by outcome",
		}, []string{"outcome"}),
		StaleQuotes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "quote",
			Name:      "stale_discarded_total",
			Help:      "Quote results dropped because a newer request superseded them",
		}),
	}
}

func (m *Metrics) transition(action string, stage Stage) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, string(stage)).Inc()
}

func (m *Metrics) outcome(action string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(action, outcomeLabel(err)).Inc()
	m.Duration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *Metrics) quote(err error) {
	if m == nil {
		return
	}
	m.Quotes.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *Metrics) stale() {
	if m == nil {
		return
	}
	m.StaleQuotes.Inc()
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if typed, ok := clierr.As(err); ok {
		return clierr.TypeOf(typed.Code)
	}
	return clierr.TypeOf(clierr.CodeUnknown)
}
