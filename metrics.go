package odm

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opGetAll  = "get_all"
	opGetOne  = "get_one"
	opExplain = "explain"
	opCommit  = "commit"
)

// Metrics holds the Prometheus collectors for query activity.
// A nil *Metrics records nothing.
type Metrics struct {
	QueriesTotal        *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
	TransactionCommands *prometheus.CounterVec
}

// NewMetrics registers the query collectors on reg. A nil reg registers
// them on a private registry. Collectors already registered on reg by an
// earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	queries, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odm_queries_total",
			Help: "Total number of AQL operations sent to the server",
		},
		[]string{"operation", "status"},
	))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odm_query_duration_seconds",
			Help:    "AQL operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	))
	if err != nil {
		return nil, err
	}
	commands, err := register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odm_transaction_commands_total",
			Help: "Total number of commands queued on transactions",
		},
		[]string{"label"},
	))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		QueriesTotal:        queries,
		QueryDuration:       duration,
		TransactionCommands: commands,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, errors.Wrap(err, "odm: failed to register metrics")
	}
	return c, nil
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.QueriesTotal.WithLabelValues(op, status).Inc()
	m.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) queued(label string) {
	if m == nil {
		return
	}
	m.TransactionCommands.WithLabelValues(label).Inc()
}
