package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atvirokodosprendimai/sciencemap/internal/domain"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sciencemap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sciencemap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sciencemap",
			Subsystem: "catalog",
			Name:      "mutations_total",
			Help:      "Catalog mutations by kind, operation and outcome.",
		},
		[]string{"kind", "operation", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, mutations)
	})
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// MutationMetrics plugs the catalog pipeline into prometheus.
type MutationMetrics struct{}

func (MutationMetrics) ObserveMutation(kind domain.Kind, operation, outcome string) {
	RegisterMetrics()
	mutations.WithLabelValues(string(kind), operation, outcome).Inc()
}
