package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusOK              = "ok"
	StatusInvalid         = "invalid"
	StatusDecodeError     = "decode_error"
	StatusCursorNotFound  = "cursor_not_found"
	StatusInternalFailure = "error"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novaquery_requests_total",
			Help: "Query requests handled, by outcome (count)",
		},
		[]string{"status"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novaquery_dispatch_duration_ms",
			Help:    "Dispatch duration in milliseconds, by request kind",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"kind"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novaquery_result_cache_total",
			Help: "First-page result cache lookups, by result (count)",
		},
		[]string{"result"},
	)

)

// OpenCursors reports count() at scrape time. Counting at the store keeps
// closed and expired cursors out of the figure.
func OpenCursors(count func() int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "novaquery_open_cursors",
			Help: "Cursors held by the cursor store (count)",
		},
		func() float64 { return float64(count()) },
	)
}

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			DispatchDuration,
			ResultCacheTotal,
		)
	})
}
