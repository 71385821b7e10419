package mid

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/ardanlabs/ledger/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRequests *prometheus.CounterVec
	prometheusErrors   prometheus.Counter
	prometheusPanics   prometheus.Counter
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "web",
			Name:      "requests",
			Help:      "Number of requests handled by method and status code",
		},
		[]string{"method", "code"},
	)

	prometheusErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "web",
			Name:      "errors",
			Help:      "Number of requests that returned an error",
		},
	)

	prometheusPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "web",
			Name:      "panics",
			Help:      "Number of requests that panicked",
		},
	)
}

// Metrics updates program counters.
func Metrics() web.Middleware {
	initPrometheusMetrics()

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			code := http.StatusOK
			if v, verr := web.GetValues(ctx); verr == nil && v.StatusCode != 0 {
				code = v.StatusCode
			}
			prometheusRequests.WithLabelValues(r.Method, strconv.Itoa(code)).Inc()

			// Increment if there is an error flowing through the request.
			if err != nil {
				prometheusErrors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
