package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curvex",
		Name:      "operations_total",
		Help:      "Exchange operations by name and outcome.",
	}, []string{"op", "outcome"})

	operationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "curvex",
		Name:      "operation_seconds",
		Help:      "Exchange operation latency including lock wait.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"op"})

	settlementUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curvex",
		Name:      "settlement_units_total",
		Help:      "Smallest currency units sent out by settlement kind.",
	}, []string{"kind"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curvex",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"route", "status"})
)

// ObserveOperation records one finished exchange operation. outcome is
// "ok" or a failure kind.
func ObserveOperation(op, outcome string, d time.Duration) {
	operations.WithLabelValues(op, outcome).Inc()
	operationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

func ObserveSettlement(kind string, amount int64) {
	settlementUnits.WithLabelValues(kind).Add(float64(amount))
}

func ObserveRequest(route, status string) {
	httpRequests.WithLabelValues(route, status).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
