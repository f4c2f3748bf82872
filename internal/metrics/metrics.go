package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Saves     *prometheus.CounterVec
}

// NewServerMetrics registers the HTTP and ledger collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them on Handler.
func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "milkroute",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "milkroute",
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "milkroute",
		Subsystem: "ledger",
		Name:      "saves_total",
		Help:      "Delivery and payment saves by outcome.",
	}, []string{"kind", "outcome"})

	reg.MustRegister(requests, latency, saves)
	return &ServerMetrics{Requests: requests, LatencyMS: latency, Saves: saves}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
