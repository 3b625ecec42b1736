package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider records service metrics. The disabled provider drops everything.
type Provider interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncSyncs(result string)
	AddAdminConfigWrites(n int)
	IncRateLimited()
	Handler() http.Handler
}

// Sync results
const (
	SyncOK            = "ok"
	SyncWithAdminConf = "admin_config"
	SyncFailed        = "failed"
)

type prom struct {
	registry          *prometheus.Registry
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	syncsTotal        *prometheus.CounterVec
	adminConfigWrites prometheus.Counter
	rateLimited       prometheus.Counter
}

// New returns a Prometheus-backed provider on its own registry, or a no-op one when disabled
func New(enabled bool) Provider {
	if !enabled {
		return noop{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &prom{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfgsync_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cfgsync_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		syncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cfgsync_device_syncs_total",
			Help: "Device sync requests by result",
		}, []string{"result"}),
		adminConfigWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfgsync_admin_config_writes_total",
			Help: "Admin config versions written",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfgsync_rate_limited_total",
			Help: "Sync requests rejected by the rate limiter",
		}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.syncsTotal, m.adminConfigWrites, m.rateLimited)
	return m
}

func (m *prom) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *prom) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *prom) IncSyncs(result string) {
	m.syncsTotal.WithLabelValues(result).Inc()
}

func (m *prom) AddAdminConfigWrites(n int) {
	m.adminConfigWrites.Add(float64(n))
}

func (m *prom) IncRateLimited() {
	m.rateLimited.Inc()
}

func (m *prom) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

type noop struct{}

func (noop) IncRequestsTotal(string, int)                {}
func (noop) ObserveRequestDuration(string, time.Duration) {}
func (noop) IncSyncs(string)                             {}
func (noop) AddAdminConfigWrites(int)                    {}
func (noop) IncRateLimited()                             {}
func (noop) Handler() http.Handler                       { return http.NotFoundHandler() }
