package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketcal/internal/model"
)

// Metrics holds all Prometheus metrics for the calendar service.
type Metrics struct {
	// Market session state
	MarketState        prometheus.Gauge       // 0=closed, 1=open
	PricePolling       prometheus.Gauge       // 0=idle, 1=polling
	SessionTransitions *prometheus.CounterVec // labels: kind=open|close|polling_end|heartbeat
	CalendarErrors     prometheus.Counter
	DroppedEvents      prometheus.Counter
	RulesLastYear      prometheus.Gauge

	// Contests
	GamesCreated prometheus.Counter
	GamesJoined  prometheus.Counter

	// Gateway
	HTTPRequests *prometheus.CounterVec   // labels: route, code
	HTTPDuration *prometheus.HistogramVec // labels: route
	WSClients    prometheus.Gauge

	// Maintenance jobs
	JobRuns *prometheus.CounterVec // labels: job, result=ok|error

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedEvents      prometheus.Counter
	RedisPublishErrors       prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates all metrics on a private registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketcal_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
		PricePolling: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketcal_price_polling",
			Help: "Whether quotes are being polled (0=no, 1=yes)",
		}),
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcal_session_events_total",
			Help: "Session events emitted by the clock",
		}, []string{"kind"}),
		CalendarErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketcal_calendar_errors_total",
			Help: "Boundary lookups that failed, usually a rule-set gap",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketcal_dropped_events_total",
			Help: "Events not delivered to a full subscriber",
		}),
		RulesLastYear: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketcal_rules_last_year",
			Help: "Last year covered by the loaded holiday table",
		}),

		GamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketcal_games_created_total",
			Help: "Weekly contests created",
		}),
		GamesJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketcal_games_joined_total",
			Help: "Create requests that joined an existing contest",
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcal_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketcal_http_request_duration_seconds",
			Help:    "HTTP handler latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"route"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketcal_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketcal_job_runs_total",
			Help: "Scheduled job runs by result",
		}, []string{"job", "result"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketcal_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketcal_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketcal_redis_buffered_events_total",
			Help: "Events buffered locally while Redis was unavailable",
		}),
		RedisPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketcal_redis_publish_errors_total",
			Help: "Failed status publishes",
		}),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MarketState,
		m.PricePolling,
		m.SessionTransitions,
		m.CalendarErrors,
		m.DroppedEvents,
		m.RulesLastYear,
		m.GamesCreated,
		m.GamesJoined,
		m.HTTPRequests,
		m.HTTPDuration,
		m.WSClients,
		m.JobRuns,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedEvents,
		m.RedisPublishErrors,
	)

	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveEvent records a session event.
func (m *Metrics) ObserveEvent(ev model.SessionEvent) {
	m.SessionTransitions.WithLabelValues(string(ev.Kind)).Inc()
	m.MarketState.Set(boolGauge(ev.Status.Open))
	m.PricePolling.Set(boolGauge(ev.Status.PricePolling))
}

// ObserveBreaker records a circuit breaker transition. States are passed as
// their numeric value to keep this package free of store imports.
func (m *Metrics) ObserveBreaker(to int) {
	m.RedisCircuitBreakerState.Set(float64(to))
	if to == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// ObserveJob records one scheduled job run.
func (m *Metrics) ObserveJob(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
