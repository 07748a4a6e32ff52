package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the watcher.
type Metrics struct {
	cycles               prometheus.Counter
	cycleErrors          prometheus.Counter
	eventsDecoded        prometheus.Counter
	malformedLogs        prometheus.Counter
	notificationsSent    prometheus.Counter
	notificationsDropped prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			cycles: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "curatewatch_poll_cycles_total",
				Help: "Total number of completed poll cycles",
			}),
			cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "curatewatch_poll_cycle_errors_total",
				Help: "Total number of poll cycles that failed",
			}),
			eventsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "curatewatch_events_decoded_total",
				Help: "Total number of registry events decoded",
			}),
			malformedLogs: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "curatewatch_malformed_logs_total",
				Help: "Total number of logs skipped as malformed",
			}),
			notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "curatewatch_notifications_sent_total",
				Help: "Total number of notifications delivered",
			}),
			notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "curatewatch_notifications_dropped_total",
				Help: "Total number of notifications dropped after delivery failure",
			}),
		}
		prometheus.MustRegister(
			metrics.cycles,
			metrics.cycleErrors,
			metrics.eventsDecoded,
			metrics.malformedLogs,
			metrics.notificationsSent,
			metrics.notificationsDropped,
		)
	})
	return metrics
}

// Cycle increments the completed cycle counter.
func (m *Metrics) Cycle() {
	if m != nil {
		m.cycles.Inc()
	}
}

// CycleError increments the failed cycle counter.
func (m *Metrics) CycleError() {
	if m != nil {
		m.cycleErrors.Inc()
	}
}

// EventDecoded increments the decoded event counter.
func (m *Metrics) EventDecoded() {
	if m != nil {
		m.eventsDecoded.Inc()
	}
}

// MalformedLog increments the malformed log counter.
func (m *Metrics) MalformedLog() {
	if m != nil {
		m.malformedLogs.Inc()
	}
}

// NotificationSent increments the delivered notification counter.
func (m *Metrics) NotificationSent() {
	if m != nil {
		m.notificationsSent.Inc()
	}
}

// NotificationDropped increments the dropped notification counter.
func (m *Metrics) NotificationDropped() {
	if m != nil {
		m.notificationsDropped.Inc()
	}
}

// Serve exposes /metrics and /healthz on addr. rpcPing may be nil.
func Serve(addr string, rpcPing func(ctx context.Context) error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if rpcPing != nil {
			if err := rpcPing(ctx); err != nil {
				status["rpc"] = "fail"
				code = http.StatusServiceUnavailable
			} else {
				status["rpc"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the metrics server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
