package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	eventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_events_dispatched_total",
			Help: "Inbound realtime events handled by the dispatcher.",
		},
		[]string{"event"},
	)
	handlerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_handler_failures_total",
			Help: "Inbound realtime events whose handler failed.",
		},
		[]string{"event", "reason"},
	)
	eventsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_events_emitted_total",
			Help: "Outbound realtime events by result.",
		},
		[]string{"event", "result"},
	)
	reconnectAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_reconnect_attempts_total",
			Help: "Realtime dial attempts after a failure.",
		},
	)
	connectionUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_connection_up",
			Help: "1 while the realtime connection is established.",
		},
	)
	notificationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_notification_failures_total",
			Help: "Best-effort notification sinks that failed.",
		},
		[]string{"sink"},
	)
	restRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_rest_request_duration_seconds",
			Help:    "Backend REST call latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		eventsDispatchedTotal,
		handlerFailuresTotal,
		eventsEmittedTotal,
		reconnectAttemptsTotal,
		connectionUp,
		notificationFailuresTotal,
		restRequestDuration,
	)
}

func IncDispatched(event string) {
	eventsDispatchedTotal.WithLabelValues(event).Inc()
}

func IncHandlerFailure(event, reason string) {
	handlerFailuresTotal.WithLabelValues(event, reason).Inc()
}

func IncEmitted(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsEmittedTotal.WithLabelValues(event, result).Inc()
}

func IncReconnectAttempt() {
	reconnectAttemptsTotal.Inc()
}

func SetConnectionUp(up bool) {
	if up {
		connectionUp.Set(1)
		return
	}
	connectionUp.Set(0)
}

func IncNotificationFailure(sink string) {
	notificationFailuresTotal.WithLabelValues(sink).Inc()
}

func ObserveREST(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	restRequestDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// Server exposes /metrics on a TCP address.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
}

// Listen binds addr and prepares the metrics handler. An empty addr disables the server.
func Listen(addr string, logger *zap.Logger) (*Server, error) {
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Start serves until Stop is called.
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	s.logger.Info("metrics listening", zap.String("addr", s.Addr()))
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
