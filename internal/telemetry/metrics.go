package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"userprofile/internal/logging"
)

var (
	EventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "userprofile_events_consumed_total",
		Help: "Events received from Kafka, by event type.",
	}, []string{"type"})

	// outcome: ok, retried, skipped, failed, canceled
	EventsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "userprofile_events_handled_total",
		Help: "Handler outcomes, by event type.",
	}, []string{"type", "outcome"})

	HandleSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "userprofile_event_handle_seconds",
		Help:    "Time spent handling one event including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	MessagesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "userprofile_messages_published_total",
		Help: "Messages published by sinks, by topic and outcome.",
	}, []string{"topic", "outcome"})
)

func init() {
	prometheus.MustRegister(EventsConsumed, EventsHandled, HandleSeconds, MessagesPublished)
}

// MetricsServer serves /metrics until Stop.
type MetricsServer struct {
	srv *http.Server
	lis net.Listener
}

// Expose starts serving the default registry on port; port 0 picks a free one.
func Expose(port int) (*MetricsServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	m := &MetricsServer{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		lis: lis,
	}
	go func() {
		if err := m.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics server stopped", "err", err)
		}
	}()
	return m, nil
}

func (m *MetricsServer) Port() int { return m.lis.Addr().(*net.TCPAddr).Port }

func (m *MetricsServer) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}
