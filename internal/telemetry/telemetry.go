// Package telemetry exposes the daemon's prometheus metrics.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's instrument set on a private registry so
// tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	// Received counts accepted intake messages.
	Received prometheus.Counter

	// Sent counts successful SMTP deliveries.
	Sent prometheus.Counter

	// Expired counts messages discarded after exceeding the queue TTL.
	Expired prometheus.Counter

	// SendFailures counts failed delivery attempts.
	SendFailures prometheus.Counter

	// Sidegrades counts plain frames answered with a resend request.
	Sidegrades prometheus.Counter

	// QueueDepth tracks the number of messages waiting for dispatch.
	QueueDepth prometheus.Gauge
}

// NewMetrics creates a Metrics set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Received: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailing_server_messages_received_total",
			Help: "Accepted intake messages.",
		}),
		Sent: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailing_server_messages_sent_total",
			Help: "Successful SMTP deliveries.",
		}),
		Expired: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailing_server_messages_expired_total",
			Help: "Messages discarded after exceeding the queue TTL.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailing_server_send_failures_total",
			Help: "Failed SMTP delivery attempts.",
		}),
		Sidegrades: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailing_server_sidegrades_total",
			Help: "Plain frames answered with an optimized-resend request.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mailing_server_queue_depth",
			Help: "Messages waiting for dispatch.",
		}),
	}
}

// Handler returns the scrape handler for the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a scrape endpoint on addr until ctx is cancelled. An empty
// addr disables the endpoint and returns immediately.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("metrics endpoint listening", "component", "telemetry", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
