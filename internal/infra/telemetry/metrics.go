package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/usecase"
)

const namespace = "nostrconnect"

type Metrics struct {
	registry *prometheus.Registry

	sessionEvents *prometheus.CounterVec
	signerEpoch   prometheus.Gauge
	notifyErrors  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "events_total",
				Help:      "Number of session events by type",
			},
			[]string{"type"},
		),
		signerEpoch: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "signer_epoch",
				Help:      "Epoch of the remote signer binding",
			},
		),
		notifyErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "notify_errors_total",
				Help:      "Number of session events that could not be delivered",
			},
		),
	}
	m.registry.MustRegister(
		m.sessionEvents,
		m.signerEpoch,
		m.notifyErrors,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Notifier counts every event before passing it on to next.
func (m *Metrics) Notifier(next usecase.Notifier) usecase.Notifier {
	return &countingNotifier{metrics: m, next: next}
}

type countingNotifier struct {
	metrics *Metrics
	next    usecase.Notifier
}

func (n *countingNotifier) Notify(ctx context.Context, event domain.SessionEvent) error {
	n.metrics.sessionEvents.WithLabelValues(event.Type).Inc()
	n.metrics.signerEpoch.Set(float64(event.Epoch))

	if n.next == nil {
		return nil
	}
	err := n.next.Notify(ctx, event)
	if err != nil {
		n.metrics.notifyErrors.Inc()
	}
	return err
}
