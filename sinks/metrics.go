package sinks

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	identity "github.com/goliatone/go-identity"
)

// MetricsSink counts activity events by type and provider.
type MetricsSink struct {
	events *prometheus.CounterVec
}

var _ identity.ActivitySink = (*MetricsSink)(nil)

// NewMetricsSink registers identity_activity_events_total with reg. A nil
// registerer leaves the collector unregistered.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "identity",
		Name:      "activity_events_total",
		Help:      "Total number of identity activity events by type and provider",
	}, []string{"type", "provider"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			return nil, err
		}
	}
	return &MetricsSink{events: events}, nil
}

func (s *MetricsSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.events.WithLabelValues(string(event.Type), event.Provider).Inc()
	return nil
}

// Collector exposes the counter, mostly for tests.
func (s *MetricsSink) Collector() *prometheus.CounterVec {
	return s.events
}
