package scaling

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "queuescale"

// Metrics are the Prometheus collectors updated by the control loop
type Metrics struct {
	QueueMessages   prometheus.Gauge
	CurrentReplicas prometheus.Gauge
	DesiredReplicas prometheus.Gauge
	Actions         *prometheus.CounterVec
	TickErrors      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		QueueMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_messages",
			Help:      "Approximate number of messages in the queue at the last poll.",
		}),
		CurrentReplicas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "current_replicas",
			Help:      "Replica count of the deployment at the last poll.",
		}),
		DesiredReplicas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "desired_replicas",
			Help:      "Replica count the last decision asked for.",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scaling_actions_total",
			Help:      "Applied scaling actions by direction.",
		}, []string{"direction"}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tick_errors_total",
			Help:      "Failed ticks by error kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.QueueMessages, m.CurrentReplicas, m.DesiredReplicas, m.Actions, m.TickErrors} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}
