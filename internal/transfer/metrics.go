package transfer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for transfer batches. A nil
// *Metrics records nothing.
type Metrics struct {
	items    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notebridge_transfer_items_total",
				Help: "Transfer items by direction and terminal state.",
			},
			[]string{"direction", "state"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notebridge_transfer_item_duration_seconds",
				Help:    "Time spent on one transfer item.",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"direction"},
		),
	}
	if err := reg.Register(m.items); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(direction string, s State) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(direction, s.String()).Inc()
}

func (m *Metrics) observeDuration(direction string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(direction).Observe(d.Seconds())
}
