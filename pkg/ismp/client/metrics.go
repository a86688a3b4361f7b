package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors of a Client.
type Metrics struct {
	// StatusTransitions counts message status updates by status.
	StatusTransitions *prometheus.CounterVec
	// TimeoutTransitions counts timeout stream updates by status.
	TimeoutTransitions *prometheus.CounterVec
	// ChallengeWaitSeconds observes time spent waiting for challenge periods to elapse.
	ChallengeWaitSeconds prometheus.Histogram
	// Vetoes counts state commitments vetoed while being waited on.
	Vetoes prometheus.Counter
	// BusSubscribers tracks subscribers of the finality bus by chain and counterparty.
	BusSubscribers *prometheus.GaugeVec
}

// NewMetrics returns the collectors of a Client, registered with reg unless it is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StatusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ismp_client_status_transitions_total",
				Help: "Message status updates emitted by the ISMP client",
			},
			[]string{"status"},
		),
		TimeoutTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ismp_client_timeout_transitions_total",
				Help: "Timeout stream updates emitted by the ISMP client",
			},
			[]string{"status"},
		),
		ChallengeWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ismp_client_challenge_wait_seconds",
			Help:    "Time spent waiting for challenge periods to elapse",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		Vetoes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ismp_client_vetoes_total",
			Help: "State commitments vetoed during their challenge period",
		}),
		BusSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ismp_client_bus_subscribers",
				Help: "Subscribers of state machine update notifications",
			},
			[]string{"chain", "counterparty"},
		),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.StatusTransitions, m.TimeoutTransitions, m.ChallengeWaitSeconds, m.Vetoes, m.BusSubscribers,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func noopMetrics() *Metrics {
	m, _ := NewMetrics(nil)
	return m
}
