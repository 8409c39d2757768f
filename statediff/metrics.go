package statediff

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks how long diffing one block's worth of pools takes.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
}

// NewMetrics registers and returns a fresh Metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "decoder",
			Subsystem: "statediff",
			Name:      "diff_duration_seconds",
			Help:      "Time spent diffing one wirestate.State against the previous one.",
			Buckets:   prometheus.DefBuckets,
		}, nil),
	}
	reg.MustRegister(m.diffDuration)
	return m
}
