package decoder

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the decoder's Prometheus instrumentation. It is
// constructed once per decoder instance against an injected
// Registerer, the same shape differ.StateDiffer uses for its metrics.
type Metrics struct {
	tickDuration   *prometheus.HistogramVec
	tokensIngested prometheus.Counter
	poolsDecoded   prometheus.Counter
	poolsSkipped   prometheus.Counter
	fatalTicks     prometheus.Counter
	fanoutSize     prometheus.Histogram
}

// NewMetrics registers and returns a fresh Metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "decoder_tick_duration_seconds",
			Help: "Time spent decoding a single FeedMessage tick.",
		}, nil),
		tokensIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decoder_tokens_ingested_total",
			Help: "Tokens added to the token registry.",
		}),
		poolsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decoder_pools_decoded_total",
			Help: "Pools successfully decoded into simulation state.",
		}),
		poolsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decoder_pools_skipped_total",
			Help: "Pools skipped due to unresolved tokens.",
		}),
		fatalTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "decoder_fatal_ticks_total",
			Help: "Ticks aborted by a fatal error.",
		}),
		fanoutSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "decoder_fanout_size",
			Help: "Number of pools re-derived via contracts-index fanout per tick.",
		}),
	}

	reg.MustRegister(m.tickDuration, m.tokensIngested, m.poolsDecoded, m.poolsSkipped, m.fatalTicks, m.fanoutSize)
	return m
}
