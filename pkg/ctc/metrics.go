package ctc

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srediag/plugin-ctc/pkg/frame"
)

const (
	directionTransmit = "transmit"
	directionReceive  = "receive"
)

var (
	registerOnce sync.Once

	transfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctc",
			Subsystem: "channel",
			Name:      "transfers_total",
			Help:      "Transfers by direction and result.",
		},
		[]string{"direction", "result"},
	)
	wordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctc",
			Subsystem: "channel",
			Name:      "words_total",
			Help:      "Words encoded or decoded on the cache lines.",
		},
		[]string{"direction"},
	)
	blocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ctc",
			Subsystem: "channel",
			Name:      "received_blocks_total",
			Help:      "Received blocks by outcome.",
		},
		[]string{"outcome"},
	)
	ambiguousTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ctc",
			Subsystem: "codec",
			Name:      "ambiguous_decodes_total",
			Help:      "Decoded words discarded for lack of a clear vote.",
		},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ctc",
			Subsystem: "channel",
			Name:      "transfer_duration_seconds",
			Help:      "Transfer duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"direction"},
	)
)

// RegisterMetrics registers the channel collectors with the default
// registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(transfersTotal, wordsTotal, blocksTotal, ambiguousTotal, transferDuration)
	})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	default:
		return "error"
	}
}

func recordTransfer(direction string, st frame.Stats, err error, d time.Duration) {
	RegisterMetrics()
	transfersTotal.WithLabelValues(direction, resultLabel(err)).Inc()
	wordsTotal.WithLabelValues(direction).Add(float64(st.Words))
	transferDuration.WithLabelValues(direction).Observe(d.Seconds())
	if direction != directionReceive {
		return
	}
	blocksTotal.WithLabelValues("accepted").Add(float64(st.Accepted))
	blocksTotal.WithLabelValues("duplicate").Add(float64(st.Duplicates))
	blocksTotal.WithLabelValues("checksum").Add(float64(st.ChecksumDropped))
	blocksTotal.WithLabelValues("out_of_range").Add(float64(st.OutOfRange))
	ambiguousTotal.Add(float64(st.Ambiguous))
}
