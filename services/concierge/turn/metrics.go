package turn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	conciergeErrors "github.com/kaytu-io/ai-concierge/services/concierge/errors"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "concierge",
		Subsystem: "turn",
		Name:      "total",
		Help:      "Turns by outcome.",
	}, []string{"result"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "concierge",
		Subsystem: "turn",
		Name:      "duration_seconds",
		Help:      "Wall time of a turn, thread creation to reply.",
		Buckets:   []float64{.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	pollAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "concierge",
		Subsystem: "turn",
		Name:      "poll_attempts",
		Help:      "Run status retrievals per turn.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
	})
)

func observeTurn(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = conciergeErrors.KindOf(err).String()
	}
	turnsTotal.WithLabelValues(result).Inc()
	turnDuration.Observe(d.Seconds())
}
