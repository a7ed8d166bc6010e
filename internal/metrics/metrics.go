package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultFailed  = "failed"
)

var (
	once sync.Once

	operationsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offlinesync",
			Name:      "operations_enqueued_total",
			Help:      "Operations recorded for later replay.",
		},
	)

	replayAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offlinesync",
			Name:      "replay_attempts_total",
			Help:      "Replay attempts by outcome.",
		},
		[]string{"result"},
	)

	replayPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offlinesync",
			Name:      "replay_passes_total",
			Help:      "Replay passes that processed at least one operation.",
		},
	)

	operationsCleared = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offlinesync",
			Name:      "operations_cleared_total",
			Help:      "Failed operations purged by request.",
		},
	)

	replayInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "offlinesync",
			Name:      "replay_in_flight",
			Help:      "1 while a replay pass is running.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(operationsEnqueued, replayAttempts, replayPasses, operationsCleared, replayInFlight)
	})
}

func IncEnqueued() {
	operationsEnqueued.Inc()
}

// IncAttempt increments the attempt counter for a result label.
func IncAttempt(result string) {
	replayAttempts.WithLabelValues(result).Inc()
}

func IncPass() {
	replayPasses.Inc()
}

func AddCleared(n int) {
	operationsCleared.Add(float64(n))
}

func SetInFlight(running bool) {
	if running {
		replayInFlight.Set(1)
		return
	}
	replayInFlight.Set(0)
}
