package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "claun"

// Run results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
	ResultSpawn  = "spawn_error"
)

// Skip reasons.
const (
	SkipBusy   = "busy"
	SkipPaused = "paused"
)

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed runs by result.",
	}, []string{"result"})

	skipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skips_total",
		Help:      "Due slots that did not start a run, by reason.",
	}, []string{"reason"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a run.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	nextRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "next_run_timestamp_seconds",
		Help:      "Unix time of the next scheduled run, 0 when none.",
	})

	paused = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "paused",
		Help:      "1 while scheduled runs are paused.",
	})
)

func init() {
	registry.MustRegister(runsTotal, skipsTotal, runDuration, nextRun, paused)
}

func ObserveRun(result string, d time.Duration) {
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(d.Seconds())
}

func IncSkip(reason string) {
	skipsTotal.WithLabelValues(reason).Inc()
}

func SetNextRun(t time.Time) {
	if t.IsZero() {
		nextRun.Set(0)
		return
	}
	nextRun.Set(float64(t.Unix()))
}

func SetPaused(p bool) {
	if p {
		paused.Set(1)
		return
	}
	paused.Set(0)
}
