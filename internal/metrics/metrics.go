package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gosurv"

// CV holds the collectors for cross-validation runs. A nil *CV is valid and
// records nothing.
type CV struct {
	runs          *prometheus.CounterVec
	foldDuration  prometheus.Histogram
	foldCIndex    prometheus.Histogram
	stageFailures *prometheus.CounterVec
	fitRetries    prometheus.Counter
	lastMeanC     prometheus.Gauge
}

// NewCV registers the collectors with reg
func NewCV(reg prometheus.Registerer) *CV {
	f := promauto.With(reg)
	return &CV{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cv_runs_total",
			Help:      "Cross-validation runs by outcome",
		}, []string{"status"}),
		foldDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cv_fold_duration_seconds",
			Help:      "Wall time of one fold from split to score",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),
		foldCIndex: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cv_fold_concordance",
			Help:      "Held-out concordance index per fold",
			Buckets:   prometheus.LinearBuckets(0.4, 0.05, 13),
		}),
		stageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cv_stage_failures_total",
			Help:      "Fold stage failures by stage",
		}, []string{"stage"}),
		fitRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cox_fit_retries_total",
			Help:      "Fits retried with a rescaled penalty after non-convergence",
		}),
		lastMeanC: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cv_last_mean_concordance",
			Help:      "Mean concordance of the most recent successful run",
		}),
	}
}

// RunFinished counts a run; meanC is recorded only for successful runs
func (m *CV) RunFinished(err error, meanC float64) {
	if m == nil {
		return
	}
	if err != nil {
		m.runs.WithLabelValues("failed").Inc()
		return
	}
	m.runs.WithLabelValues("succeeded").Inc()
	m.lastMeanC.Set(meanC)
}

// FoldCompleted records one scored fold
func (m *CV) FoldCompleted(elapsed time.Duration, cIndex float64) {
	if m == nil {
		return
	}
	m.foldDuration.Observe(elapsed.Seconds())
	m.foldCIndex.Observe(cIndex)
}

// StageFailed counts a failure in the named stage
func (m *CV) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

// FitRetried counts one retry with a rescaled penalty
func (m *CV) FitRetried() {
	if m == nil {
		return
	}
	m.fitRetries.Inc()
}
