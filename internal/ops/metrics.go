package ops

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hpungsan/nounimaging/internal/imaging"
)

// RunMetrics exports reconciliation outcomes to Prometheus.
type RunMetrics struct {
	runs     *prometheus.CounterVec
	results  *prometheus.CounterVec
	cleaned  prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewRunMetrics registers run metrics on reg, reusing collectors that are
// already registered.
func NewRunMetrics(namespace string, reg prometheus.Registerer) (*RunMetrics, error) {
	if namespace == "" {
		namespace = "nounimaging"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var (
		m   RunMetrics
		err error
	)
	if m.runs, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Reconciliation runs by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if m.results, err = registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "file_results_total",
		Help:      "Per-file match results by action.",
	}, []string{"action"})); err != nil {
		return nil, err
	}
	if m.cleaned, err = registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleaned_references_total",
		Help:      "Dangling record references cleared.",
	})); err != nil {
		return nil, err
	}
	if m.duration, err = registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of reconciliation runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	return &m, nil
}

// ObserveRun records one finished run.
func (m *RunMetrics) ObserveRun(report *imaging.Report, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "done"
	if err != nil {
		outcome = "failed"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if report == nil {
		return
	}
	for _, r := range report.Files {
		m.results.WithLabelValues(string(r.Action)).Inc()
	}
	m.cleaned.Add(float64(len(report.CleanedURLs)))
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register run metric: %w", err)
	}
	return c, nil
}
