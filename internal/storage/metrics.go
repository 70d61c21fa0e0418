package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for object store calls.
type Observer interface {
	RecordOperation(op string, duration time.Duration, err error)
	RecordListed(count int, sizeBytes int64)
}

// PrometheusObserver exports object store metrics to Prometheus.
type PrometheusObserver struct {
	opDuration    *prometheus.HistogramVec
	opErrors      *prometheus.CounterVec
	listedBytes   prometheus.Counter
	listedObjects prometheus.Counter
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver registers the object store metrics on reg.
// Collectors already registered by an earlier observer are reused.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "nounimaging"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var (
		o   PrometheusObserver
		err error
	)
	o.opDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Latency of object store calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	o.opErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operation_errors_total",
		Help:      "Count of failed object store calls.",
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	o.listedBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "listed_bytes_total",
		Help:      "Cumulative size of listed objects.",
	}))
	if err != nil {
		return nil, err
	}
	o.listedObjects, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "listed_objects_total",
		Help:      "Cumulative number of listed objects.",
	}))
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// RecordOperation tracks latency and failures of one call.
func (o *PrometheusObserver) RecordOperation(op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.opDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.opErrors.WithLabelValues(op).Inc()
	}
}

// RecordListed tracks the volume returned by a listing.
func (o *PrometheusObserver) RecordListed(count int, sizeBytes int64) {
	if o == nil {
		return
	}
	o.listedObjects.Add(float64(count))
	o.listedBytes.Add(float64(sizeBytes))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register storage metric: %w", err)
	}
	return c, nil
}

type nopObserver struct{}

func (nopObserver) RecordOperation(string, time.Duration, error) {}

func (nopObserver) RecordListed(int, int64) {}
