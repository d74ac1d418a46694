package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// GetMetricValue retrieves the current value of a gauge or counter metric
// from a collector vector for the given set of labels. Returns an error if
// the metric cannot be written.
func GetMetricValue(metric prometheus.Collector, labels map[string]string) (float64, error) {
	var m prometheus.Metric
	switch v := metric.(type) {
	case *prometheus.GaugeVec:
		m = v.With(labels)
	case *prometheus.CounterVec:
		m = v.With(labels)
	default:
		return 0, fmt.Errorf("unsupported collector type %T", metric)
	}

	pb := &dto.Metric{}
	if err := m.Write(pb); err != nil {
		return 0, err
	}

	switch {
	case pb.Gauge != nil:
		return pb.Gauge.GetValue(), nil
	case pb.Counter != nil:
		return pb.Counter.GetValue(), nil
	}
	return 0, nil
}

// GetHistogramCount returns how many observations a histogram vector has
// recorded for the given labels.
func GetHistogramCount(metric *prometheus.HistogramVec, labels map[string]string) (uint64, error) {
	observer := metric.With(labels)
	m, ok := observer.(prometheus.Metric)
	if !ok {
		return 0, nil
	}
	pb := &dto.Metric{}
	if err := m.Write(pb); err != nil {
		return 0, err
	}
	return pb.GetHistogram().GetSampleCount(), nil
}
