// metrics.go - In-process metrics for coordinator workflows.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter   MetricType = "counter"
	Gauge     MetricType = "gauge"
	Histogram MetricType = "histogram"
)

// histogramWindow bounds the samples kept per histogram series.
const histogramWindow = 1000

// Metric represents a single metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// HistogramSummary aggregates the retained samples of one histogram series.
type HistogramSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
}

// Summary is a point-in-time view of every series, keyed by series key.
type Summary struct {
	Counters   map[string]int64            `json:"counters"`
	Gauges     map[string]float64          `json:"gauges"`
	Histograms map[string]HistogramSummary `json:"histograms"`
}

// Collector manages metrics collection
type Collector struct {
	mu         sync.RWMutex
	metrics    map[string]*Metric
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
	now        func() time.Time
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		metrics:    make(map[string]*Metric),
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
		now:        time.Now,
	}
}

// IncrementCounter increments a counter metric
func (mc *Collector) IncrementCounter(name string, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := makeKey(name, labels)
	mc.counters[key]++
	mc.updateMetric(key, name, Counter, float64(mc.counters[key]), labels)
}

// SetGauge sets a gauge metric value
func (mc *Collector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := makeKey(name, labels)
	mc.gauges[key] = value
	mc.updateMetric(key, name, Gauge, value, labels)
}

// RecordHistogram records a value in a histogram
func (mc *Collector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := makeKey(name, labels)
	values := append(mc.histograms[key], value)
	if len(values) > histogramWindow {
		values = values[len(values)-histogramWindow:]
	}
	mc.histograms[key] = values
	mc.updateMetric(key, name, Histogram, value, labels)
}

// GetMetric retrieves the latest observation of a series.
func (mc *Collector) GetMetric(name string, labels map[string]string) (Metric, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m, ok := mc.metrics[makeKey(name, labels)]
	if !ok {
		return Metric{}, false
	}
	return *m, true
}

// Counter returns the current value of a counter series.
func (mc *Collector) Counter(name string, labels map[string]string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[makeKey(name, labels)]
}

// GetAllMetrics returns the latest observation of every series, sorted by name.
func (mc *Collector) GetAllMetrics() []Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make([]Metric, 0, len(mc.metrics))
	for _, m := range mc.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		return makeKey(out[i].Name, out[i].Labels) < makeKey(out[j].Name, out[j].Labels)
	})
	return out
}

// Summary returns a summary of all metrics
func (mc *Collector) Summary() Summary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Summary{
		Counters:   make(map[string]int64, len(mc.counters)),
		Gauges:     make(map[string]float64, len(mc.gauges)),
		Histograms: make(map[string]HistogramSummary, len(mc.histograms)),
	}
	for key, v := range mc.counters {
		s.Counters[key] = v
	}
	for key, v := range mc.gauges {
		s.Gauges[key] = v
	}
	for key, values := range mc.histograms {
		if len(values) == 0 {
			continue
		}
		h := HistogramSummary{Count: len(values), Min: values[0], Max: values[0]}
		for _, v := range values {
			if v < h.Min {
				h.Min = v
			}
			if v > h.Max {
				h.Max = v
			}
			h.Sum += v
		}
		h.Avg = h.Sum / float64(h.Count)
		s.Histograms[key] = h
	}
	return s
}

// Reset resets all metrics
func (mc *Collector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics = make(map[string]*Metric)
	mc.counters = make(map[string]int64)
	mc.gauges = make(map[string]float64)
	mc.histograms = make(map[string][]float64)
}

// makeKey creates a deterministic key from a metric name and its sorted labels,
// e.g. decrypt_count{outcome=decrypted}.
func makeKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func (mc *Collector) updateMetric(key, name string, metricType MetricType, value float64, labels map[string]string) {
	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      metricType,
		Value:     value,
		Labels:    labels,
		Timestamp: mc.now(),
	}
}

// Predefined metric names
const (
	MetricCreateCount      = "create_count"
	MetricCreateTime       = "create_time_seconds"
	MetricDecryptCount     = "decrypt_count"
	MetricDecryptTime      = "decrypt_time_seconds"
	MetricErrorCount       = "error_count"
	MetricReconcileCount   = "reconcile_count"
	MetricReconcileTime    = "reconcile_time_seconds"
	MetricCachedRecords    = "cached_records"
	MetricSkippedRecords   = "skipped_records"
	MetricProofTime        = "proof_generation_time_seconds"
	MetricRateLimitedCount = "rate_limited_count"
)

// RecordCreate records a confirmed create workflow.
func (mc *Collector) RecordCreate(d time.Duration) {
	mc.IncrementCounter(MetricCreateCount, nil)
	mc.RecordHistogram(MetricCreateTime, d.Seconds(), nil)
}

// RecordDecrypt records a finished decrypt workflow by outcome.
func (mc *Collector) RecordDecrypt(outcome string, d time.Duration) {
	labels := map[string]string{"outcome": outcome}
	mc.IncrementCounter(MetricDecryptCount, labels)
	mc.RecordHistogram(MetricDecryptTime, d.Seconds(), labels)
}

// RecordError counts a workflow failure by kind.
func (mc *Collector) RecordError(kind string) {
	mc.IncrementCounter(MetricErrorCount, map[string]string{"kind": kind})
}

// RecordReconcile records a cache refresh.
func (mc *Collector) RecordReconcile(loaded, skipped int, d time.Duration) {
	mc.IncrementCounter(MetricReconcileCount, nil)
	mc.RecordHistogram(MetricReconcileTime, d.Seconds(), nil)
	mc.SetGauge(MetricCachedRecords, float64(loaded), nil)
	mc.SetGauge(MetricSkippedRecords, float64(skipped), nil)
}

// RecordProofGeneration records the time spent proving for op (input or decrypt).
func (mc *Collector) RecordProofGeneration(op string, d time.Duration) {
	mc.RecordHistogram(MetricProofTime, d.Seconds(), map[string]string{"op": op})
}

// RecordRateLimited counts a request refused by the rate limiter.
func (mc *Collector) RecordRateLimited(account string) {
	mc.IncrementCounter(MetricRateLimitedCount, map[string]string{"account": account})
}
