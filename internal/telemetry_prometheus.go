package internal

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusEmitter turns telemetry hook calls into Prometheus collectors.
// Collectors are created lazily per metric name the first time it is emitted.
type PrometheusEmitter struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
}

func NewPrometheusEmitter(reg prometheus.Registerer) *PrometheusEmitter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusEmitter{
		reg:        reg,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
	}
}

// Register installs the emitter as the process-wide telemetry sink.
func (p *PrometheusEmitter) Register() {
	RegisterTelemetryEmitter(p.Emit)
}

func (p *PrometheusEmitter) Emit(_ context.Context, name string, labels map[string]string, value any) {
	v, ok := toFloat(value)
	if !ok {
		return
	}
	switch name {
	case metricOperationLatency, metricExportRows:
		p.histogram(name, labels).With(labels).Observe(v)
	default:
		p.counter(name, labels).With(labels).Add(v)
	}
}

func (p *PrometheusEmitter) histogram(name string, labels map[string]string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	buckets := prometheus.ExponentialBuckets(1, 2, 14)
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: helpFor(name), Buckets: buckets}, labelNames(labels))
	if err := p.reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			h = are.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	p.histograms[name] = h
	return h
}

func (p *PrometheusEmitter) counter(name string, labels map[string]string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: helpFor(name)}, labelNames(labels))
	if err := p.reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			c = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	p.counters[name] = c
	return c
}

func labelNames(labels map[string]string) []string {
	return SortedKeys(labels)
}

func helpFor(name string) string {
	switch name {
	case metricOperationLatency:
		return "Latency of survey storage operations in milliseconds."
	case metricOperationTotal:
		return "Finished survey operations by outcome."
	case metricTxRetries:
		return "Transactions re-run after losing a concurrent race."
	case metricExportRows:
		return "Submissions written per export."
	}
	return name
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
