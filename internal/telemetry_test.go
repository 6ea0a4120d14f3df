package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lychee-technology/survey"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedMetric struct {
	name   string
	labels map[string]string
	value  any
}

func captureTelemetry(t *testing.T) *[]recordedMetric {
	t.Helper()
	var (
		mu  sync.Mutex
		got []recordedMetric
	)
	RegisterTelemetryEmitter(func(_ context.Context, name string, labels map[string]string, value any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, recordedMetric{name: name, labels: labels, value: value})
	})
	t.Cleanup(func() { RegisterTelemetryEmitter(nil) })
	return &got
}

func TestObserveEmitsLatencyAndOutcome(t *testing.T) {
	got := captureTelemetry(t)
	ctx := context.Background()

	observe(ctx, "publish", time.Now(), nil)
	observe(ctx, "publish", time.Now(), survey.NewConflictError(survey.ErrCodeVersionConflict, "lost"))

	require.Len(t, *got, 4)
	assert.Equal(t, metricOperationLatency, (*got)[0].name)
	assert.Equal(t, map[string]string{"op": "publish", "outcome": "ok"}, (*got)[1].labels)
	assert.Equal(t, map[string]string{"op": "publish", "outcome": "conflict"}, (*got)[3].labels)
}

func TestPrometheusEmitter(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusEmitter(reg)
	ctx := context.Background()

	p.Emit(ctx, metricOperationTotal, map[string]string{"op": "bind", "outcome": "ok"}, int64(1))
	p.Emit(ctx, metricOperationTotal, map[string]string{"op": "bind", "outcome": "ok"}, int64(1))
	p.Emit(ctx, metricOperationLatency, map[string]string{"op": "bind"}, int64(12))
	p.Emit(ctx, metricTxRetries, map[string]string{"op": "publish"}, "not a number")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.counters[metricOperationTotal].WithLabelValues("bind", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.histograms[metricOperationLatency]))
	_, ok := p.counters[metricTxRetries]
	assert.False(t, ok)
}
