package internal

import (
	"context"
	"sync"
	"time"

	"github.com/lychee-technology/survey"
)

// Telemetry hook layer. Library code calls the Emit* helpers; the binary decides
// where the measurements go by registering an emitter (see NewPrometheusEmitter).
// The default emitter drops everything.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

const (
	metricOperationLatency = "survey_operation_latency_ms"
	metricOperationTotal   = "survey_operation_total"
	metricTxRetries        = "survey_tx_retries_total"
	metricExportRows       = "survey_export_rows"
)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter installs fn as the process-wide emitter. nil restores the no-op.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emitter() telemetryEmitter {
	teleMu.Lock()
	defer teleMu.Unlock()
	return teleImpl
}

// EmitLatency records how long op took, in milliseconds.
func EmitLatency(ctx context.Context, op string, started time.Time) {
	emitter()(ctx, metricOperationLatency, map[string]string{"op": op}, time.Since(started).Milliseconds())
}

// EmitOutcome counts one finished op, labelled "ok" or with the error type.
func EmitOutcome(ctx context.Context, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(survey.ErrorTypeOf(err))
	}
	emitter()(ctx, metricOperationTotal, map[string]string{"op": op, "outcome": outcome}, int64(1))
}

// EmitRetry counts a transaction attempt that lost a race and was re-run.
func EmitRetry(ctx context.Context, op string) {
	emitter()(ctx, metricTxRetries, map[string]string{"op": op}, int64(1))
}

// EmitExportRows records the number of submissions written by one export.
func EmitExportRows(ctx context.Context, sink string, rows int64) {
	emitter()(ctx, metricExportRows, map[string]string{"sink": sink}, rows)
}

// observe is the common tail of every instrumented operation.
func observe(ctx context.Context, op string, started time.Time, err error) {
	EmitLatency(ctx, op, started)
	EmitOutcome(ctx, op, err)
}
