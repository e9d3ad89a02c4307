package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestObserver(t *testing.T) (*Observer, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	obs, err := NewObserver(provider.Meter("test"), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)

	return obs, reader
}

func sumByName(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}

	return total
}

// TestObserver_NilSafe tests that every Observer method tolerates a nil receiver.
func TestObserver_NilSafe(t *testing.T) {
	var obs *Observer
	ctx := context.Background()

	obs.ObserveRequest(ctx, "GET", "/health", 200, time.Millisecond)
	spanCtx, span := obs.StartInvocation(ctx, "echo")
	require.Equal(t, ctx, spanCtx)
	require.Nil(t, span)
	obs.EndInvocation(ctx, span, "echo", "ok", nil)
	obs.SessionOpened(ctx, "sse")
	obs.SessionClosed(ctx, "sse")
}

// TestObserver_RequestCounter tests the request counter and histogram.
func TestObserver_RequestCounter(t *testing.T) {
	obs, reader := newTestObserver(t)
	ctx := context.Background()

	obs.ObserveRequest(ctx, "GET", "/health", 200, 2*time.Millisecond)
	obs.ObserveRequest(ctx, "POST", "/mcp", 200, 5*time.Millisecond)

	require.Equal(t, int64(2), sumByName(t, reader, "analyticsmcp.http.requests"))
}

// TestObserver_InvocationOutcomes tests the invocation counter across outcomes.
func TestObserver_InvocationOutcomes(t *testing.T) {
	obs, reader := newTestObserver(t)
	ctx := context.Background()

	spanCtx, span := obs.StartInvocation(ctx, "echo")
	obs.EndInvocation(spanCtx, span, "echo", "ok", nil)

	spanCtx, span = obs.StartInvocation(ctx, "broken")
	obs.EndInvocation(spanCtx, span, "broken", "error", errors.New("boom"))

	require.Equal(t, int64(2), sumByName(t, reader, "analyticsmcp.tool.invocations"))
}

// TestObserver_SessionGauge tests that opens and closes balance out.
func TestObserver_SessionGauge(t *testing.T) {
	obs, reader := newTestObserver(t)
	ctx := context.Background()

	obs.SessionOpened(ctx, "streamable")
	obs.SessionOpened(ctx, "sse")
	obs.SessionClosed(ctx, "sse")

	require.Equal(t, int64(1), sumByName(t, reader, "analyticsmcp.sessions.active"))
}

// TestSetup_NoEndpoint tests that Setup is a no-op without the OTLP endpoint.
func TestSetup_NoEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Setup(context.Background())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
