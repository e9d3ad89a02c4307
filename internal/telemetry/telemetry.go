// Package telemetry provides OpenTelemetry instrumentation for the server.
//
// Instruments resolve against whatever meter and tracer the host process
// installed; with the default no-op providers every call is free. All Observer
// methods are safe on a nil receiver so components can carry a nil observer.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observer records the server's metrics and traces.
type Observer struct {
	tracer trace.Tracer

	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	invocations     metric.Int64Counter
	activeSessions  metric.Int64UpDownCounter
}

// NewObserver creates an Observer backed by the given meter and tracer.
func NewObserver(meter metric.Meter, tracer trace.Tracer) (*Observer, error) {
	requests, err := meter.Int64Counter("analyticsmcp.http.requests",
		metric.WithDescription("Number of dispatched HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram("analyticsmcp.http.request.duration",
		metric.WithDescription("Duration of dispatched HTTP requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("analyticsmcp.tool.invocations",
		metric.WithDescription("Number of tool invocations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	activeSessions, err := meter.Int64UpDownCounter("analyticsmcp.sessions.active",
		metric.WithDescription("Number of active client sessions by transport"),
	)
	if err != nil {
		return nil, err
	}

	return &Observer{
		tracer:          tracer,
		requests:        requests,
		requestDuration: requestDuration,
		invocations:     invocations,
		activeSessions:  activeSessions,
	}, nil
}

// ObserveRequest records one dispatched HTTP request.
func (o *Observer) ObserveRequest(ctx context.Context, method, path string, status int, elapsed time.Duration) {
	if o == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
		attribute.Int("http.status_code", status),
	)
	o.requests.Add(ctx, 1, attrs)
	o.requestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// StartInvocation opens a span covering one tool invocation. The returned
// context carries the span; pass both to EndInvocation.
func (o *Observer) StartInvocation(ctx context.Context, tool string) (context.Context, trace.Span) {
	if o == nil {
		return ctx, nil
	}

	return o.tracer.Start(ctx, "tool:"+tool,
		trace.WithAttributes(attribute.String("analyticsmcp.tool", tool)),
	)
}

// EndInvocation closes an invocation span and records the outcome counter.
// Outcome is one of "ok", "not_found", or "error".
func (o *Observer) EndInvocation(ctx context.Context, span trace.Span, tool, outcome string, err error) {
	if o == nil {
		return
	}

	o.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("analyticsmcp.tool", tool),
		attribute.String("analyticsmcp.outcome", outcome),
	))

	if span == nil {
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// SessionOpened increments the active-session gauge for a transport.
func (o *Observer) SessionOpened(ctx context.Context, transport string) {
	if o == nil {
		return
	}

	o.activeSessions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("analyticsmcp.transport", transport),
	))
}

// SessionClosed decrements the active-session gauge for a transport.
func (o *Observer) SessionClosed(ctx context.Context, transport string) {
	if o == nil {
		return
	}

	o.activeSessions.Add(ctx, -1, metric.WithAttributes(
		attribute.String("analyticsmcp.transport", transport),
	))
}
