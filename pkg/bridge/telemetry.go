// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bridge

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"tailscale.com/types/logger"
)

const instrumentationName = "github.com/yeetrun/argbridge/pkg/bridge"

// Outcomes recorded on spans and the invocation counter.
const (
	outcomeNamespace = "namespace"
	outcomeOutput    = "output"
	outcomeExit      = "exit"
	outcomeFatal     = "fatal"
	outcomeError     = "error"
	outcomeNotFound  = "not_found"
	outcomePanic     = "panic"
)

type telemetry struct {
	tracer      trace.Tracer
	invocations metric.Int64Counter
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, logf logger.Logf) *telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	counter, err := mp.Meter(instrumentationName).Int64Counter(
		"argbridge.invocations",
		metric.WithDescription("Number of parser invocations by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		logf("bridge: invocation counter disabled: %v", err)
		counter = noop.Int64Counter{}
	}
	return &telemetry{
		tracer:      tp.Tracer(instrumentationName),
		invocations: counter,
	}
}

func (t *telemetry) start(ctx context.Context, parser string, argc int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "argbridge.invoke", trace.WithAttributes(
		attribute.String("argbridge.parser", parser),
		attribute.Int("argbridge.argc", argc),
	))
}

func (t *telemetry) finish(ctx context.Context, span trace.Span, outcome string, err error) {
	defer span.End()
	span.SetAttributes(attribute.String("argbridge.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	t.invocations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
