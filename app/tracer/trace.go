// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package tracer provides the global tracer used to span remote config and lease operations.
package tracer

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/obolnetwork/ledgerctl/app/errors"
)

var tracer trace.Tracer = noop.NewTracerProvider().Tracer("")

// Start creates a span and a context containing it using the global tracer.
func Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, spanName, opts...)
}

type options struct {
	exporter func(context.Context) (sdktrace.SpanExporter, error)
}

// Option configures the span exporter.
type Option func(*options)

// WithStdOut exports spans as JSON to the writer.
func WithStdOut(w io.Writer) Option {
	return func(o *options) {
		o.exporter = func(context.Context) (sdktrace.SpanExporter, error) {
			exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
			if err != nil {
				return nil, errors.Wrap(err, "stdout exporter")
			}

			return exp, nil
		}
	}
}

// WithOTLP exports spans via OTLP gRPC to the collector address.
func WithOTLP(addr string) Option {
	return func(o *options) {
		o.exporter = func(ctx context.Context) (sdktrace.SpanExporter, error) {
			exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(addr), otlptracegrpc.WithInsecure())
			if err != nil {
				return nil, errors.Wrap(err, "otlp exporter")
			}

			return exp, nil
		}
	}
}

// Init sets the global tracer if an exporter option is provided and returns its shutdown function.
// Without options tracing stays a noop.
func Init(ctx context.Context, opts ...Option) (func(context.Context) error, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.exporter == nil {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := o.exporter(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("ledgerctl"),
		)),
	)

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer("ledgerctl")

	return tp.Shutdown, nil
}
