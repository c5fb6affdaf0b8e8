// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package log provides the global logging functions used throughout ledgerctl.
// Fields are attached via z.Field either per call or per context using WithCtx.
package log

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

type (
	fieldsKey struct{}
	topicKey  struct{}
)

// WithCtx returns a child context carrying the logging fields.
//
//	ctx := log.WithCtx(ctx, z.Str("namespace", ns))
//	log.Info(ctx, "Remote config loaded") // Includes namespace=...
func WithCtx(ctx context.Context, fields ...z.Field) context.Context {
	return context.WithValue(ctx, fieldsKey{}, append(fields, ctxFields(ctx)...))
}

// WithTopic returns a child context with the topic field, also used as the metrics label.
func WithTopic(ctx context.Context, topic string) context.Context {
	ctx = context.WithValue(ctx, topicKey{}, topic)
	return WithCtx(ctx, z.Str(keyTopic, topic))
}

func ctxFields(ctx context.Context) []z.Field {
	fields, _ := ctx.Value(fieldsKey{}).([]z.Field)
	return fields
}

func ctxTopic(ctx context.Context) string {
	topic, _ := ctx.Value(topicKey{}).(string)
	if topic == "" {
		return "unknown"
	}

	return topic
}

// Debug logs at debug level. Most logging should be debug.
func Debug(ctx context.Context, msg string, fields ...z.Field) {
	logPlain(ctx, zapDebug, "log.Debug: ", msg, fields)
}

// Info logs at info level. Reserve it for events a user cares about.
func Info(ctx context.Context, msg string, fields ...z.Field) {
	logPlain(ctx, zapInfo, "log.Info: ", msg, fields)
}

// Warn logs at warn level, wrapping err with msg if non-nil.
// Warnings are problems that need no action.
func Warn(ctx context.Context, msg string, err error, fields ...z.Field) {
	warnCounter.WithLabelValues(ctxTopic(ctx)).Inc()

	if err == nil {
		logPlain(ctx, zapWarn, "log.Warn: ", msg, fields)
		return
	}

	logErr(ctx, zapWarn, errors.SkipWrap(err, msg, 2, fields...))
}

// Error logs at error level, wrapping err with msg if non-nil.
// Errors are problems that need action.
func Error(ctx context.Context, msg string, err error, fields ...z.Field) {
	errorCounter.WithLabelValues(ctxTopic(ctx)).Inc()

	if err == nil {
		logPlain(ctx, zapError, "log.Error: ", msg, fields)
		return
	}

	logErr(ctx, zapError, errors.SkipWrap(err, msg, 2, fields...))
}

type zapLevelFunc func(l zapLogger, msg string, fields ...zap.Field)

var (
	zapDebug zapLevelFunc = func(l zapLogger, msg string, fields ...zap.Field) { l.Debug(msg, fields...) }
	zapInfo  zapLevelFunc = func(l zapLogger, msg string, fields ...zap.Field) { l.Info(msg, fields...) }
	zapWarn  zapLevelFunc = func(l zapLogger, msg string, fields ...zap.Field) { l.Warn(msg, fields...) }
	zapError zapLevelFunc = func(l zapLogger, msg string, fields ...zap.Field) { l.Error(msg, fields...) }
)

func logPlain(ctx context.Context, level zapLevelFunc, eventPrefix, msg string, fields []z.Field) {
	zfs, ok := collect(ctx, fields...)
	if !ok {
		return
	}

	trace.SpanFromContext(ctx).AddEvent(eventPrefix+msg, attributes(zfs))
	level(getLogger(), msg, zfs...)
}

func logErr(ctx context.Context, level zapLevelFunc, err error) {
	zfs, ok := collect(ctx, errFields(err))
	if !ok {
		return
	}

	trace.SpanFromContext(ctx).RecordError(err, trace.WithStackTrace(true), attributes(zfs))
	level(getLogger(), err.Error(), zfs...)
}

// collect unwraps the call and context fields, dropping duplicate keys (first wins).
// It returns false if a filter field indicates the log must be dropped.
func collect(ctx context.Context, fields ...z.Field) ([]zap.Field, bool) {
	var (
		resp    []zap.Field
		dropped bool
		seen    = make(map[string]bool)
	)

	add := func(f zap.Field) {
		if f.Type == filterFieldType {
			dropped = true
			return
		} else if seen[f.Key] {
			return
		}

		seen[f.Key] = true
		resp = append(resp, f)
	}

	for _, field := range fields {
		field(add)
	}

	for _, field := range ctxFields(ctx) {
		field(add)
	}

	return resp, !dropped
}

// errFields returns the stack and fields of a structured error, omitting
// the error message itself since it becomes the log message.
func errFields(err error) z.Field {
	type structErr interface {
		Fields() []z.Field
		Stack() zap.Field
	}

	serr, ok := err.(structErr) //nolint:errorlint // Only outer error carries merged fields.
	if !ok {
		return z.Skip
	}

	return func(add func(zap.Field)) {
		add(serr.Stack())

		for _, field := range serr.Fields() {
			field(add)
		}
	}
}

func attributes(fields []zap.Field) trace.EventOption {
	var kvs []attribute.KeyValue
	for _, f := range fields {
		switch {
		case f.Interface != nil:
			kvs = append(kvs, attribute.String(f.Key, fmt.Sprint(f.Interface)))
		case f.String != "":
			kvs = append(kvs, attribute.String(f.Key, f.String))
		case f.Integer != 0:
			kvs = append(kvs, attribute.Int64(f.Key, f.Integer))
		}
	}

	return trace.WithAttributes(kvs...)
}
