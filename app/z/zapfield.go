// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package z wraps zap fields for structured logging and structured errors.
package z

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Field adds one or more zap fields via the provided callback.
type Field func(add func(zap.Field))

// Fields returns the fields attached to a structured error, or none.
func Fields(err error) []Field {
	type structErr interface {
		Fields() []Field
	}

	serr, ok := err.(structErr) //nolint:errorlint // Only the outer error carries the merged fields.
	if !ok {
		return []Field{}
	}

	return serr.Fields()
}

// ContainsField returns true if the structured error carries a field equal to the given one.
func ContainsField(err error, field Field) bool {
	target := unwrapOne(field)

	return slices.ContainsFunc(Fields(err), func(f Field) bool {
		return target.Equals(unwrapOne(f))
	})
}

func unwrapOne(field Field) zap.Field {
	var resp zap.Field
	field(func(f zap.Field) {
		resp = f
	})

	return resp
}

// Err returns an error field, including the stack trace and fields of structured errors.
// Only needed for Debug, Info or Warn logs without an explicit error argument.
func Err(err error) Field {
	type structErr interface {
		Fields() []Field
		Stack() zap.Field
	}

	serr, ok := err.(structErr) //nolint:errorlint // See Fields.
	if !ok {
		return func(add func(zap.Field)) {
			add(zap.Error(err))
		}
	}

	return func(add func(zap.Field)) {
		add(zap.Error(err))
		add(serr.Stack())
		for _, field := range serr.Fields() {
			field(add)
		}
	}
}

// Str returns a string field.
func Str(key, val string) Field {
	return func(add func(zap.Field)) {
		add(zap.String(key, val))
	}
}

// Bool returns a boolean field.
func Bool(key string, val bool) Field {
	return func(add func(zap.Field)) {
		add(zap.Bool(key, val))
	}
}

// Int returns an int field.
func Int(key string, val int) Field {
	return func(add func(zap.Field)) {
		add(zap.Int(key, val))
	}
}

// I64 returns an int64 field.
func I64(key string, val int64) Field {
	return func(add func(zap.Field)) {
		add(zap.Int64(key, val))
	}
}

// Dur returns a duration field formatted as a string.
func Dur(key string, val time.Duration) Field {
	return func(add func(zap.Field)) {
		add(zap.String(key, val.String()))
	}
}

// Any returns a string field of fmt.Sprint(val); logfmt cannot encode arbitrary objects.
func Any(key string, val any) Field {
	return func(add func(zap.Field)) {
		add(zap.String(key, fmt.Sprint(val)))
	}
}

// Skip is a field that adds nothing.
var Skip Field = func(func(zap.Field)) {}
