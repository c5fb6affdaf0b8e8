// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package errors provides errors carrying structured logging fields and a stack trace.
// Use it instead of the stdlib errors package everywhere in ledgerctl.
package errors

import (
	stderrors "errors" //nolint:revive // Allow import of stdlib errors package.
	"fmt"

	"go.uber.org/zap"

	"github.com/obolnetwork/ledgerctl/app/z"
)

const stackKey = "stacktrace"

// New returns an error with the given message, structured fields and a stack trace.
func New(msg string, fields ...z.Field) error {
	return structured{
		err:    stderrors.New(msg),
		fields: fields,
		stack:  zap.StackSkip(stackKey, 1),
	}
}

// NewSentinel returns an error without a stack trace, intended for package level
// sentinel variables. Always wrap a sentinel where it is first returned so the
// stack points at the caller and not at package initialisation:
//
//	var ErrNotFound = errors.NewSentinel("remote config not found")
//
//	func read() error {
//	  return errors.Wrap(ErrNotFound, "read config map", z.Str("namespace", ns))
//	}
func NewSentinel(msg string, fields ...z.Field) error {
	return structured{
		err:    stderrors.New(msg),
		fields: fields,
	}
}

// Wrap returns err prefixed with msg. Fields of err are retained and its stack trace
// is reused, otherwise a new stack trace is captured.
func Wrap(err error, msg string, fields ...z.Field) error {
	return SkipWrap(err, msg, 2, fields...)
}

// SkipWrap is Wrap with a configurable number of skipped stack frames.
func SkipWrap(err error, msg string, skip int, fields ...z.Field) error {
	var (
		stack zap.Field
		inner structured
	)
	if As(err, &inner) {
		fields = append(fields, inner.fields...)
		stack = inner.stack
	}

	if stack.Key == "" {
		stack = zap.StackSkip(stackKey, skip)
	}

	return structured{
		err:    fmt.Errorf("%s: %w", msg, err), //nolint:forbidigo // Wrap error message using stdlib.
		fields: fields,
		stack:  stack,
	}
}

// Is is an alias of the stdlib errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is an alias of the stdlib errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join is an alias of the stdlib errors.Join.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// structured is an error with zap fields and a zap stack trace.
// It is not comparable since it contains a slice, so errors.Is relies on its Is method.
type structured struct {
	err    error
	fields []z.Field
	stack  zap.Field
}

func (s structured) Error() string {
	return s.err.Error()
}

// Fields returns the structured logging fields of the error.
func (s structured) Fields() []z.Field {
	return s.fields
}

// Stack returns the captured stack trace field.
func (s structured) Stack() zap.Field {
	return s.stack
}

func (s structured) Unwrap() error {
	return s.err
}

// Is returns true if err is a structured error wrapping the same underlying error.
func (s structured) Is(err error) bool {
	var other structured
	if !stderrors.As(err, &other) {
		return false
	}

	return stderrors.Is(s.err, other.err)
}
