// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package expbackoff implements jittered exponential backoff as described
// by https://github.com/grpc/grpc/blob/master/doc/connection-backoff.md.
package expbackoff

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// Config defines backoff behaviour.
type Config struct {
	// BaseDelay is the delay after the first failure.
	BaseDelay time.Duration
	// Multiplier grows the delay after each subsequent failure.
	Multiplier float64
	// Jitter randomizes delays by plus or minus this factor.
	Jitter float64
	// MaxDelay caps the delay before jitter.
	MaxDelay time.Duration
}

// DefaultConfig suits retrying kubernetes API calls like lease acquisition.
var DefaultConfig = Config{
	BaseDelay:  time.Second,
	Multiplier: 1.6,
	Jitter:     0.2,
	MaxDelay:   30 * time.Second,
}

// FastConfig suits tight loops against local resources.
var FastConfig = Config{
	BaseDelay:  100 * time.Millisecond,
	Multiplier: 1.6,
	Jitter:     0.2,
	MaxDelay:   5 * time.Second,
}

// WithConfig replaces the whole config.
func WithConfig(c Config) func(*Config) {
	return func(config *Config) {
		*config = c
	}
}

// WithBaseDelay overrides the base delay.
func WithBaseDelay(d time.Duration) func(*Config) {
	return func(config *Config) {
		config.BaseDelay = d
	}
}

// WithMaxDelay overrides the max delay.
func WithMaxDelay(d time.Duration) func(*Config) {
	return func(config *Config) {
		config.MaxDelay = d
	}
}

// New returns a function that sleeps exponentially longer on each call.
// It returns immediately once the context is done.
func New(ctx context.Context, opts ...func(*Config)) (backoff func()) {
	backoff, _ = NewWithReset(ctx, opts...)
	return backoff
}

// NewWithReset is like New but also returns a function that resets the delay to BaseDelay.
func NewWithReset(ctx context.Context, opts ...func(*Config)) (backoff func(), reset func()) {
	config := DefaultConfig
	for _, opt := range opts {
		opt(&config)
	}

	var retries int

	backoff = func() {
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
		case <-after(Delay(config, retries)):
		}

		retries++
	}

	reset = func() {
		retries = 0
	}

	return backoff, reset
}

// Retry calls fn up to attempts times, backing off between failures.
// It stops early if fn returns a non-retryable error or the context is done,
// and otherwise returns the last error annotated with the attempt count.
func Retry(ctx context.Context, attempts int, fn func(context.Context) error, retryable func(error) bool, opts ...func(*Config)) error {
	if attempts < 1 {
		return errors.New("non-positive attempts", z.Int("attempts", attempts))
	}

	backoff := New(ctx, opts...)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		} else if retryable != nil && !retryable(err) {
			return err
		} else if attempt == attempts {
			break
		}

		backoff()

		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "retry aborted", z.Int("attempt", attempt))
		}
	}

	return errors.Wrap(err, "attempts exhausted", z.Int("attempts", attempts))
}

// Delay returns the jittered delay before the next attempt after the given number of retries.
func Delay(config Config, retries int) time.Duration {
	if retries == 0 {
		return config.BaseDelay
	}

	delay := float64(config.BaseDelay)
	limit := float64(config.MaxDelay)

	for ; delay < limit && retries > 0; retries-- {
		delay *= config.Multiplier
	}

	delay = min(delay, limit)
	delay *= 1 + config.Jitter*(randFloat()*2-1)

	return time.Duration(max(delay, 0))
}

var (
	after     = time.After
	randFloat = rand.Float64
)

// SetAfterForT overrides the timer used by backoff for the duration of the test.
func SetAfterForT(t *testing.T, fn func(time.Duration) <-chan time.Time) {
	t.Helper()

	cached := after
	after = fn

	t.Cleanup(func() {
		after = cached
	})
}

// SetRandFloatForT overrides the jitter source for the duration of the test.
func SetRandFloatForT(t *testing.T, fn func() float64) {
	t.Helper()

	cached := randFloat
	randFloat = fn

	t.Cleanup(func() {
		randFloat = cached
	})
}
