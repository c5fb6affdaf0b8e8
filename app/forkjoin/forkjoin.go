// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package forkjoin runs work concurrently (fork) and collects the results (join).
package forkjoin

import (
	"context"
	"sync"

	"github.com/obolnetwork/ledgerctl/app/errors"
)

// Fork enqueues an input. It blocks while the input buffer is full and panics after Join.
type Fork[I any] func(I)

// Join closes the input queue and returns the results channel. Call it once.
type Join[I, O any] func() Results[I, O]

// Work is called by workers for each forked input.
type Work[I, O any] func(ctx context.Context, input I) (O, error)

// Results is closed once every forked input produced a result.
type Results[I, O any] <-chan Result[I, O]

// Result pairs an input with its output and error.
type Result[I, O any] struct {
	Input  I
	Output O
	Err    error
}

// Flatten blocks until all results are available and returns the outputs and
// the first error that is not a cancellation triggered by failing fast.
func (r Results[I, O]) Flatten() ([]O, error) {
	var (
		outputs  []O
		firstErr error
		ctxErr   error
	)

	for res := range r {
		outputs = append(outputs, res.Output)

		switch {
		case res.Err == nil:
		case errors.Is(res.Err, context.Canceled):
			if ctxErr == nil {
				ctxErr = res.Err
			}
		case firstErr == nil:
			firstErr = res.Err
		}
	}

	if firstErr != nil {
		return outputs, firstErr
	}

	return outputs, ctxErr
}

// Collect blocks until all results are available and returns them with all
// errors joined. Use it with WithoutFailFast to report every failure.
func (r Results[I, O]) Collect() ([]Result[I, O], error) {
	var (
		results []Result[I, O]
		errs    []error
	)

	for res := range r {
		results = append(results, res)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}

	return results, errors.Join(errs...)
}

type options struct {
	workers  int
	inputBuf int
	failFast bool
}

type Option func(*options)

// WithWorkers overrides the default of 8 workers.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithInputBuffer overrides the default input buffer of 100.
func WithInputBuffer(n int) Option {
	return func(o *options) {
		o.inputBuf = n
	}
}

// WithoutFailFast keeps processing all inputs after an error.
func WithoutFailFast() Option {
	return func(o *options) {
		o.failFast = false
	}
}

// New returns fork, join and cancel functions.
//
// By default the first error cancels the work context; inputs not yet started
// then result in context cancelled errors. Work already completed is not undone.
//
//	fork, join, cancel := forkjoin.New(ctx, writeCluster)
//	defer cancel()
//
//	for _, kubeCtx := range contexts {
//	  fork(kubeCtx)
//	}
//
//	_, err := join().Flatten()
func New[I, O any](ctx context.Context, work Work[I, O], opts ...Option) (Fork[I], Join[I, O], context.CancelFunc) {
	o := options{
		workers:  8,
		inputBuf: 100,
		failFast: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		pending sync.WaitGroup
		inputs  = make(chan I, o.inputBuf)
		results = make(chan Result[I, O])
		drop    = make(chan struct{})
	)

	workCtx, cancelWork := context.WithCancel(ctx)

	// emit sends asynchronously since results is unbuffered.
	emit := func(res Result[I, O]) {
		go func() {
			defer pending.Done()
			select {
			case results <- res:
			case <-drop:
			}
		}()
	}

	for range o.workers {
		go func() {
			for in := range inputs {
				if err := workCtx.Err(); err != nil {
					var zero O
					emit(Result[I, O]{Input: in, Output: zero, Err: err})

					continue
				}

				out, err := work(workCtx, in)
				if err != nil && o.failFast {
					cancelWork()
				}

				emit(Result[I, O]{Input: in, Output: out, Err: err})
			}
		}()
	}

	fork := func(in I) {
		pending.Add(1)

		select {
		case inputs <- in:
		case <-ctx.Done():
			pending.Done()
		}
	}

	join := func() Results[I, O] {
		close(inputs)

		go func() {
			pending.Wait()
			close(results)
		}()

		return results
	}

	cancel := func() {
		close(drop)
		cancelWork()
	}

	return fork, join, cancel
}

// NewWithInputs forks all inputs and returns the joined results.
func NewWithInputs[I, O any](ctx context.Context, work Work[I, O], inputs []I, opts ...Option) (Results[I, O], context.CancelFunc) {
	fork, join, cancel := New(ctx, work, opts...)
	for _, in := range inputs {
		fork(in)
	}

	return join(), cancel
}
