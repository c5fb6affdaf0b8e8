// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package lease

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/expbackoff"
	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/promauto"
	"github.com/obolnetwork/ledgerctl/app/tracer"
	"github.com/obolnetwork/ledgerctl/app/z"
)

var (
	acquireCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerctl",
		Subsystem: "lease",
		Name:      "acquire_total",
		Help:      "Total number of lease acquisitions by result",
	}, []string{"result"})

	renewErrCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledgerctl",
		Subsystem: "lease",
		Name:      "renew_errors_total",
		Help:      "Total number of failed lease renewals",
	})
)

// Acquire creates the lease, retrying conflicts with exponential backoff for up to attempts
// calls. Once exhausted it fails with "deployment is locked by <holder>" wrapping ErrConflict.
func (l *Lease) Acquire(ctx context.Context, attempts int, opts ...func(*expbackoff.Config)) error {
	ctx, span := tracer.Start(ctx, "lease/Acquire")
	defer span.End()

	ctx = log.WithCtx(ctx, z.Str("lease", l.name), z.Str("namespace", l.namespace))

	err := expbackoff.Retry(ctx, attempts, func(ctx context.Context) error {
		err := l.Create(ctx)
		if errors.Is(err, ErrConflict) {
			log.Debug(ctx, "Lease held by another holder, retrying", z.Err(err))
		}

		return err
	}, func(err error) bool {
		return errors.Is(err, ErrConflict)
	}, opts...)
	if err == nil {
		acquireCounter.WithLabelValues("ok").Inc()
		log.Debug(ctx, "Lease acquired", z.Str("holder", l.holder))

		return nil
	} else if !errors.Is(err, ErrConflict) {
		acquireCounter.WithLabelValues("error").Inc()
		return err
	}

	acquireCounter.WithLabelValues("locked").Inc()

	holder := "unknown"
	if status, readErr := l.Read(ctx); readErr == nil {
		holder = status.Holder
	}

	return errors.Wrap(err, "deployment is locked by "+holder, z.Str("holder", holder))
}

// Run renews the lease every half duration until the context is cancelled.
// Transient renewal errors are logged; it returns an error once the lease is lost.
func (l *Lease) Run(ctx context.Context) error {
	ctx = log.WithTopic(ctx, "lease")

	ticker := l.clock.NewTicker(l.duration / 2)
	defer ticker.Stop()

	filter := log.Filter()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			err := l.Renew(ctx)
			if errors.Is(err, ErrNotHeld) || errors.Is(err, ErrExpired) || errors.Is(err, ErrNotFound) {
				renewErrCounter.Inc()
				return errors.Wrap(err, "lease lost")
			} else if err != nil {
				if ctx.Err() != nil {
					return nil //nolint:nilerr // Cancelled mid renewal.
				}

				renewErrCounter.Inc()
				log.Warn(ctx, "Lease renewal failed, retrying next period", err, filter)
			}
		}
	}
}

// Hold acquires the lease, keeps renewing it while fn runs and releases it afterwards.
// The context passed to fn is cancelled if the lease is lost.
func (l *Lease) Hold(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if err := l.Acquire(ctx, attempts); err != nil {
		return err
	}

	defer func() {
		// Release even if ctx is cancelled.
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn(ctx, "Lease release failed, it expires after its duration", err,
				z.Dur("duration", l.duration))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		return l.Run(egCtx)
	})
	eg.Go(func() error {
		defer cancel()
		return fn(egCtx)
	})

	return eg.Wait()
}
