// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package log

import (
	"math"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/obolnetwork/ledgerctl/app/z"
)

// filterFieldType marks a zap field that drops the whole log line.
var filterFieldType = zapcore.FieldType(math.MaxUint8)

type FilterOption func(*rate.Limit)

// WithFilterRateLimit overrides the default limit of one log per minute.
func WithFilterRateLimit(limit rate.Limit) FilterOption {
	return func(l *rate.Limit) {
		*l = limit
	}
}

// Filter returns a stateful field that drops log lines exceeding its rate limit.
// Use a single filter per call site, typically in retry loops:
//
//	filter := log.Filter()
//	for attempt := range attempts {
//	  if err := renew(ctx); err != nil {
//	    log.Warn(ctx, "Lease renewal failed", err, filter)
//	  }
//	}
func Filter(opts ...FilterOption) z.Field {
	limit := rate.Every(time.Minute)
	for _, opt := range opts {
		opt(&limit)
	}

	limiter := rate.NewLimiter(limit, 1)

	return func(add func(zap.Field)) {
		if !limiter.Allow() {
			add(zap.Field{Type: filterFieldType})
		}
	}
}
