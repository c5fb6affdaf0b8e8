// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package log

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// WarnCounterForT returns the warn counter of the topic.
func WarnCounterForT(t *testing.T, topic string) prometheus.Counter {
	t.Helper()
	return warnCounter.WithLabelValues(topic)
}
