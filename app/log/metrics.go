// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package log

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obolnetwork/ledgerctl/app/promauto"
)

var (
	errorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerctl",
		Subsystem: "log",
		Name:      "error_total",
		Help:      "Total count of logged errors by topic",
	}, []string{"topic"})

	warnCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerctl",
		Subsystem: "log",
		Name:      "warn_total",
		Help:      "Total count of logged warnings by topic",
	}, []string{"topic"})
)
