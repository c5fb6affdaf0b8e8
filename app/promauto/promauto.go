// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

// Package promauto is a drop-in replacement of github.com/prometheus/client_golang/prometheus/promauto
// that also collects all created metrics so a command can export them with runtime labels on exit.
package promauto

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

// Using globals since promauto is designed for use at package initialisation time.
var (
	mu      sync.Mutex
	metrics []prometheus.Collector
)

// NewRegistry returns a new registry containing all promauto created metrics
// wrapped with the provided labels.
func NewRegistry(labels prometheus.Labels) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registerer := prometheus.WrapRegistererWith(labels, registry)

	mu.Lock()
	defer mu.Unlock()
	registerer.MustRegister(metrics...)

	return registry
}

// WriteTextfile writes all promauto created metrics wrapped with the labels to path
// in the text exposition format, as read by the node exporter textfile collector.
func WriteTextfile(path string, labels prometheus.Labels) error {
	if err := prometheus.WriteToTextfile(path, NewRegistry(labels)); err != nil {
		return errors.Wrap(err, "write metrics textfile", z.Str("path", path))
	}

	return nil
}

// cacheMetric adds the metric to the local global cache.
func cacheMetric(metric prometheus.Collector) {
	mu.Lock()
	defer mu.Unlock()

	metrics = append(metrics, metric)
}

func NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	c := promauto.NewCounterVec(opts, labelNames)
	cacheMetric(c)

	return c
}

func NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := promauto.NewCounter(opts)
	cacheMetric(c)

	return c
}
