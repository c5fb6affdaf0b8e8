// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package tracer_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obolnetwork/ledgerctl/app/tracer"
)

func TestNoopByDefault(t *testing.T) {
	stop, err := tracer.Init(context.Background())
	require.NoError(t, err)
	require.NoError(t, stop(context.Background()))

	_, span := tracer.Start(context.Background(), "noop")
	span.End()
	require.False(t, span.SpanContext().IsValid())
}

func TestStdOut(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	stop, err := tracer.Init(ctx, tracer.WithStdOut(&buf))
	require.NoError(t, err)

	ctx, span := tracer.Start(ctx, "remoteconfig/Load")
	_, child := tracer.Start(ctx, "remoteconfig/read")
	child.End()
	span.End()

	require.NoError(t, stop(ctx))

	dec := json.NewDecoder(&buf)

	var m map[string]any
	require.NoError(t, dec.Decode(&m))
	require.Equal(t, "remoteconfig/read", m["Name"])
	require.NoError(t, dec.Decode(&m))
	require.Equal(t, "remoteconfig/Load", m["Name"])
}
