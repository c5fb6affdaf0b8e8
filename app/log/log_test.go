// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package log_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/log"
	"github.com/obolnetwork/ledgerctl/app/z"
)

func TestWithCtx(t *testing.T) {
	var buf zaptest.Buffer
	log.InitLogfmtForT(t, &buf)

	ctx1 := log.WithCtx(context.Background(), z.Str("namespace", "solo-e2e"))
	ctx2a := log.WithCtx(ctx1, z.Str("cluster", "a"))
	ctx2b := log.WithCtx(ctx2a, z.Str("cluster", "b"))

	log.Info(ctx1, "first")
	log.Debug(ctx2b, "second")
	log.Info(ctx2b, "third", z.Str("cluster", "c"))

	lines := buf.Lines()
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "namespace=solo-e2e")
	require.NotContains(t, lines[0], "cluster=")
	require.Contains(t, lines[1], "cluster=b")
	require.Contains(t, lines[2], "cluster=c") // Call fields win over context fields.
	require.NotContains(t, lines[2], "cluster=b")
}

func TestErrorFields(t *testing.T) {
	var buf zaptest.Buffer
	log.InitLogfmtForT(t, &buf)

	err := errors.New("lease held", z.Str("holder", "alice"))
	log.Error(context.Background(), "acquire", errors.Wrap(err, "lock", z.Int("attempts", 3)))
	log.Warn(context.Background(), "plain", io.EOF)

	lines := buf.Lines()
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "acquire: lock: lease held")
	require.Contains(t, lines[0], "holder=alice")
	require.Contains(t, lines[0], "attempts=3")
	require.Contains(t, lines[0], "stacktrace=")
	require.Contains(t, lines[1], "plain: EOF")
}

func TestTopicCounters(t *testing.T) {
	var buf zaptest.Buffer
	log.InitConsoleForT(t, &buf)

	ctx := log.WithTopic(context.Background(), "counter-test")
	log.Warn(ctx, "one", nil)
	log.Error(ctx, "two", errors.New("boom"))

	out := buf.String()
	require.Contains(t, out, "counter-test")
	require.Contains(t, out, "WARN")
	require.Contains(t, out, "ERRO")
	require.Equal(t, 1, strings.Count(out, "two: boom"))

	require.InDelta(t, 1, testutil.ToFloat64(log.WarnCounterForT(t, "counter-test")), 0)
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		opts   []log.FilterOption
		expect int
	}{
		{name: "default allows first", expect: 1},
		{name: "zero limit drops all", opts: []log.FilterOption{log.WithFilterRateLimit(0)}, expect: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf zaptest.Buffer
			log.InitConsoleForT(t, &buf)

			filter := log.Filter(test.opts...)
			for range 3 {
				log.Info(context.Background(), "filtered", filter)
			}

			require.Len(t, buf.Lines(), test.expect)
		})
	}
}

func TestConfig(t *testing.T) {
	config := log.DefaultConfig()
	require.Equal(t, log.FormatConsole, config.Format)

	_, err := log.Config{Level: "loud"}.ZapLevel()
	require.Error(t, err)

	_, err = log.Config{Color: "rainbow"}.InferColor()
	require.Error(t, err)

	color, err := log.Config{Color: log.ColorForce}.InferColor()
	require.NoError(t, err)
	require.True(t, color)

	err = log.InitLogger(log.Config{Level: "info", Format: "xml"})
	require.Error(t, err)
}

func TestLogOutputPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledgerctl.log")

	config := log.DefaultConfig()
	config.Color = log.ColorDisable
	config.LogOutputPath = path
	require.NoError(t, log.InitLogger(config))
	t.Cleanup(func() {
		require.NoError(t, log.InitLogger(log.DefaultConfig()))
	})

	log.Info(context.Background(), "Remote config saved", z.Str("deployment", "dep"))
	log.Debug(context.Background(), "Below level")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `msg="Remote config saved"`)
	require.Contains(t, string(b), "deployment=dep")
	require.NotContains(t, string(b), "Below level")
}
