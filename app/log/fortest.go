// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// stubTime removes the non-deterministic timestamp from test output.
func stubTime(config *zapcore.EncoderConfig) {
	config.EncodeTime = func(time.Time, zapcore.PrimitiveArrayEncoder) {}
}

// InitConsoleForT sets a colorless debug console logger writing to ws for testing.
func InitConsoleForT(t *testing.T, ws zapcore.WriteSyncer) {
	t.Helper()
	setLogger(newConsoleLogger(zapcore.DebugLevel, false, ws, stubTime))
}

// InitLogfmtForT sets a debug logfmt logger writing to ws for testing.
func InitLogfmtForT(t *testing.T, ws zapcore.WriteSyncer) {
	t.Helper()

	l, err := newStructuredLogger(FormatLogfmt, zapcore.DebugLevel, ws, stubTime)
	require.NoError(t, err)
	setLogger(l)
}
