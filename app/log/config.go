// Copyright © 2022-2026 Obol Labs Inc. Licensed under the terms of a Business Source License 1.1

package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/obolnetwork/ledgerctl/app/errors"
	"github.com/obolnetwork/ledgerctl/app/z"
)

const (
	padLength = 40
	topicLen  = 12
	keyStack  = "stacktrace"
	keyTopic  = "topic"

	// stackSep marks source lines of this module in zap stack traces.
	stackSep = "ledgerctl/"
)

const (
	FormatConsole = "console"
	FormatLogfmt  = "logfmt"
	FormatJSON    = "json"

	ColorDisable = "disable"
	ColorForce   = "force"
	ColorAuto    = "auto"
)

// zapLogger is the subset of *zap.Logger used by this package.
type zapLogger interface {
	Debug(string, ...zap.Field)
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
}

var (
	mu     sync.RWMutex
	logger zapLogger = newConsoleLogger(zapcore.InfoLevel, false, zapcore.Lock(os.Stderr))
)

func getLogger() zapLogger {
	mu.RLock()
	defer mu.RUnlock()

	return logger
}

func setLogger(l zapLogger) {
	mu.Lock()
	defer mu.Unlock()

	logger = l
}

// Config defines the logging configuration.
type Config struct {
	Level         string // debug, info, warn or error
	Format        string // console, logfmt or json
	Color         string // disable, force or auto
	LogOutputPath string // optional file additionally receiving logfmt lines
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  zapcore.InfoLevel.String(),
		Format: FormatConsole,
		Color:  ColorAuto,
	}
}

// ZapLevel returns the parsed zap level.
func (c Config) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return 0, errors.Wrap(err, "parse log level")
	}

	return level, nil
}

// InferColor returns true if colored output should be used.
func (c Config) InferColor() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.Color)) {
	case ColorDisable:
		return false, nil
	case ColorForce:
		return true, nil
	case ColorAuto, "":
		return term.IsTerminal(int(os.Stderr.Fd())), nil
	default:
		return false, errors.New("invalid log color", z.Str("color", c.Color))
	}
}

// InitLogger replaces the global logger with one built from the config, writing to stderr
// and, if configured, also to a size-rotated logfmt file.
func InitLogger(config Config) error {
	l, err := newLogger(config, zapcore.Lock(os.Stderr))
	if err != nil {
		return err
	}

	if config.LogOutputPath == "" {
		setLogger(l)
		return nil
	}

	level, err := config.ZapLevel()
	if err != nil {
		return err
	}

	fileLogger, err := newStructuredLogger(FormatLogfmt, level, zapcore.AddSync(&lumberjack.Logger{
		Filename:   config.LogOutputPath,
		MaxSize:    maxLogFileMB,
		MaxBackups: maxLogFileBackups,
		Compress:   true,
	}))
	if err != nil {
		return err
	}

	setLogger(teeLogger{l, fileLogger.WithOptions(zap.AddCallerSkip(1))})

	return nil
}

const (
	maxLogFileMB      = 100
	maxLogFileBackups = 3
)

// teeLogger writes every line to both loggers.
type teeLogger [2]zapLogger

func (t teeLogger) Debug(msg string, fields ...zap.Field) {
	t[0].Debug(msg, fields...)
	t[1].Debug(msg, fields...)
}

func (t teeLogger) Info(msg string, fields ...zap.Field) {
	t[0].Info(msg, fields...)
	t[1].Info(msg, fields...)
}

func (t teeLogger) Warn(msg string, fields ...zap.Field) {
	t[0].Warn(msg, fields...)
	t[1].Warn(msg, fields...)
}

func (t teeLogger) Error(msg string, fields ...zap.Field) {
	t[0].Error(msg, fields...)
	t[1].Error(msg, fields...)
}

func newLogger(config Config, ws zapcore.WriteSyncer) (zapLogger, error) {
	level, err := config.ZapLevel()
	if err != nil {
		return nil, err
	}

	color, err := config.InferColor()
	if err != nil {
		return nil, err
	}

	if config.Format == FormatConsole || config.Format == "" {
		return newConsoleLogger(level, color, ws), nil
	}

	return newStructuredLogger(config.Format, level, ws)
}

func newStructuredLogger(format string, level zapcore.Level, ws zapcore.WriteSyncer, opts ...func(*zapcore.EncoderConfig)) (*zap.Logger, error) {
	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	for _, opt := range opts {
		opt(&encConfig)
	}

	var encoder zapcore.Encoder
	switch format {
	case FormatLogfmt:
		encoder = zaplogfmt.NewEncoder(encConfig)
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(encConfig)
	default:
		return nil, errors.New("invalid log format", z.Str("format", format))
	}

	return zap.New(
		zapcore.NewCore(stackEncoder{Encoder: encoder}, ws, zap.NewAtomicLevelAt(level)),
		zap.WithCaller(true),
		zap.AddCallerSkip(3),
	), nil
}

func newConsoleLogger(level zapcore.Level, color bool, ws zapcore.WriteSyncer, opts ...func(*zapcore.EncoderConfig)) *zap.Logger {
	encConfig := zap.NewDevelopmentEncoderConfig()
	encConfig.ConsoleSeparator = " "
	encConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	encConfig.EncodeLevel = shortLevelEncoder(color)

	for _, opt := range opts {
		opt(&encConfig)
	}

	encoder := consoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(encConfig),
		color:   color,
	}

	return zap.New(zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level)))
}

// stackEncoder shortens stacktrace fields of structured log lines.
type stackEncoder struct {
	zapcore.Encoder
}

func (e stackEncoder) EncodeEntry(ent zapcore.Entry, fields []zap.Field) (*buffer.Buffer, error) {
	for i, f := range fields {
		if f.Key == keyStack {
			fields[i].String = formatStack(f.String)
			ent.Stack = ""
		}
	}

	return e.Encoder.EncodeEntry(ent, fields)
}

// consoleEncoder renders the topic as the logger name, moves stack traces
// below the line and pads messages so fields align.
type consoleEncoder struct {
	zapcore.Encoder
	color bool
}

func (e consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zap.Field) (*buffer.Buffer, error) {
	kept := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch f.Key {
		case keyStack:
			ent.Stack = formatStack(f.String)
		case keyTopic:
			ent.LoggerName = f.String
		default:
			kept = append(kept, f)
		}
	}

	ent.LoggerName = fmt.Sprintf("%-*s", topicLen, ent.LoggerName)
	if e.color {
		ent.LoggerName = "\x1b[36m" + ent.LoggerName + "\x1b[0m"
	}

	ent.Caller.Defined = false
	ent.Message = fmt.Sprintf("%-*s", padLength, ent.Message)

	return e.Encoder.EncodeEntry(ent, kept)
}

// formatStack keeps only frames from this module, one "file:line .Func" per line.
func formatStack(stack string) string {
	var (
		resp []string
		fn   string
	)

	for _, line := range strings.Split(stack, "\n") {
		if !strings.HasPrefix(line, "\t") {
			if i := strings.LastIndex(line, "."); i > 0 {
				fn = line[i:]
			}

			continue
		}

		i := strings.LastIndex(line, stackSep)
		if i < 0 {
			continue
		}

		resp = append(resp, "\t"+line[i+len(stackSep):]+" "+fn)
	}

	return strings.Join(resp, "\n")
}

var shortLevels = map[zapcore.Level]string{
	zapcore.DebugLevel: "DEBG",
	zapcore.InfoLevel:  "INFO",
	zapcore.WarnLevel:  "WARN",
	zapcore.ErrorLevel: "ERRO",
}

// shortLevelEncoder encodes levels as four characters, optionally colored.
func shortLevelEncoder(color bool) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		short, ok := shortLevels[l]
		if !ok {
			short = l.CapitalString()
		}

		if !color {
			enc.AppendString(short)
			return
		}

		enc.AppendString(levelColor(l) + short + "\x1b[0m")
	}
}

func levelColor(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "\x1b[35m"
	case zapcore.InfoLevel:
		return "\x1b[34m"
	case zapcore.WarnLevel:
		return "\x1b[33m"
	default:
		return "\x1b[31m"
	}
}
