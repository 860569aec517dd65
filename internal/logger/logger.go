// Package logger provides the process-wide leveled logger used by the relay
// and the client SDK.
//
// The API is printf-style (Tracef, Debugf, ...) and backed by a zap sugared
// logger. TRACE has no zap counterpart; it is emitted at zap debug level with a
// "trace" field and gated by this package's own threshold.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int32

const (
	// LevelTrace enables per-event relay logs.
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// Format selects the zap encoder.
type Format string

const (
	// FormatConsole is the human readable development encoder.
	FormatConsole Format = "console"
	// FormatJSON is the production JSON encoder.
	FormatJSON Format = "json"
)

var (
	level  atomic.Int32
	mu     sync.RWMutex
	format = FormatConsole
	out    io.Writer = os.Stderr
	sugar  *zap.SugaredLogger
)

func init() {
	level.Store(int32(LevelInfo))
	rebuild()
}

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// ParseFormat parses an encoder name. Unknown values fall back to console.
func ParseFormat(raw string) Format {
	if strings.EqualFold(strings.TrimSpace(raw), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatConsole
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	level.Store(int32(l))
	rebuild()
}

// SetFormat switches between console and JSON output.
func SetFormat(f Format) {
	mu.Lock()
	format = f
	mu.Unlock()
	rebuild()
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	out = w
	mu.Unlock()
	rebuild()
}

// Enabled reports whether a level would be emitted by the current
// configuration.
func Enabled(l Level) bool {
	return l >= Level(level.Load())
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	_ = s.Sync()
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if format == FormatJSON {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(
		enc,
		zapcore.AddSync(out),
		zap.NewAtomicLevelAt(zapLevel(Level(level.Load()))),
	)
	sugar = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)).Sugar()
}

func logf(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	mu.RLock()
	s := sugar
	mu.RUnlock()

	switch l {
	case LevelTrace:
		s.With("trace", true).Debugf(format, args...)
	case LevelDebug:
		s.Debugf(format, args...)
	case LevelInfo:
		s.Infof(format, args...)
	case LevelWarn:
		s.Warnf(format, args...)
	default:
		s.Errorf(format, args...)
	}
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }
