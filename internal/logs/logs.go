// Package logs is the process-wide leveled logger.
//
// Call sites use printf-style helpers (Infof, Warnf, Errf, ...) with the
// "pkg.Type.Func key=value" message convention; output is rendered by zerolog.
package logs

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Level aliases zerolog levels so callers do not import zerolog directly.
type Level = zerolog.Level

const (
	TraceLevel = zerolog.TraceLevel
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	Disabled   = zerolog.Disabled
)

// Config controls rendering of every log line.
type Config struct {
	Level     Level
	Timestamp bool
	NoColor   bool
	// Bypass writes plain lines without the console formatter.
	Bypass bool
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:     InfoLevel,
		Timestamp: true,
		NoColor:   !isatty.IsTerminal(os.Stderr.Fd()),
		Output:    os.Stderr,
	}
}

var (
	mu      sync.RWMutex
	current = DefaultConfig()
	logger  = build(current)
)

// Configure replaces the process logger.
func Configure(cfg Config) {
	l := build(cfg)
	mu.Lock()
	current = cfg
	logger = l
	mu.Unlock()
}

// Current returns the config last passed to Configure.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Logger returns the underlying zerolog logger for structured call sites.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.Bypass {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
			PartsExclude: func() []string {
				if cfg.Timestamp {
					return nil
				}
				return []string{zerolog.TimestampFieldName}
			}(),
		}
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func Tracef(format string, args ...any) { emit(TraceLevel, format, args...) }
func Debugf(format string, args ...any) { emit(DebugLevel, format, args...) }
func Infof(format string, args ...any)  { emit(InfoLevel, format, args...) }
func Warnf(format string, args ...any)  { emit(WarnLevel, format, args...) }
func Errf(format string, args ...any)   { emit(ErrorLevel, format, args...) }

// Logf always prints, regardless of level. Used by tests and CLIs for narration.
func Logf(format string, args ...any) {
	l := Logger()
	l.Log().Msg(fmt.Sprintf(format, args...))
}

func emit(level Level, format string, args ...any) {
	l := Logger()
	if ev := l.WithLevel(level); ev != nil {
		ev.Msg(fmt.Sprintf(format, args...))
	}
}
