// Package logger wraps zerolog behind the terse, printf-style call shape
// used throughout this codebase: Infof/Warnf/Errorf/Debugf.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	base = newLogger(os.Getenv("ALPHAFUNNEL_LOG_FORMAT"))
}

func newLogger(format string) zerolog.Logger {
	var w io.Writer = os.Stdout
	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("ALPHAFUNNEL_LOG_LEVEL")); err == nil {
		level = lv
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Logger is a named child logger, mirroring zerolog's component pattern.
type Logger struct {
	z zerolog.Logger
}

// Named returns a Logger tagged with a "component" field, e.g. the worker
// pool or the pool manager.
func Named(component string) *Logger {
	return &Logger{z: base.With().Str("component", component).Logger()}
}

func (l *Logger) Infof(format string, args ...any)  { l.z.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.z.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.z.Error().Msgf(format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.z.Debug().Msgf(format, args...) }

// Infof/Warnf/Errorf/Debugf on the package default logger, for call sites
// that don't carry a component name.
func Infof(format string, args ...any)  { base.Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { base.Warn().Msgf(format, args...) }
func Errorf(format string, args ...any) { base.Error().Msgf(format, args...) }
func Debugf(format string, args ...any) { base.Debug().Msgf(format, args...) }
