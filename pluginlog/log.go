// Package pluginlog wraps kratos structured logging for the resolver and
// lifecycle driver. Unlike the ambient package-level logger it is modeled
// on, every component that needs to log takes a *Logger explicitly so the
// core never reaches for process-wide state.
package pluginlog

import (
	"context"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/rs/zerolog"
)

// Level mirrors zerolog's level enum so callers never import zerolog
// directly just to set a log level.
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// SetLevel sets zerolog's process-wide global level. Loggers built by New
// do not consult that level; their only level filtering is whatever the
// base logger passed to New applies.
func SetLevel(l Level) {
	switch l {
	case DebugLevel:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case InfoLevel:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case WarnLevel:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case ErrorLevel:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Logger is a leveled, component-tagged logging handle.
type Logger struct {
	helper *log.Helper
}

// New builds a Logger over base, tagging every line with the given
// component name. A nil base falls back to a stdout logger so callers
// never need a nil check before logging.
func New(base log.Logger, component string) *Logger {
	if base == nil {
		base = log.NewStdLogger(os.Stdout)
	}
	withFields := log.With(base,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"component", component,
	)
	return &Logger{helper: log.NewHelper(withFields)}
}

func (l *Logger) Debugf(format string, a ...any) { l.helper.Debugf(format, a...) }
func (l *Logger) Infof(format string, a ...any)  { l.helper.Infof(format, a...) }
func (l *Logger) Warnf(format string, a ...any)  { l.helper.Warnf(format, a...) }
func (l *Logger) Errorf(format string, a ...any) { l.helper.Errorf(format, a...) }

// WithContext attaches a correlation id or other request-scoped fields
// carried on ctx to the next log line.
func (l *Logger) WithContext(ctx context.Context) *log.Helper {
	return l.helper.WithContext(ctx)
}

// Noop returns a Logger that discards everything, for tests and for
// callers that have no logging sink configured.
func Noop() *Logger {
	return New(log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelFatal)), "noop")
}
