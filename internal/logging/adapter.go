package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// LoggerAdapter exposes a zerolog logger through the printf-style interface
// badger expects.
type LoggerAdapter struct{ log zerolog.Logger }

func NewLoggerAdapter(log *zerolog.Logger, component string) *LoggerAdapter {
	return &LoggerAdapter{log.With().Str("component", component).Logger()}
}

// badger terminates most of its messages with a newline.
func (l *LoggerAdapter) logf(event *zerolog.Event, format string, args []any) {
	event.Msgf(strings.TrimSpace(format), args...)
}

func (l *LoggerAdapter) Debugf(format string, args ...any) {
	l.logf(l.log.Debug(), format, args)
}

func (l *LoggerAdapter) Infof(format string, args ...any) {
	l.logf(l.log.Info(), format, args)
}

func (l *LoggerAdapter) Warningf(format string, args ...any) {
	l.logf(l.log.Warn(), format, args)
}

func (l *LoggerAdapter) Errorf(format string, args ...any) {
	l.logf(l.log.Error(), format, args)
}
