package logging

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

var ErrInvalidLogFormat = errors.New("invalid log format, must be one of 'console' or 'json'")

// CreateLogger returns a logger writing to the given writers, or stderr if
// none are provided.
func CreateLogger(level zerolog.Level, format string, writers ...io.Writer) (zerolog.Logger, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	var out io.Writer = os.Stderr
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	switch format {
	case "json":
	case "console":
		out = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = out
			w.TimeFormat = time.RFC3339
		})
	default:
		return zerolog.Logger{}, ErrInvalidLogFormat
	}

	return zerolog.New(out).Level(level).With().Timestamp().Caller().Logger(), nil
}
