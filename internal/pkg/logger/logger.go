package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// StdLogger routes diagnostics to stderr through zerolog. It is silent unless verbose.
type StdLogger struct {
	log zerolog.Logger
}

// NewStd creates a StdLogger writing a console format to stderr.
func NewStd(verbose bool) *StdLogger {
	return New(os.Stderr, verbose)
}

// New creates a StdLogger writing to out.
func New(out io.Writer, verbose bool) *StdLogger {
	level := zerolog.Disabled
	if verbose {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	return &StdLogger{log: zerolog.New(console).Level(level).With().Timestamp().Logger()}
}

func (l *StdLogger) Debug(msg string, fields map[string]interface{}) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *StdLogger) Info(msg string, fields map[string]interface{}) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *StdLogger) Warn(msg string, fields map[string]interface{}) {
	l.log.Warn().Fields(fields).Msg(msg)
}

func (l *StdLogger) Error(msg string, err error, fields map[string]interface{}) {
	l.log.Error().Err(err).Fields(fields).Msg(msg)
}
