package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process root logger. Components derive sub-loggers with
// .With().Str("component", ...).
func New(level, format string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	lg := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(logLevel)
	if format == "console" {
		lg = lg.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return lg
}
