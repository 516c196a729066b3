// Package logging builds the zerolog loggers used by the command line.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Format selects the log encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

const consoleTimeFormat = "15:04:05.000"

// New returns a logger writing to w at the named level ("debug", "info",
// ...) in the given format.
func New(w io.Writer, level string, format Format) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer
	switch Format(strings.ToLower(string(format))) {
	case FormatConsole, "":
		out = zerolog.NewConsoleWriter(func(cw *zerolog.ConsoleWriter) {
			cw.Out = w
			cw.TimeFormat = consoleTimeFormat
		})
	case FormatJSON:
		out = w
	default:
		return zerolog.Nop(), fmt.Errorf("log format: unknown format %q", format)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}
