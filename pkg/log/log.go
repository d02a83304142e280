// Package log configures the process-wide slog logger shared by the petflow binaries.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type options struct {
	format string
	writer io.Writer
}

type Option func(*options)

// WithFormat selects the handler: "json" for JSON lines, anything else for logfmt-style text.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs the default logger. Output goes to stderr unless WithWriter is given.
func Setup(logLevel string, opts ...Option) {
	o := options{format: FormatText, writer: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOptions := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	var handler slog.Handler
	if strings.EqualFold(o.format, FormatJSON) {
		handler = slog.NewJSONHandler(o.writer, handlerOptions)
	} else {
		handler = slog.NewTextHandler(o.writer, handlerOptions)
	}

	slog.SetDefault(slog.New(handler))
}

// WithModule returns the default logger tagged with the emitting module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
