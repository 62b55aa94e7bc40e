// Package logging builds the process logger: human-readable text on the
// console, fanned out to a JSON log file when one is configured.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/afero"
)

// LevelTrace is below debug and logs every record.
const LevelTrace = slog.Level(-8)

// Options configures New.
type Options struct {
	// Level is one of trace, debug, info, warn or error. Empty means info.
	Level string
	// Console receives text records. Defaults to os.Stderr.
	Console io.Writer
	// File, when set, receives JSON records. It is opened for append.
	File string
	// Fs is the filesystem File is opened on. Defaults to the OS filesystem.
	Fs afero.Fs
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns the logger and a closer for the log file, if any.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}
	textHandler := slog.NewTextHandler(console, handlerOpts)

	if opts.File == "" {
		return slog.New(textHandler), io.NopCloser(nil), nil
	}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(f, handlerOpts)
	return slog.New(slogmulti.Fanout(textHandler, fileHandler)), f, nil
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
