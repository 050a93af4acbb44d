// Package logging configures the process-wide slog.Logger from the
// log-destination / log-level configuration keys. Grounded on the
// teacher's util.InitSlog, which parses LOG_LEVEL into a slog.HandlerOptions
// and installs a text handler; this generalizes the destination to also
// accept a file path, since pgcompare's config carries log-destination
// explicitly rather than reading an environment variable.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init builds and installs the default slog.Logger for the process.
// destination is "stdout", "stderr", or a file path; level is one of
// debug/info/warn/error (case-insensitive), defaulting to info.
func Init(destination, level string) (io.Closer, error) {
	var out io.Writer
	var closer io.Closer = nopCloser{}

	switch strings.ToLower(destination) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		out = f
		closer = f
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, opts)))
	return closer, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// ForTable returns a logger scoped to one table's reconciliation run, the
// way per-shard Extractor/Loader logs need tid/side/shard attribution.
func ForTable(tid int64, alias string) *slog.Logger {
	return slog.Default().With("tid", tid, "alias", alias)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
