package observability

import (
	"fmt"
	"io"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"cdr.dev/slog/v3/sloggers/slogjson"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogOptions struct {
	Level  string
	Format string
	// File, when set, receives logs through a rotating writer instead of w.
	File string
}

// NewLogger builds the process logger. The returned func closes the log file
// if one was opened.
func NewLogger(w io.Writer, opts LogOptions) (slog.Logger, func(), error) {
	closeLog := func() {}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28,
		}
		w = rotating
		closeLog = func() { _ = rotating.Close() }
	}

	var sink slog.Sink
	switch opts.Format {
	case "", "human":
		sink = sloghuman.Sink(w)
	case "json":
		sink = slogjson.Sink(w)
	default:
		closeLog()
		return slog.Logger{}, func() {}, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	level, err := parseLevel(opts.Level)
	if err != nil {
		closeLog()
		return slog.Logger{}, func() {}, err
	}

	return slog.Make(sink).Leveled(level), closeLog, nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", raw)
	}
}
