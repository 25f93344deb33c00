// Package logger is the process-wide structured logger.
//
// Records go to a colored single-line text handler on terminals, or to
// slog's JSON handler. Dispatches and API requests carry a LogContext, and
// the *Ctx functions prepend its fields (relay, op, offset, trace and
// request IDs) to every record logged on their behalf.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	// level is shared by every handler built here, so SetLevel takes effect
	// without rebuilding the handler.
	level slog.LevelVar

	mu         sync.RWMutex
	out        io.Writer = os.Stdout
	outFile    *os.File // set when out is a log file owned by the logger
	color      bool
	jsonFormat bool
	slogger    *slog.Logger
)

func init() {
	color = isTerminal(os.Stdout.Fd())
	rebuild()
}

// rebuild must be called with mu held, or before any logging starts.
func rebuild() {
	opts := &slog.HandlerOptions{Level: &level}
	if jsonFormat {
		slogger = slog.New(slog.NewJSONHandler(out, opts))
		return
	}
	slogger = slog.New(NewColorTextHandler(out, opts, color))
}

// ParseLevel maps DEBUG, INFO, WARN or ERROR, in any case, to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// Init applies cfg. Empty fields keep their current value, invalid level
// and format names are ignored. A previous log file is closed when the
// output changes.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if cfg.Output != "" {
		if err := setOutputLocked(cfg.Output); err != nil {
			return err
		}
	}
	if l, ok := ParseLevel(cfg.Level); ok {
		level.Set(l)
	}
	switch strings.ToLower(cfg.Format) {
	case "json":
		jsonFormat = true
	case "text":
		jsonFormat = false
	}
	rebuild()
	return nil
}

func setOutputLocked(dest string) error {
	var (
		w   io.Writer
		f   *os.File
		tty bool
	)
	switch strings.ToLower(dest) {
	case "stdout":
		w, tty = os.Stdout, isTerminal(os.Stdout.Fd())
	case "stderr":
		w, tty = os.Stderr, isTerminal(os.Stderr.Fd())
	default:
		var err error
		f, err = os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", dest, err)
		}
		w = f
	}

	if outFile != nil {
		_ = outFile.Close()
	}
	out, outFile, color = w, f, tty
	return nil
}

// SetOutput sends records to w. The writer is not closed by the logger.
func SetOutput(w io.Writer, useColor bool) {
	mu.Lock()
	defer mu.Unlock()

	if outFile != nil {
		_ = outFile.Close()
		outFile = nil
	}
	out, color = w, useColor
	rebuild()
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := ParseLevel(name); ok {
		level.Set(l)
	}
}

// SetFormat switches between "text" and "json". Unknown names are ignored.
func SetFormat(format string) {
	_ = Init(Config{Format: format})
}

func log(ctx context.Context, lvl slog.Level, msg string, args []any) {
	if lvl < level.Level() {
		return
	}
	args = appendContextFields(ctx, args)

	mu.RLock()
	l := slogger
	mu.RUnlock()
	l.Log(ctx, lvl, msg, args...)
}

// Debug logs at debug level: Debug("message", "key1", value1, ...).
func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level.
func Info(msg string, args ...any) { log(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { log(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level.
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level with the LogContext fields of ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx logs at info level with the LogContext fields of ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args)
}

// ErrorCtx logs at error level with the LogContext fields of ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args)
}
