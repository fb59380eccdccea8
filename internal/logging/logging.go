package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.trai.ch/zerr"
)

// Severities above slog.LevelError carried over from the service's log
// vocabulary (DEBUG, INFO, WARNING, ERROR, CRITICAL, FATAL).
const (
	LevelCritical = slog.Level(12)
	LevelFatal    = slog.Level(16)
)

type Options struct {
	Level  string
	JSON   bool
	Writer io.Writer
}

var def atomic.Value

func init() {
	def.Store(newLogger(Options{}, slog.LevelInfo))
}

func Configure(opts Options) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	def.Store(newLogger(opts, lvl))
}

func newLogger(opts Options, lvl slog.Level) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: lvl, ReplaceAttr: replaceLevel}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(w, cfg)
	} else {
		h = slog.NewTextHandler(w, cfg)
	}
	return slog.New(h)
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(lvl))
	}
	return a
}

// ParseLevel accepts the service level names case-insensitively. An empty
// string is INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func LevelName(l slog.Level) string {
	switch {
	case l >= LevelFatal:
		return "FATAL"
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// Critical logs at CRITICAL.
func Critical(msg string, args ...any) {
	L().Log(context.Background(), LevelCritical, msg, args...)
}

// Error logs err at ERROR with any zerr metadata it carries as attributes.
func Error(ctx context.Context, op string, err error) {
	zerr.Log(ctx, L().With("op", op), err)
}

func InitFromEnv() {
	lvl := os.Getenv("USERPROFILE_LOG_LEVEL")
	jsonStr := os.Getenv("USERPROFILE_LOG_JSON")
	json := false
	if b, err := strconv.ParseBool(strings.TrimSpace(jsonStr)); err == nil {
		json = b
	}
	Configure(Options{Level: lvl, JSON: json})
}
