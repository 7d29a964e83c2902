package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var levelVar = new(slog.LevelVar)

// L is the process-wide logger. It writes JSON lines to stderr so that the
// chat transcript printed on stdout is never interleaved with log output.
var L = slog.New(&switchHandler{})

var out atomic.Pointer[slog.Logger]

func init() {
	SetOutput(os.Stderr)
}

// SetLevel configures the global log level (debug, info, warn, error).
func SetLevel(lvl string) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// SetOutput redirects L (and every logger derived from it) to w.
func SetOutput(w io.Writer) {
	out.Store(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar})))
}

// switchHandler forwards to whichever handler SetOutput installed last, so
// loggers created with L.With keep following output changes.
type switchHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h *switchHandler) target() slog.Handler {
	th := out.Load().Handler()
	for _, op := range h.ops {
		th = op(th)
	}
	return th
}

func (h *switchHandler) with(op func(slog.Handler) slog.Handler) *switchHandler {
	ops := make([]func(slog.Handler) slog.Handler, 0, len(h.ops)+1)
	return &switchHandler{ops: append(append(ops, h.ops...), op)}
}

func (h *switchHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= levelVar.Level()
}

func (h *switchHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.target().Handle(ctx, r)
}

func (h *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(th slog.Handler) slog.Handler { return th.WithAttrs(attrs) })
}

func (h *switchHandler) WithGroup(name string) slog.Handler {
	return h.with(func(th slog.Handler) slog.Handler { return th.WithGroup(name) })
}
