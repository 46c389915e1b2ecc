package logging

import (
	"context"
	"log/slog"
)

// teeHandler forwards every record to a primary handler and to any number of
// copies. Each handler applies its own level.
type teeHandler struct {
	primary slog.Handler
	copies  []slog.Handler
}

func newTeeHandler(primary slog.Handler, copies ...slog.Handler) slog.Handler {
	var live []slog.Handler
	for _, h := range copies {
		if h != nil {
			live = append(live, h)
		}
	}
	switch {
	case primary == nil && len(live) == 0:
		return NoopHandler{}
	case primary == nil:
		primary, live = live[0], live[1:]
	}
	if len(live) == 0 {
		return primary
	}
	return &teeHandler{primary: primary, copies: live}
}

func (h *teeHandler) each(fn func(slog.Handler) bool) {
	if !fn(h.primary) {
		return
	}
	for _, c := range h.copies {
		if !fn(c) {
			return
		}
	}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	enabled := false
	h.each(func(next slog.Handler) bool {
		enabled = next.Enabled(ctx, level)
		return !enabled
	})
	return enabled
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	h.each(func(next slog.Handler) bool {
		if next.Enabled(ctx, record.Level) {
			if err := next.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return true
	})
	return firstErr
}

func (h *teeHandler) derive(fn func(slog.Handler) slog.Handler) slog.Handler {
	out := &teeHandler{primary: fn(h.primary), copies: make([]slog.Handler, len(h.copies))}
	for i, c := range h.copies {
		out.copies[i] = fn(c)
	}
	return out
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

// TeeLogger duplicates log output from base into the provided handlers, used
// to mirror console output into the daily log file.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	var primary slog.Handler
	if base != nil {
		primary = base.Handler()
	}
	return slog.New(newTeeHandler(primary, handlers...))
}
