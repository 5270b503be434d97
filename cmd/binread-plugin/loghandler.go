package main

import (
	"context"
	"log/slog"

	"github.com/redpanda-data/benthos/v4/public/service"
)

// logHandler forwards slog records to the pipeline logger so decoder and
// tracer output lands in the Benthos log stream.
type logHandler struct {
	logger *service.Logger
	attrs  []any
	group  string
}

func newLogHandler(logger *service.Logger) *logHandler {
	return &logHandler{logger: logger}
}

// Enabled leaves level filtering to the pipeline logger.
func (h *logHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *logHandler) Handle(_ context.Context, r slog.Record) error {
	kv := make([]any, 0, len(h.attrs)+2*r.NumAttrs())
	kv = append(kv, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		kv = append(kv, h.key(a.Key), a.Value.Resolve().Any())
		return true
	})

	l := h.logger
	if len(kv) > 0 {
		l = l.With(kv...)
	}
	switch {
	case r.Level >= slog.LevelError:
		l.Error(r.Message)
	case r.Level >= slog.LevelWarn:
		l.Warn(r.Message)
	case r.Level >= slog.LevelInfo:
		l.Info(r.Message)
	default:
		l.Debug(r.Message)
	}
	return nil
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &logHandler{logger: h.logger, group: h.group}
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, h.key(a.Key), a.Value.Resolve().Any())
	}
	return next
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &logHandler{logger: h.logger, attrs: h.attrs, group: h.key(name)}
}

func (h *logHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
