package logging

import (
	"context"
	"log/slog"
	"maps"
	"time"
)

// LogCallback is called for every entry written to the ring buffer.
// It lets main publish entries on the event bus without an import cycle.
type LogCallback func(entry LogEntry)

// BufferHandler records entries in a RingBuffer. The buffer and callback
// are looked up per record so loggers created before Initialize or
// SetLogCallback pick them up later.
type BufferHandler struct {
	buffer   func() *RingBuffer
	callback func() LogCallback
	level    slog.Leveler
	module   string
	attrs    map[string]any // from WithAttrs, keys already prefixed
	prefix   string         // group path, "a.b."
}

// NewBufferHandler creates a buffer handler. Either lookup may return nil.
func NewBufferHandler(buffer func() *RingBuffer, level slog.Leveler, callback func() LogCallback) *BufferHandler {
	return &BufferHandler{buffer: buffer, callback: callback, level: level, module: "app"}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	buffer := h.buffer()
	if buffer == nil {
		return nil
	}

	module := h.module
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	maps.Copy(attrs, h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" && h.prefix == "" {
			module = a.Value.String()
		} else {
			entryAttr(attrs, h.prefix, a)
		}
		return true
	})

	entry := buffer.Write(LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     module,
		Message:    r.Message,
		Attributes: attrs,
	})
	if h.callback != nil {
		if cb := h.callback(); cb != nil {
			cb(entry)
		}
	}
	return nil
}

// WithAttrs implements slog.Handler. A top-level "module" attribute names
// the entry's module instead of becoming an attribute.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = maps.Clone(h.attrs)
	if next.attrs == nil {
		next.attrs = make(map[string]any, len(attrs))
	}
	for _, a := range attrs {
		if a.Key == "module" && h.prefix == "" {
			next.module = a.Value.String()
			continue
		}
		entryAttr(next.attrs, h.prefix, a)
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// entryAttr stores a in attrs with dotted group keys and JSON-friendly values.
func entryAttr(attrs map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := prefix + a.Key
	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			entryAttr(attrs, key+".", ga)
		}
	case slog.KindTime:
		attrs[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		attrs[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			attrs[key] = err.Error()
		} else {
			attrs[key] = a.Value.Any()
		}
	default:
		attrs[key] = a.Value.Any()
	}
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
