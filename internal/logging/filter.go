package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentFilterHandler filters records by the "component" attribute that
// component constructors attach with logger.With. Each component can be given
// its own level at runtime; records from components without an override use
// the default level.
//
// The handler is safe for concurrent use.
type ComponentFilterHandler struct {
	next         slog.Handler
	defaultLevel slog.Level
	preAttrs     []slog.Attr

	mu     *sync.RWMutex
	levels map[string]slog.Level
}

// NewComponentFilterHandler wraps next with per-component level filtering.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	var mu sync.RWMutex
	return &ComponentFilterHandler{
		next:         next,
		defaultLevel: defaultLevel,
		mu:           &mu,
		levels:       make(map[string]slog.Level),
	}
}

// SetLevel overrides the level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels[component] = level
}

// ClearLevel removes a component's override, restoring the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.levels, component)
}

// Level returns the effective level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if level, ok := h.levels[component]; ok {
		return level
	}
	return h.defaultLevel
}

// DefaultLevel returns the level used for components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	return h.defaultLevel
}

// Enabled always reports true; filtering needs the component attribute,
// which is only available in Handle.
func (h *ComponentFilterHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle forwards the record if its level passes the component's threshold.
func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.Level(h.component(r)) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// component finds the "component" attribute, checking attributes attached
// via WithAttrs before the record's own.
func (h *ComponentFilterHandler) component(r slog.Record) string {
	for _, a := range h.preAttrs {
		if a.Key == "component" {
			return a.Value.String()
		}
	}
	var component string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return false
		}
		return true
	})
	return component
}

// WithAttrs returns a clone that shares the level table with the original,
// so SetLevel on the root handler affects scoped loggers too.
func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	preAttrs := make([]slog.Attr, 0, len(h.preAttrs)+len(attrs))
	preAttrs = append(preAttrs, h.preAttrs...)
	preAttrs = append(preAttrs, attrs...)
	return &ComponentFilterHandler{
		next:         h.next.WithAttrs(attrs),
		defaultLevel: h.defaultLevel,
		preAttrs:     preAttrs,
		mu:           h.mu,
		levels:       h.levels,
	}
}

// WithGroup returns a clone whose wrapped handler opens the group. Attributes
// logged at the call site still carry their plain keys on the record, so
// component filtering keeps working inside groups.
func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	return &ComponentFilterHandler{
		next:         h.next.WithGroup(name),
		defaultLevel: h.defaultLevel,
		preAttrs:     h.preAttrs,
		mu:           h.mu,
		levels:       h.levels,
	}
}
