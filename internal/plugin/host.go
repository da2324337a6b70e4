package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Handler reacts to one event. A returned error is logged by the host and
// does not stop the chain.
type Handler func(ctx context.Context, ec *EventContext) error

// Plugin is a unit of event handlers with a lifecycle.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context) error
	Handlers() map[EventType]Handler
	Destroy(ctx context.Context) error
}

// Host holds registered plugins and dispatches events to them in
// registration order.
type Host struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
}

func NewHost(log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{logger: log.With(slog.String("component", "plugin_host"))}
}

// Register adds a plugin. Names must be unique.
func (h *Host) Register(p Plugin) error {
	if p == nil {
		return errors.New("plugin is nil")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return errors.New("plugin name is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.plugins {
		if existing.Name() == name {
			return fmt.Errorf("plugin already registered: %s", name)
		}
	}
	h.plugins = append(h.plugins, p)
	return nil
}

// Plugins returns the names of registered plugins in order.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.plugins))
	for _, p := range h.plugins {
		names = append(names, p.Name())
	}
	return names
}

func (h *Host) snapshot() []Plugin {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Plugin, len(h.plugins))
	copy(out, h.plugins)
	return out
}

// Initialize runs every plugin's Initialize and stops at the first failure.
func (h *Host) Initialize(ctx context.Context) error {
	for _, p := range h.snapshot() {
		if err := p.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		h.logger.Info("plugin initialized", slog.String("plugin", p.Name()))
	}
	return nil
}

// Emit delivers event to every plugin handling its type and returns the
// resulting context.
func (h *Host) Emit(ctx context.Context, event Event) *EventContext {
	ec := NewEventContext(event)
	for _, p := range h.snapshot() {
		handler, ok := p.Handlers()[event.Type]
		if !ok || handler == nil {
			continue
		}
		if err := handler(ctx, ec); err != nil {
			h.logger.Error("plugin handler failed",
				slog.String("plugin", p.Name()),
				slog.String("event", string(event.Type)),
				slog.Any("error", err),
			)
		}
		if ec.IsPreventPostorder() {
			break
		}
	}
	return ec
}

// Shutdown destroys plugins in reverse registration order.
func (h *Host) Shutdown(ctx context.Context) error {
	plugins := h.snapshot()
	var errs []error
	for i := len(plugins) - 1; i >= 0; i-- {
		if err := plugins[i].Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("destroy plugin %s: %w", plugins[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}
