// Package tools holds the tool-execution capability consumed by plan steps.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrUnknownTool = errors.New("unknown tool")

type Handler func(ctx context.Context, inputs map[string]string) (string, error)

// Registry maps tool names to handlers. Registration happens at startup;
// Run is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, h Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if h == nil {
		return errors.New("tool handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

func (r *Registry) Run(ctx context.Context, name string, inputs map[string]string) (string, error) {
	r.mu.RLock()
	h, ok := r.handlers[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return h(ctx, inputs)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}
