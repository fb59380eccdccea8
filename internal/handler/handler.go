// Package handler applies consumed events to the repository. Each event type
// has one Handler; the Registry dispatches by type.
package handler

import (
	"context"
	"sync"

	"go.trai.ch/zerr"

	"userprofile/internal/domain"
	"userprofile/internal/event"
)

// Handler applies one event. Errors for which domain.IsPermanent is true
// mean the event can never be applied and should be skipped.
type Handler interface {
	Handle(ctx context.Context, ev event.Event) error
}

type Func func(ctx context.Context, ev event.Event) error

func (f Func) Handle(ctx context.Context, ev event.Event) error { return f(ctx, ev) }

type Registry struct {
	mu       sync.RWMutex
	handlers map[event.Type]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[event.Type]Handler)}
}

// Register replaces any handler already bound to t.
func (r *Registry) Register(t event.Type, h Handler) {
	r.mu.Lock()
	r.handlers[t] = h
	r.mu.Unlock()
}

func (r *Registry) Lookup(t event.Type) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

func (r *Registry) Dispatch(ctx context.Context, ev event.Event) error {
	if ev.Type == event.Unknown {
		return zerr.With(zerr.Wrap(domain.ErrUnknownEventType, "event without type"), "topic", ev.Topic)
	}
	h, ok := r.Lookup(ev.Type)
	if !ok {
		return zerr.With(zerr.Wrap(domain.ErrHandlerNotFound, "dispatch"), "type", ev.Type.String())
	}
	return h.Handle(ctx, ev)
}
