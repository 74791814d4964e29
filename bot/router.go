package bot

import (
	"context"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/davecgh/go-spew/spew"
)

// Handler handles one event. It runs on the sync goroutine, the next poll
// starts only after it returns.
type Handler func(ctx context.Context, event *bridge.Event)

// EventRouter maps event types to their handler. Register everything before
// the sync loop starts, the router is not safe for concurrent registration.
type EventRouter struct {
	handlers map[string]Handler
}

func NewEventRouter() *EventRouter {
	return &EventRouter{
		handlers: make(map[string]Handler),
	}
}

// Register sets the handler for eventType, replacing an earlier one.
func (r *EventRouter) Register(eventType string, handler Handler) {
	if _, ok := r.handlers[eventType]; ok {
		logger.Warnf("replacing handler for %s events", eventType)
	}

	r.handlers[eventType] = handler
}

// Dispatch calls the handler registered for event.Type. Events without a
// handler are dropped.
func (r *EventRouter) Dispatch(ctx context.Context, event *bridge.Event) {
	if event == nil {
		return
	}

	handler, ok := r.handlers[event.Type]
	if !ok {
		logger.Tracef("no handler for %s %s", event.Type, spew.Sdump(event.Data))
		return
	}

	handler(ctx, event)
}
