// Package dispatch routes validated webhook events to the set of registered
// handlers and isolates per-handler failures from each other and from the
// HTTP response.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/isometry/waha-pipeline/internal/event"
	"github.com/isometry/waha-pipeline/internal/helpers"
)

// Handler consumes webhook events of the types it advertises. Handlers hold no
// per-event state and must be safe to invoke concurrently for unrelated events.
type Handler interface {
	Kind() string
	CanHandle(eventType string) bool
	Handle(ctx context.Context, ev *event.WebhookEvent) error
	SetLogger(logger *slog.Logger)
}

// HandlerOption is a function that applies an option to a Handler.
type HandlerOption = func(Handler)

// WithHandlerLogger sets the logger instance for a handler.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h Handler) {
		h.SetLogger(logger)
	}
}

func applyOpts(h Handler, opts ...HandlerOption) {
	for _, opt := range opts {
		opt(h)
	}
}

// Result is the structured outcome of one handler invocation. Failures are
// reported here rather than propagated so callers and tests can assert on
// handler-level outcomes without parsing logs.
type Result struct {
	Handler string
	Err     error
}

// Failed reports whether the handler invocation failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Option is a function that applies an option to a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger instance for the dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

type registration struct {
	handler  Handler
	catchAll bool
}

// Dispatcher fans a validated event out to every matching handler concurrently.
type Dispatcher struct {
	mu       sync.RWMutex
	registry []registration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with an empty handler registry.
func NewDispatcher(opts ...Option) *Dispatcher {
	_inst := &Dispatcher{logger: helpers.NewNoopLogger()}
	for _, opt := range opts {
		opt(_inst)
	}
	return _inst
}

// Register adds a handler invoked for events its CanHandle accepts.
func (d *Dispatcher) Register(handlers ...Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range handlers {
		d.registry = append(d.registry, registration{handler: h})
	}
}

// RegisterCatchAll adds a handler invoked for every event regardless of type.
func (d *Dispatcher) RegisterCatchAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registry = append(d.registry, registration{handler: h, catchAll: true})
}

// Dispatch invokes every matching handler concurrently and waits for all of
// them to finish. One Result is returned per invoked handler; a handler error
// or panic is captured in its Result and never aborts the remaining handlers.
// Zero matches is not an error: unknown event types are logged and accepted
// for forward compatibility with gateway additions.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *event.WebhookEvent) []Result {
	matching := d.snapshot(ev.Event)
	if len(matching) == 0 {
		d.logger.Info("no handler registered for event type", slog.String("event", ev.Event), slog.String("session", ev.Session))
		return nil
	}

	results := make([]Result, len(matching))
	var wg sync.WaitGroup
	for i, h := range matching {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			results[i] = Result{Handler: h.Kind(), Err: d.invoke(ctx, h, ev)}
		}(i, h)
	}
	wg.Wait()

	for _, r := range results {
		if r.Failed() {
			d.logger.Error("handler failed",
				slog.String("handler", r.Handler),
				slog.String("event", ev.Event),
				slog.Any("error", r.Err))
		}
	}
	return results
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, ev *event.WebhookEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Kind(), r)
		}
	}()
	return h.Handle(ctx, ev)
}

func (d *Dispatcher) snapshot(eventType string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	matching := make([]Handler, 0, len(d.registry))
	for _, reg := range d.registry {
		if reg.catchAll || reg.handler.CanHandle(eventType) {
			matching = append(matching, reg.handler)
		}
	}
	return matching
}
