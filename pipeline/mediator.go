package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Request is implemented by every command and query. RequestName must work
// on the zero value because Register calls it on one.
type Request interface {
	RequestName() string
}

// Handler processes a request after all behaviors ran.
type Handler func(ctx context.Context, req Request) (any, error)

// Behavior wraps the rest of the chain. It must call next exactly once to
// continue, or return without calling it to short-circuit.
type Behavior func(ctx context.Context, req Request, next Handler) (any, error)

// ErrNoHandler is returned by Send for an unregistered request name.
var ErrNoHandler = errors.New("pipeline: no handler registered")

// Mediator routes requests to handlers. Registration happens at startup;
// Send is safe for concurrent use afterwards.
type Mediator struct {
	handlers  map[string]Handler
	behaviors []Behavior
}

// New returns a Mediator applying behaviors in order, first outermost.
func New(behaviors ...Behavior) *Mediator {
	return &Mediator{
		handlers:  map[string]Handler{},
		behaviors: behaviors,
	}
}

// Register binds h to the request type Req. A second registration for the
// same name panics.
func Register[Req Request, Res any](m *Mediator, h func(context.Context, Req) (Res, error)) {
	var zero Req
	name := zero.RequestName()
	if _, dup := m.handlers[name]; dup {
		panic(fmt.Sprintf("pipeline: handler for %q registered twice", name))
	}
	m.handlers[name] = func(ctx context.Context, req Request) (any, error) {
		typed, ok := req.(Req)
		if !ok {
			return nil, fmt.Errorf("pipeline: %s: unexpected request type %T", name, req)
		}
		return h(ctx, typed)
	}
}

// Send runs req through the behaviors and its handler.
func Send[Res any](ctx context.Context, m *Mediator, req Request) (Res, error) {
	var zero Res
	h, ok := m.handlers[req.RequestName()]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNoHandler, req.RequestName())
	}

	chain := h
	for i := len(m.behaviors) - 1; i >= 0; i-- {
		b, next := m.behaviors[i], chain
		chain = func(ctx context.Context, req Request) (any, error) {
			return b(ctx, req, next)
		}
	}

	out, err := chain(ctx, req)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	res, ok := out.(Res)
	if !ok {
		return zero, fmt.Errorf("pipeline: %s: handler returned %T", req.RequestName(), out)
	}
	return res, nil
}

// Registered reports whether a handler exists for name.
func (m *Mediator) Registered(name string) bool {
	_, ok := m.handlers[name]
	return ok
}
