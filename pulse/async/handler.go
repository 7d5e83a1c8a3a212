package async

import (
	"context"
	"fmt"
	"sync"
)

// JobHandler executes one kind of job. Handlers decode their own payload,
// update progress through the queue as work proceeds and return nil on
// success. Execute must return promptly once ctx is cancelled.
type JobHandler interface {
	Execute(ctx context.Context, job *Job) error

	// Name is the handler name jobs are routed by, e.g. "deal.analyze".
	Name() string
}

// HandlerRegistry manages job handlers by name. Safe for concurrent use.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", name))
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a name, or nil.
func (r *HandlerRegistry) Get(name string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[name]
	return exists
}

// Names returns all registered handler names.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Execute dispatches job to its registered handler.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return fmt.Errorf("job missing handler_name")
	}
	handler := r.Get(job.HandlerName)
	if handler == nil {
		return fmt.Errorf("no handler registered for handler name: %s", job.HandlerName)
	}
	return handler.Execute(ctx, job)
}

// HandlerFunc adapts a function to JobHandler.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) Execute(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }
