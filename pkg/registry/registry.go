package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
)

// Request is the input handed to a post-action handler.
type Request struct {
	Node           *domain.PromptNode
	Parsed         any
	Config         domain.ActionConfig
	TargetParentID string
	Scope          *domain.VariableScope
	Store          ports.TreeStore

	// Plan is filled in after a successful Validate.
	Plan *Plan
}

// Plan describes the mutation a handler intends to perform.
type Plan struct {
	Items []any
	Names []string
}

// Handler implements one post-action. Validate must not mutate anything;
// Execute applies the plan and returns the nodes it created.
type Handler interface {
	Validate(req *Request) (*Plan, error)
	Execute(ctx context.Context, req *Request) ([]*domain.PromptNode, error)
}

// HandlerFuncs adapts a pair of functions to Handler.
type HandlerFuncs struct {
	ValidateFunc func(req *Request) (*Plan, error)
	ExecuteFunc  func(ctx context.Context, req *Request) ([]*domain.PromptNode, error)
}

func (h HandlerFuncs) Validate(req *Request) (*Plan, error) {
	if h.ValidateFunc == nil {
		return &Plan{}, nil
	}
	return h.ValidateFunc(req)
}

func (h HandlerFuncs) Execute(ctx context.Context, req *Request) ([]*domain.PromptNode, error) {
	if h.ExecuteFunc == nil {
		return nil, nil
	}
	return h.ExecuteFunc(ctx, req)
}

// Registry manages the available post-action handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler to the registry.
// If a handler with the same name exists, it is overwritten.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Get looks up a handler by name.
// Returns domain.ErrUnknownPostAction if the handler is not found.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPostAction, name)
	}
	return h, nil
}

// Names returns the registered handler names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
