package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/registry"
	"github.com/google/uuid"
)

// Engine wires the executor, the action processor and the walker around a
// single RunState.
type Engine struct {
	store       ports.TreeStore
	provider    ports.GenerationProvider
	asker       ports.QuestionAsker
	confirmer   ports.Confirmer
	ledger      ports.CostLedger
	recorder    ports.TraceRecorder
	pricer      Pricer
	handlers    *registry.Registry
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
	newID       func() string

	state    *RunState
	tel      telemetry
	executor *Executor
	actions  *ActionProcessor
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets a structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = hooks }
}

// WithQuestionAsker sets who answers question interrupts.
func WithQuestionAsker(asker ports.QuestionAsker) Option {
	return func(e *Engine) { e.asker = asker }
}

// WithConfirmer sets who approves action previews.
func WithConfirmer(confirmer ports.Confirmer) Option {
	return func(e *Engine) { e.confirmer = confirmer }
}

// WithCostLedger enables cost recording.
func WithCostLedger(ledger ports.CostLedger) Option {
	return func(e *Engine) { e.ledger = ledger }
}

// WithTraceRecorder enables trace and span recording.
func WithTraceRecorder(recorder ports.TraceRecorder) Option {
	return func(e *Engine) { e.recorder = recorder }
}

// WithPricer sets how usage is converted into USD cost.
func WithPricer(p Pricer) Option {
	return func(e *Engine) { e.pricer = p }
}

// WithRegistry replaces the post-action handler registry.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Engine) { e.handlers = r }
}

// WithMaxQuestionAttempts overrides MaxQuestionAttempts.
func WithMaxQuestionAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over a tree store and a provider.
func NewEngine(store ports.TreeStore, provider ports.GenerationProvider, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		provider:    provider,
		logger:      logging.NewNop(),
		maxAttempts: MaxQuestionAttempts,
		now:         time.Now,
		newID:       uuid.NewString,
		state:       NewRunState(),
	}
	for _, opt := range opts {
		opt(e)
	}

	paths := NewPathEvaluator()
	if e.handlers == nil {
		e.handlers = NewDefaultRegistry(paths)
	}
	e.state.now = e.now
	e.tel = telemetry{recorder: e.recorder, logger: e.logger}

	e.executor = NewExecutor(store, provider, e.asker)
	e.executor.ledger = e.ledger
	e.executor.pricer = e.pricer
	e.executor.state = e.state
	e.executor.hooks = e.hooks
	e.executor.logger = e.logger
	e.executor.maxAttempts = e.maxAttempts
	e.executor.now = e.now

	e.actions = NewActionProcessor(store, e.confirmer, e.handlers)
	e.actions.paths = paths
	e.actions.state = e.state
	e.actions.hooks = e.hooks
	e.actions.logger = e.logger
	e.actions.now = e.now
	return e
}

// State returns the engine's run state.
func (e *Engine) State() *RunState { return e.state }

// Executor returns the node executor, for callers that drive resumption themselves.
func (e *Engine) Executor() *Executor { return e.executor }

// Actions returns the action processor.
func (e *Engine) Actions() *ActionProcessor { return e.actions }

// Registry returns the post-action handler registry.
func (e *Engine) Registry() *registry.Registry { return e.handlers }

// RunNode executes a single node, including its post-action, without
// descending into children.
func (e *Engine) RunNode(ctx context.Context, nodeID string, seed map[string]any) (*domain.CascadeResult, error) {
	node, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load node %s: %w", nodeID, err)
	}
	if err := e.state.begin(e.newID(), domain.ModeSingle, nodeID); err != nil {
		return nil, err
	}
	result := &domain.CascadeResult{RootID: nodeID, StartedAt: e.now(), Status: domain.RunRunning}
	result.TraceID = e.tel.startTrace(ctx, domain.TraceStart{RootNodeID: nodeID, Mode: domain.ModeSingle})
	e.state.setTrace(result.TraceID)

	out := e.visit(ctx, result.TraceID, step{node: node}, domain.NewVariableScope(seed))
	result.Results = append(result.Results, out.result)
	return e.complete(ctx, result, out.fatal)
}

// complete closes the trace and the run state.
func (e *Engine) complete(ctx context.Context, result *domain.CascadeResult, runErr error) (*domain.CascadeResult, error) {
	switch {
	case runErr != nil:
		result.Status = domain.RunFailed
	case result.Cancelled:
		result.Status = domain.RunCancelled
	case result.DepthLimitReached:
		result.Status = domain.RunDepthLimitReached
	default:
		result.Status = domain.RunCompleted
	}
	result.Duration = e.now().Sub(result.StartedAt)

	traceStatus := domain.SpanSuccess
	if runErr != nil {
		traceStatus = domain.SpanError
	}
	e.tel.completeTrace(ctx, result.TraceID, traceStatus)
	e.state.finish(result.Status, runErr)

	e.logger.InfoContext(ctx, "run finished",
		"root_id", result.RootID, "status", result.Status,
		"nodes", len(result.Results), "duration", result.Duration)
	return result, runErr
}
