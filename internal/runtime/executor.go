package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
)

// MaxQuestionAttempts bounds question round-trips per node execution.
const MaxQuestionAttempts = 10

// Pricer converts usage into a USD cost.
type Pricer interface {
	Cost(model string, usage domain.Usage) float64
}

// Executor runs a single node: it resolves prompts, calls the provider and
// loops through question interrupts until a final response arrives.
type Executor struct {
	store       ports.TreeStore
	provider    ports.GenerationProvider
	asker       ports.QuestionAsker
	ledger      ports.CostLedger
	pricer      Pricer
	state       *RunState
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewExecutor creates an executor. Without an asker, an interrupt ends
// RunNode with an *domain.InterruptedError holding the continuation.
func NewExecutor(store ports.TreeStore, provider ports.GenerationProvider, asker ports.QuestionAsker) *Executor {
	return &Executor{
		store:       store,
		provider:    provider,
		asker:       asker,
		logger:      logging.NewNop(),
		maxAttempts: MaxQuestionAttempts,
		now:         time.Now,
	}
}

// RunNode executes node with the given scope. Pass a non-nil resume to
// continue an execution that previously returned an InterruptedError; its
// Answer is required and nil cancels the node.
func (x *Executor) RunNode(ctx context.Context, node *domain.PromptNode, scope *domain.VariableScope, resume *domain.ResumeState) (*domain.ExecutionResult, error) {
	if scope == nil {
		scope = domain.NewVariableScope(nil)
	}
	fresh := x.reload(ctx, node)
	req := x.buildRequest(fresh, scope)
	result := &domain.ExecutionResult{NodeID: fresh.ID, Node: fresh}
	started := x.now()

	attempts := 0
	if resume != nil {
		attempts = resume.Attempts
		if err := x.applyAnswer(ctx, fresh.ID, &req, scope, pendingQuestion(fresh.ID, resume), resume.Answer); err != nil {
			return nil, err
		}
	}

	for {
		callStart := x.now()
		resp, err := x.provider.Generate(ctx, req)
		if err != nil {
			x.logger.ErrorContext(ctx, "generation failed", "node_id", fresh.ID, "model", req.Model, "error", err)
			return nil, &domain.GenerationFailedError{NodeID: fresh.ID, Cause: err}
		}
		if resp == nil {
			return nil, &domain.GenerationFailedError{NodeID: fresh.ID, Cause: errors.New("provider returned no response")}
		}
		callLatency := x.now().Sub(callStart)
		x.recordCost(ctx, fresh, req.Model, resp, callLatency)
		result.Usage = result.Usage.Add(resp.Usage)

		if resp.Interrupt == nil {
			result.Response = resp.Response
			result.FinishReason = resp.FinishReason
			result.ResponseID = resp.ResponseID
			result.Model = firstNonEmpty(resp.Model, req.Model)
			result.Interrupts = attempts
			result.Latency = x.now().Sub(started)
			x.persistResponse(ctx, fresh, resp.Response)
			return result, nil
		}

		attempts++
		if attempts > x.maxAttempts {
			return nil, fmt.Errorf("node %s: %w (limit %d)", fresh.ID, domain.ErrTooManyInterrupts, x.maxAttempts)
		}

		interrupt := *resp.Interrupt
		interrupt.NodeID = fresh.ID
		interrupt.VariableName = qualify(fresh.ID, interrupt.VariableName)
		if interrupt.ResponseID == "" {
			interrupt.ResponseID = resp.ResponseID
		}
		x.state.setNodeStatus(fresh.ID, domain.NodeInterrupted)
		if x.hooks.OnQuestion != nil {
			x.hooks.OnQuestion(ctx, &domain.QuestionEvent{
				EventBase: domain.EventBase{Timestamp: x.now(), Type: domain.EventQuestion},
				Interrupt: interrupt,
				Attempt:   attempts,
			})
		}
		x.logger.InfoContext(ctx, "node asked a question",
			"node_id", fresh.ID, "variable", interrupt.VariableName, "attempt", attempts)

		if x.asker == nil {
			return nil, &domain.InterruptedError{NodeID: fresh.ID, Resume: domain.ResumeState{
				ResponseID:          interrupt.ResponseID,
				CallID:              interrupt.CallID,
				PendingVariableName: interrupt.VariableName,
				Attempts:            attempts,
				Interrupt:           &interrupt,
			}}
		}

		answer, err := x.ask(ctx, interrupt)
		if err != nil {
			return nil, fmt.Errorf("ask question for node %s: %w", fresh.ID, err)
		}
		if err := x.applyAnswer(ctx, fresh.ID, &req, scope, &interrupt, answer); err != nil {
			return nil, err
		}
	}
}

// pendingQuestion rebuilds the interrupt from the flat continuation fields
// when the resume state was persisted without it.
func pendingQuestion(nodeID string, resume *domain.ResumeState) *domain.QuestionInterrupt {
	if resume.Interrupt != nil {
		return resume.Interrupt
	}
	if resume.ResponseID == "" || resume.PendingVariableName == "" {
		return nil
	}
	return &domain.QuestionInterrupt{
		NodeID:       nodeID,
		VariableName: qualify(nodeID, resume.PendingVariableName),
		ResponseID:   resume.ResponseID,
		CallID:       resume.CallID,
	}
}

func (x *Executor) ask(ctx context.Context, q domain.QuestionInterrupt) (*string, error) {
	x.state.setPendingQuestion(&q)
	defer x.state.setPendingQuestion(nil)
	return x.asker.AskQuestion(ctx, q)
}

// applyAnswer binds the answer into the scope and prepares the resumed request.
func (x *Executor) applyAnswer(ctx context.Context, nodeID string, req *domain.GenerationRequest, scope *domain.VariableScope, q *domain.QuestionInterrupt, answer *string) error {
	if answer == nil {
		x.logger.InfoContext(ctx, "question cancelled", "node_id", nodeID)
		return fmt.Errorf("node %s: %w", nodeID, domain.ErrNodeCancelled)
	}
	if q == nil {
		return fmt.Errorf("node %s: resume without a pending question", nodeID)
	}
	if !scope.Set(q.VariableName, *answer) {
		x.logger.DebugContext(ctx, "answer variable already bound", "node_id", nodeID, "variable", q.VariableName)
	}
	req.Resume = &domain.Resume{
		ResponseID:   q.ResponseID,
		CallID:       q.CallID,
		VariableName: q.VariableName,
		Answer:       *answer,
	}
	x.state.setNodeStatus(nodeID, domain.NodeResumed)
	return nil
}

// reload re-reads the node so edits made since the tree was loaded are honoured.
func (x *Executor) reload(ctx context.Context, node *domain.PromptNode) *domain.PromptNode {
	fresh, err := x.store.GetNode(ctx, node.ID)
	if err != nil {
		x.logger.WarnContext(ctx, "using cached node definition", "node_id", node.ID, "error", err)
		return node.Shallow()
	}
	return fresh
}

func (x *Executor) buildRequest(node *domain.PromptNode, scope *domain.VariableScope) domain.GenerationRequest {
	if missing := Unresolved(node.UserPrompt+"\n"+node.SystemPrompt, scope); len(missing) > 0 {
		x.logger.Debug("unresolved placeholders", "node_id", node.ID, "names", missing)
	}
	format := node.ResponseFormat
	if node.IsAction() && len(node.JSONSchema) > 0 {
		format = domain.ResponseFormatJSONSchema
	}
	return domain.GenerationRequest{
		NodeID:          node.ID,
		Model:           node.Model,
		SystemPrompt:    Resolve(node.SystemPrompt, scope),
		UserPrompt:      Resolve(node.UserPrompt, scope),
		Temperature:     node.Temperature,
		MaxTokens:       node.MaxTokens,
		ReasoningEffort: node.ReasoningEffort,
		ResponseFormat:  format,
		JSONSchema:      node.JSONSchema,
		SchemaName:      schemaName(node, format),
		AllowQuestions:  node.NodeType == domain.NodeTypeQuestion,
	}
}

func (x *Executor) recordCost(ctx context.Context, node *domain.PromptNode, model string, resp *domain.GenerationResponse, latency time.Duration) {
	if x.ledger == nil {
		return
	}
	model = firstNonEmpty(resp.Model, model)
	record := domain.CostRecord{
		NodeID:       node.ID,
		Model:        model,
		Usage:        resp.Usage,
		ResponseID:   resp.ResponseID,
		FinishReason: resp.FinishReason,
		LatencyMs:    latency.Milliseconds(),
		RecordedAt:   x.now(),
	}
	if x.pricer != nil {
		record.CostUSD = x.pricer.Cost(model, resp.Usage)
	}
	if err := x.ledger.RecordCost(ctx, record); err != nil {
		x.logger.WarnContext(ctx, "failed to record cost", "node_id", node.ID, "error", err)
	}
}

func (x *Executor) persistResponse(ctx context.Context, node *domain.PromptNode, response string) {
	if err := x.store.UpdateNode(ctx, node.ID, domain.NodeUpdate{LastResponse: &response}); err != nil {
		x.logger.WarnContext(ctx, "failed to persist response", "node_id", node.ID, "error", err)
		return
	}
	node.LastResponse = response
}

func schemaName(node *domain.PromptNode, format domain.ResponseFormat) string {
	if format != domain.ResponseFormatJSONSchema {
		return ""
	}
	if name, ok := node.JSONSchema["title"].(string); ok && name != "" {
		return name
	}
	return "response"
}

// qualify scopes a bare variable name to the asking node, e.g. "audience"
// becomes "q.<node>.audience". Dotted names are kept as given.
func qualify(nodeID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "answer"
	}
	if strings.Contains(name, ".") {
		return name
	}
	return domain.QualifiedName(nodeID, name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
