package runtime_test

import (
	"context"
	"sync"

	"github.com/aretw0/cascade/pkg/domain"
)

type reply struct {
	resp *domain.GenerationResponse
	err  error
}

// scriptedProvider answers from per-node queues, falling back to a default.
type scriptedProvider struct {
	mu       sync.Mutex
	queues   map[string][]reply
	fallback func(req domain.GenerationRequest) (*domain.GenerationResponse, error)
	calls    []domain.GenerationRequest
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{queues: make(map[string][]reply)}
}

func (p *scriptedProvider) on(nodeID string, responses ...string) *scriptedProvider {
	for _, r := range responses {
		p.queues[nodeID] = append(p.queues[nodeID], reply{resp: &domain.GenerationResponse{
			Response:     r,
			Usage:        domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
			FinishReason: "stop",
			ResponseID:   "resp-" + nodeID,
			Model:        "test-model",
		}})
	}
	return p
}

func (p *scriptedProvider) ask(nodeID, variable, question string) *scriptedProvider {
	p.queues[nodeID] = append(p.queues[nodeID], reply{resp: &domain.GenerationResponse{
		ResponseID: "q-" + nodeID,
		Usage:      domain.Usage{TotalTokens: 3},
		Interrupt:  &domain.QuestionInterrupt{Question: question, VariableName: variable, CallID: "call-1"},
	}})
	return p
}

func (p *scriptedProvider) fail(nodeID string, err error) *scriptedProvider {
	p.queues[nodeID] = append(p.queues[nodeID], reply{err: err})
	return p
}

func (p *scriptedProvider) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if q := p.queues[req.NodeID]; len(q) > 0 {
		p.queues[req.NodeID] = q[1:]
		return q[0].resp, q[0].err
	}
	if p.fallback != nil {
		return p.fallback(req)
	}
	return &domain.GenerationResponse{Response: "ok:" + req.NodeID, FinishReason: "stop", Model: "test-model"}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *scriptedProvider) requests() []domain.GenerationRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.GenerationRequest(nil), p.calls...)
}

type fakeConfirmer struct {
	approve  bool
	previews []domain.ActionPreview
}

func (c *fakeConfirmer) Confirm(ctx context.Context, p domain.ActionPreview) (bool, error) {
	c.previews = append(c.previews, p)
	return c.approve, nil
}

// fakeAsker returns answers in order; once exhausted it repeats the last one.
type fakeAsker struct {
	answers []*string
	asked   []domain.QuestionInterrupt
}

func (a *fakeAsker) AskQuestion(ctx context.Context, q domain.QuestionInterrupt) (*string, error) {
	a.asked = append(a.asked, q)
	if len(a.answers) == 0 {
		return nil, nil
	}
	ans := a.answers[0]
	if len(a.answers) > 1 {
		a.answers = a.answers[1:]
	}
	return ans, nil
}

func strPtr(s string) *string { return &s }
