package runtime

import (
	"context"
	"sync"

	"github.com/aretw0/cascade/pkg/domain"
)

// ChannelInteractor implements Confirmer and QuestionAsker by parking the
// run until another goroutine calls Answer or Decide. It backs non-terminal
// front-ends such as the HTTP API.
type ChannelInteractor struct {
	mu        sync.Mutex
	answers   chan *string
	decisions chan bool
}

// NewChannelInteractor creates an interactor with no pending prompt.
func NewChannelInteractor() *ChannelInteractor {
	return &ChannelInteractor{}
}

// AskQuestion blocks until Answer is called or ctx is done.
func (c *ChannelInteractor) AskQuestion(ctx context.Context, _ domain.QuestionInterrupt) (*string, error) {
	ch := make(chan *string, 1)
	c.mu.Lock()
	c.answers = ch
	c.mu.Unlock()
	defer c.clearAnswers(ch)

	select {
	case a := <-ch:
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Confirm blocks until Decide is called or ctx is done.
func (c *ChannelInteractor) Confirm(ctx context.Context, _ domain.ActionPreview) (bool, error) {
	ch := make(chan bool, 1)
	c.mu.Lock()
	c.decisions = ch
	c.mu.Unlock()
	defer c.clearDecisions(ch)

	select {
	case ok := <-ch:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Answer resolves the pending question. A nil answer cancels the node.
func (c *ChannelInteractor) Answer(answer *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answers == nil {
		return domain.ErrNothingPending
	}
	c.answers <- answer
	c.answers = nil
	return nil
}

// Decide resolves the pending preview.
func (c *ChannelInteractor) Decide(approve bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decisions == nil {
		return domain.ErrNothingPending
	}
	c.decisions <- approve
	c.decisions = nil
	return nil
}

func (c *ChannelInteractor) clearAnswers(ch chan *string) {
	c.mu.Lock()
	if c.answers == ch {
		c.answers = nil
	}
	c.mu.Unlock()
}

func (c *ChannelInteractor) clearDecisions(ch chan bool) {
	c.mu.Lock()
	if c.decisions == ch {
		c.decisions = nil
	}
	c.mu.Unlock()
}
