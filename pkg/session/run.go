package session

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
)

// Run is one background execution started by the Manager.
type Run struct {
	ID        string
	RootID    string
	Mode      domain.RunMode
	StartedAt time.Time

	engine     *runtime.Engine
	interactor *runtime.ChannelInteractor
	cancel     context.CancelFunc
	done       chan struct{}

	mu     sync.Mutex
	result *domain.CascadeResult
	err    error
}

// Snapshot returns the live run state.
func (r *Run) Snapshot() domain.RunSnapshot {
	return r.engine.State().Snapshot()
}

// Watch streams state changes until ctx is done.
func (r *Run) Watch(ctx context.Context) <-chan domain.RunSnapshot {
	return r.engine.State().Watch(ctx)
}

// Done is closed when the run finishes.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Finished reports whether the run has ended.
func (r *Run) Finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome once finished; both are nil before that.
func (r *Run) Result() (*domain.CascadeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (*domain.CascadeResult, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Answer resolves the pending question. Nil cancels the asking node.
func (r *Run) Answer(answer *string) error {
	return r.interactor.Answer(answer)
}

// Decide resolves the pending action preview.
func (r *Run) Decide(approve bool) error {
	return r.interactor.Decide(approve)
}

// Cancel stops the run before its next node. A pending question or preview
// is declined so the current node can finish.
func (r *Run) Cancel() {
	r.engine.State().RequestCancel()
	snap := r.Snapshot()
	if snap.PendingQuestion != nil {
		_ = r.interactor.Answer(nil)
	}
	if snap.PendingPreview != nil {
		_ = r.interactor.Decide(false)
	}
}

// Abort cancels the run context, interrupting the provider call in flight.
func (r *Run) Abort() {
	r.Cancel()
	r.cancel()
}
