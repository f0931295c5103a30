package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
)

// RunState is the single observable record of the engine's current run.
// All methods are safe for concurrent use and tolerate a nil receiver.
type RunState struct {
	mu       sync.RWMutex
	snap     domain.RunSnapshot
	watchers map[chan domain.RunSnapshot]struct{}
	now      func() time.Time
}

// NewRunState returns an idle run state.
func NewRunState() *RunState {
	return &RunState{
		snap:     domain.RunSnapshot{Status: domain.RunIdle},
		watchers: make(map[chan domain.RunSnapshot]struct{}),
		now:      time.Now,
	}
}

// Snapshot returns a copy of the current state.
func (s *RunState) Snapshot() domain.RunSnapshot {
	if s == nil {
		return domain.RunSnapshot{Status: domain.RunIdle}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// Watch streams snapshots after every change until ctx is done.
// Slow readers only see the latest snapshot. A nil state yields one idle
// snapshot and a closed channel.
func (s *RunState) Watch(ctx context.Context) <-chan domain.RunSnapshot {
	ch := make(chan domain.RunSnapshot, 1)
	if s == nil {
		ch <- domain.RunSnapshot{Status: domain.RunIdle}
		close(ch)
		return ch
	}
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	ch <- s.copyLocked()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// RequestCancel asks the walker to stop before the next node.
func (s *RunState) RequestCancel() {
	s.update(func(snap *domain.RunSnapshot) {
		if snap.Status == domain.RunRunning {
			snap.CancelRequested = true
		}
	})
}

// CancelRequested reports whether cancellation was requested for the active run.
func (s *RunState) CancelRequested() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.CancelRequested
}

func (s *RunState) begin(runID string, mode domain.RunMode, rootID string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.snap.Status == domain.RunRunning {
		s.mu.Unlock()
		return domain.ErrRunInProgress
	}
	s.snap = domain.RunSnapshot{
		RunID:     runID,
		Status:    domain.RunRunning,
		Mode:      mode,
		RootID:    rootID,
		Nodes:     make(map[string]domain.NodeStatus),
		StartedAt: s.now(),
	}
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

func (s *RunState) finish(status domain.RunStatus, err error) {
	s.update(func(snap *domain.RunSnapshot) {
		snap.Status = status
		snap.CurrentNodeID = ""
		snap.PendingQuestion = nil
		snap.PendingPreview = nil
		snap.FinishedAt = s.now()
		snap.Error = ""
		if err != nil {
			snap.Error = err.Error()
		}
	})
}

func (s *RunState) setTrace(traceID string) {
	s.update(func(snap *domain.RunSnapshot) { snap.TraceID = traceID })
}

func (s *RunState) setCurrent(nodeID string) {
	s.update(func(snap *domain.RunSnapshot) {
		snap.CurrentNodeID = nodeID
		if snap.Nodes != nil {
			snap.Nodes[nodeID] = domain.NodeRunning
		}
	})
}

func (s *RunState) setNodeStatus(nodeID string, status domain.NodeStatus) {
	s.update(func(snap *domain.RunSnapshot) {
		if snap.Nodes != nil {
			snap.Nodes[nodeID] = status
		}
	})
}

func (s *RunState) setPendingQuestion(q *domain.QuestionInterrupt) {
	s.update(func(snap *domain.RunSnapshot) { snap.PendingQuestion = q })
}

func (s *RunState) setPendingPreview(p *domain.ActionPreview) {
	s.update(func(snap *domain.RunSnapshot) { snap.PendingPreview = p })
}

func (s *RunState) update(fn func(*domain.RunSnapshot)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	fn(&s.snap)
	s.broadcastLocked()
	s.mu.Unlock()
}

func (s *RunState) broadcastLocked() {
	for ch := range s.watchers {
		snap := s.copyLocked()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *RunState) copyLocked() domain.RunSnapshot {
	c := s.snap
	if s.snap.Nodes != nil {
		c.Nodes = make(map[string]domain.NodeStatus, len(s.snap.Nodes))
		for k, v := range s.snap.Nodes {
			c.Nodes[k] = v
		}
	}
	if s.snap.PendingQuestion != nil {
		q := *s.snap.PendingQuestion
		c.PendingQuestion = &q
	}
	if s.snap.PendingPreview != nil {
		p := *s.snap.PendingPreview
		c.PendingPreview = &p
	}
	return c
}
