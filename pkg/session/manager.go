package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// DefaultOrphanAge is how old a running span must be before startup cleanup
// marks it failed.
const DefaultOrphanAge = time.Hour

// EngineFactory builds a fresh engine for one run. The interactor must be
// wired as both question asker and confirmer so the run can be driven
// through Answer and Decide.
type EngineFactory func(interactor *runtime.ChannelInteractor) *runtime.Engine

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager starts runs in the background and keeps at most one active run
// per root. With a DistributedLocker the guarantee extends across replicas.
type Manager struct {
	factory EngineFactory

	mu     sync.Mutex
	locks  map[string]*lockEntry
	runs   map[string]*Run
	active map[string]string

	locker   ports.DistributedLocker
	lockTTL  time.Duration
	lockWait time.Duration

	cleaner     ports.OrphanCleaner
	orphanAge   time.Duration
	cleanupOnce sync.Once

	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking. The lock is held for the whole
// run; lockers that refresh it (see the redis adapter) only need ttl to
// cover the gap after a crashed replica.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLockWait bounds how long Start waits for the distributed lock.
func WithLockWait(d time.Duration) Option {
	return func(m *Manager) {
		m.lockWait = d
	}
}

// WithOrphanCleanup closes spans older than age once, before the first run.
func WithOrphanCleanup(cleaner ports.OrphanCleaner, age time.Duration) Option {
	return func(m *Manager) {
		m.cleaner = cleaner
		m.orphanAge = age
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager that builds engines with factory.
func NewManager(factory EngineFactory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		locks:    make(map[string]*lockEntry),
		runs:     make(map[string]*Run),
		active:   make(map[string]string),
		lockTTL:  30 * time.Minute,
		lockWait: 2 * time.Second,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartRequest describes a run to launch.
type StartRequest struct {
	Mode    domain.RunMode
	NodeID  string
	Options domain.CascadeOptions
}

// Start launches a run in the background and returns immediately.
// It fails with domain.ErrRunInProgress while another run holds the root.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Run, error) {
	if req.Mode == "" {
		req.Mode = domain.ModeCascade
	}
	m.cleanupOnce.Do(func() { m.cleanupOrphans(ctx) })

	var run *Run
	err := m.WithLock(ctx, req.NodeID, func(ctx context.Context) error {
		m.mu.Lock()
		_, busy := m.active[req.NodeID]
		m.mu.Unlock()
		if busy {
			return fmt.Errorf("%w: %s", domain.ErrRunInProgress, req.NodeID)
		}

		var unlock ports.UnlockFunc
		if m.locker != nil {
			lockCtx, cancel := context.WithTimeout(ctx, m.lockWait)
			defer cancel()
			u, err := m.locker.Lock(lockCtx, "run:"+req.NodeID, m.lockTTL)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
					return fmt.Errorf("%w: %s (held by another replica)", domain.ErrRunInProgress, req.NodeID)
				}
				return fmt.Errorf("failed to acquire distributed lock: %w", err)
			}
			unlock = u
		}

		interactor := runtime.NewChannelInteractor()
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		run = &Run{
			ID:         uuid.NewString(),
			RootID:     req.NodeID,
			Mode:       req.Mode,
			StartedAt:  time.Now(),
			engine:     m.factory(interactor),
			interactor: interactor,
			cancel:     cancel,
			done:       make(chan struct{}),
		}

		m.mu.Lock()
		m.runs[run.ID] = run
		m.active[req.NodeID] = run.ID
		m.mu.Unlock()

		go m.execute(runCtx, run, req, unlock)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "run started", "run_id", run.ID, "root_id", run.RootID, "mode", run.Mode)
	return run, nil
}

func (m *Manager) execute(ctx context.Context, run *Run, req StartRequest, unlock ports.UnlockFunc) {
	defer run.cancel()
	var (
		result *domain.CascadeResult
		err    error
	)
	switch req.Mode {
	case domain.ModeSingle:
		result, err = run.engine.RunNode(ctx, req.NodeID, req.Options.Seed)
	default:
		result, err = run.engine.RunCascade(ctx, req.NodeID, req.Options)
	}

	run.mu.Lock()
	run.result, run.err = result, err
	run.mu.Unlock()

	m.mu.Lock()
	if m.active[run.RootID] == run.ID {
		delete(m.active, run.RootID)
	}
	m.mu.Unlock()

	if unlock != nil {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"root_id", run.RootID, "err", uerr)
		}
	}
	if err != nil {
		m.logger.Warn("run ended with error", "run_id", run.ID, "root_id", run.RootID, "err", err)
	}
	close(run.done)
}

func (m *Manager) cleanupOrphans(ctx context.Context) {
	if m.cleaner == nil {
		return
	}
	n, err := m.cleaner.CleanupOrphans(ctx, m.orphanAge)
	if err != nil {
		m.logger.WarnContext(ctx, "orphan cleanup failed", "err", err)
		return
	}
	if n > 0 {
		m.logger.InfoContext(ctx, "closed orphaned spans", "count", n)
	}
}

// Get returns a run by id.
func (m *Manager) Get(runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// Active returns the running run for a root, if any.
func (m *Manager) Active(rootID string) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[rootID]
	if !ok {
		return nil, false
	}
	return m.runs[id], true
}

// List returns every known run, newest first.
func (m *Manager) List() []*Run {
	m.mu.Lock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Forget drops a finished run from the registry.
func (m *Manager) Forget(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	select {
	case <-run.done:
	default:
		return fmt.Errorf("%w: %s", domain.ErrRunInProgress, run.RootID)
	}
	delete(m.runs, runID)
	return nil
}

// acquire gets or creates a lock entry and increments its reference count.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// WithLock runs fn while holding the process-local lock for key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()
	return fn(ctx)
}
