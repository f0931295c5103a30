package cascade

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/cascade/internal/config"
	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/adapters/loam"
	"github.com/aretw0/cascade/pkg/adapters/memory"
	"github.com/aretw0/cascade/pkg/adapters/openai"
	"github.com/aretw0/cascade/pkg/adapters/redis"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/observability"
	"github.com/aretw0/cascade/pkg/persistence/middleware"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/pricing"
	"github.com/aretw0/cascade/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Store is a tree store that can also list and import trees.
type Store interface {
	ports.TreeStore
	ports.TreeCatalog
}

// System bundles the adapters selected by a Config.
type System struct {
	Store    Store
	Provider ports.GenerationProvider
	Ledger   ports.CostLedger
	Recorder ports.TraceRecorder
	Cleaner  ports.OrphanCleaner
	Locker   ports.DistributedLocker
	Metrics  *observability.Metrics

	pricer   runtime.Pricer
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
	maxDepth int
	closers  []func() error
}

// Option configures Open.
type Option func(*System)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *System) {
		s.logger = logger
	}
}

// WithProvider replaces the OpenAI client, mostly for tests and offline runs.
func WithProvider(p ports.GenerationProvider) Option {
	return func(s *System) {
		s.Provider = p
	}
}

// WithStore replaces the configured store.
func WithStore(store Store) Option {
	return func(s *System) {
		s.Store = store
	}
}

// WithLifecycleHooks adds hooks to every engine the system builds.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *System) {
		s.hooks = domain.ComposeHooks(s.hooks, hooks)
	}
}

// WithMetrics registers cascade metrics on reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(s *System) {
		s.Metrics = observability.NewMetrics(reg)
	}
}

// Open builds the store, provider and telemetry adapters described by cfg.
func Open(cfg config.Config, opts ...Option) (*System, error) {
	s := &System{
		logger:   logging.NewNop(),
		pricer:   pricing.NewTable(nil),
		maxDepth: cfg.MaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.Store == nil {
		if err := s.openStore(cfg.Store); err != nil {
			return nil, err
		}
	}
	if err := s.protectStore(cfg.Store); err != nil {
		s.Close()
		return nil, err
	}
	if s.Ledger == nil {
		s.Ledger = memory.NewLedger()
	}
	if s.Recorder == nil {
		rec := memory.NewRecorder()
		s.Recorder, s.Cleaner = rec, rec
	}
	if s.Provider == nil {
		s.Provider = openai.New(cfg.Provider.APIKey,
			openai.WithBaseURL(cfg.Provider.BaseURL),
			openai.WithModel(cfg.Provider.Model),
			openai.WithTimeout(cfg.Provider.Timeout),
			openai.WithLogger(s.logger),
		)
	}
	if s.Metrics != nil {
		s.hooks = domain.ComposeHooks(s.hooks, s.Metrics.Hooks())
	}
	return s, nil
}

func (s *System) openStore(cfg config.Store) error {
	switch cfg.Kind {
	case config.StoreLoam:
		store, err := loam.Open(cfg.Dir)
		if err != nil {
			return err
		}
		s.Store = store
	case config.StoreRedis:
		prefix := cfg.Prefix
		if prefix != "" && !strings.HasSuffix(prefix, ":") {
			prefix += ":"
		}
		store, err := redis.New(cfg.RedisURL, redis.WithPrefix(prefix), redis.WithTTL(cfg.TTL))
		if err != nil {
			return err
		}
		client := store.Client()
		rec := redis.NewRecorder(client, prefix, redis.WithRecorderTTL(cfg.TTL))
		s.Store = store
		s.Ledger = redis.NewLedger(client, prefix)
		s.Recorder, s.Cleaner = rec, rec
		s.Locker = redis.NewLocker(client, prefix)
		s.closers = append(s.closers, store.Close)
	case config.StoreMemory, "":
		s.Store = memory.NewStore()
	default:
		return fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
	return nil
}

// protectStore wraps the store with redaction and encryption when configured.
func (s *System) protectStore(cfg config.Store) error {
	var mws []middleware.Middleware
	if len(cfg.RedactKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.RedactKeys)
		if err != nil {
			return err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid encryption key: %w", err)
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return err
		}
		mws = append(mws, enc)
	}
	if len(mws) > 0 {
		s.Store = middleware.Chain(s.Store, mws...)
	}
	return nil
}

// NewEngine builds an engine wired to the system adapters. Extra options
// are applied last.
func (s *System) NewEngine(opts ...runtime.Option) *runtime.Engine {
	base := []runtime.Option{
		runtime.WithLogger(s.logger),
		runtime.WithCostLedger(s.Ledger),
		runtime.WithTraceRecorder(s.Recorder),
		runtime.WithPricer(s.pricer),
		runtime.WithHooks(s.hooks),
	}
	return runtime.NewEngine(s.Store, s.Provider, append(base, opts...)...)
}

// NewSessionManager builds a manager whose runs are driven through Answer
// and Decide. With a redis store the one-run-per-root rule holds across
// replicas.
func (s *System) NewSessionManager(opts ...session.Option) *session.Manager {
	base := []session.Option{
		session.WithLogger(s.logger),
		session.WithOrphanCleanup(s.Cleaner, session.DefaultOrphanAge),
	}
	if s.Locker != nil {
		base = append(base, session.WithLocker(s.Locker, 0))
	}
	factory := func(ci *runtime.ChannelInteractor) *runtime.Engine {
		return s.NewEngine(runtime.WithQuestionAsker(ci), runtime.WithConfirmer(ci))
	}
	return session.NewManager(factory, append(base, opts...)...)
}

// Hooks returns the lifecycle hooks every engine receives. Callers adding
// their own hooks through NewEngine should compose with these.
func (s *System) Hooks() domain.LifecycleHooks {
	return s.hooks
}

// Options returns cascade options with the configured depth limit.
func (s *System) Options(seed map[string]any) domain.CascadeOptions {
	return domain.CascadeOptions{MaxDepth: s.maxDepth, Seed: seed}
}

// Validate loads a tree and checks it against the engine's handlers.
func (s *System) Validate(ctx context.Context, rootID string) ([]runtime.Issue, error) {
	tree, err := s.Store.GetSubtree(ctx, rootID)
	if err != nil {
		return nil, err
	}
	return runtime.ValidateTree(tree, nil), nil
}

// Close releases connections held by the adapters.
func (s *System) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
