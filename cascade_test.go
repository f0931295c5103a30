package cascade_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/cascade"
	"github.com/aretw0/cascade/internal/config"
	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/internal/testutils"
	"github.com/aretw0/cascade/pkg/adapters/memory"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/runner"
	"github.com/aretw0/cascade/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo() ports.GenerationProvider {
	return testutils.Echo(domain.Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000})
}

func tree() *domain.PromptNode {
	return &domain.PromptNode{ID: "root", Name: "Root", UserPrompt: "topic", Children: []*domain.PromptNode{
		{ID: "a", Name: "A", UserPrompt: "next"},
	}}
}

func TestOpen_MemoryCascade(t *testing.T) {
	reg := prometheus.NewRegistry()
	sys, err := cascade.Open(config.Default(),
		cascade.WithProvider(echo()),
		cascade.WithStore(memory.NewStore(tree())),
		cascade.WithMetrics(reg),
	)
	require.NoError(t, err)
	defer sys.Close()

	eng := sys.NewEngine(runtime.WithConfirmer(runner.AutoConfirm()))
	res, err := eng.RunCascade(context.Background(), "root", sys.Options(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, res.Status)
	assert.Equal(t, []string{"root", "a"}, res.VisitOrder())

	ledger, ok := sys.Ledger.(*memory.Ledger)
	require.True(t, ok)
	cost, usage := ledger.Total()
	assert.Equal(t, 4000, usage.TotalTokens)
	assert.Greater(t, cost, 0.0)

	assert.Equal(t, 2.0, testutil.ToFloat64(sys.Metrics.NodeRuns.WithLabelValues("standard", "succeeded")))

	issues, err := sys.Validate(context.Background(), "root")
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store = config.Store{Kind: config.StoreRedis, RedisURL: "redis://" + mr.Addr(), Prefix: "test"}

	sys, err := cascade.Open(cfg, cascade.WithProvider(echo()))
	require.NoError(t, err)
	defer sys.Close()
	require.NotNil(t, sys.Locker)

	ctx := context.Background()
	require.NoError(t, sys.Store.PutTree(ctx, tree()))
	assert.True(t, mr.Exists("test:node:root"))

	mgr := sys.NewSessionManager()
	run, err := mgr.Start(ctx, session.StartRequest{NodeID: "root", Mode: domain.ModeCascade})
	require.NoError(t, err)
	res, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "a"}, res.VisitOrder())
}

func TestOpen_UnknownStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Kind = "tape"
	_, err := cascade.Open(cfg)
	assert.Error(t, err)
}

func TestOpen_ProtectedStore(t *testing.T) {
	raw := memory.NewStore(tree())
	cfg := config.Default()
	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	cfg.Store.RedactKeys = []string{"secret"}

	sys, err := cascade.Open(cfg, cascade.WithProvider(echo()), cascade.WithStore(raw))
	require.NoError(t, err)
	defer sys.Close()

	ctx := context.Background()
	_, err = sys.NewEngine(runtime.WithConfirmer(runner.AutoConfirm())).RunCascade(ctx, "root", sys.Options(nil))
	require.NoError(t, err)

	stored, err := raw.GetNode(ctx, "root")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.LastResponse, "enc:v1:"))

	plain, err := sys.Store.GetNode(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, "re:topic", plain.LastResponse)
}
