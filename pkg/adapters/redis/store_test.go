package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cascade/internal/testutils"
	"github.com/aretw0/cascade/pkg/adapters/redis"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Contract(t *testing.T) {
	_, client := testutils.NewRedis(t)
	ports.RunTreeStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := testutils.NewRedis(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	tree := &domain.PromptNode{ID: "root", Children: []*domain.PromptNode{{ID: "child"}}}
	require.NoError(t, store.PutTree(ctx, tree))

	assert.True(t, mr.Exists("custom:app:node:root"))
	assert.True(t, mr.Exists("custom:app:node:child"))
	assert.True(t, mr.Exists("custom:app:children:root"))
	assert.True(t, mr.Exists("custom:app:roots"))

	roots, err := store.ListRoots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "root", roots[0].ID)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := testutils.NewRedis(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	require.NoError(t, store.PutTree(ctx, &domain.PromptNode{ID: "short-lived"}))
	_, err := store.GetNode(ctx, "short-lived")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = store.GetNode(ctx, "short-lived")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
	roots, err := store.ListRoots(ctx)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

func TestRedisStore_PutTreeReplacesChildren(t *testing.T) {
	_, client := testutils.NewRedis(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	require.NoError(t, store.PutTree(ctx, &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{
		{ID: "b", Position: 1}, {ID: "a", Position: 0},
	}}))
	got, err := store.GetSubtree(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got.Children, 2)
	assert.Equal(t, "a", got.Children[0].ID)
	assert.Equal(t, 1, got.Children[1].Position)

	require.NoError(t, store.PutTree(ctx, &domain.PromptNode{ID: "r", Children: []*domain.PromptNode{{ID: "c"}}}))
	got, err = store.GetSubtree(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got.Children, 1)
	assert.Equal(t, "c", got.Children[0].ID)

	roots, err := store.ListRoots(ctx)
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}

func TestRedisStore_CreateRoot(t *testing.T) {
	_, client := testutils.NewRedis(t)
	store := redis.NewFromClient(client)
	ctx := context.Background()

	created, err := store.CreateNode(ctx, "", domain.PromptNode{ID: "fresh", Name: "Fresh"})
	require.NoError(t, err)
	assert.Empty(t, created.ParentID)

	_, err = store.CreateNode(ctx, "", domain.PromptNode{ID: "fresh"})
	assert.Error(t, err)

	roots, err := store.ListRoots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Fresh", roots[0].Name)
}

func TestRedisLedger(t *testing.T) {
	_, client := testutils.NewRedis(t)
	ledger := redis.NewLedger(client, "")
	ctx := context.Background()

	require.NoError(t, ledger.RecordCost(ctx, domain.CostRecord{NodeID: "a", Model: "m", CostUSD: 0.25,
		Usage: domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}))
	require.NoError(t, ledger.RecordCost(ctx, domain.CostRecord{NodeID: "b", Model: "m", CostUSD: 0.5,
		Usage: domain.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}}))

	records, err := ledger.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].NodeID)

	usd, usage, err := ledger.Total(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, usd, 1e-9)
	assert.Equal(t, 17, usage.TotalTokens)
	assert.Equal(t, 11, usage.PromptTokens)
}

func TestRedisRecorder(t *testing.T) {
	_, client := testutils.NewRedis(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rec := redis.NewRecorder(client, "", redis.WithRecorderClock(clock))
	ctx := context.Background()

	traceID, err := rec.StartTrace(ctx, domain.TraceStart{RootNodeID: "root", Mode: domain.ModeCascade})
	require.NoError(t, err)
	ok, err := rec.CreateSpan(ctx, traceID, domain.SpanStart{NodeID: "a"})
	require.NoError(t, err)
	bad, err := rec.CreateSpan(ctx, traceID, domain.SpanStart{NodeID: "b"})
	require.NoError(t, err)
	stuck, err := rec.CreateSpan(ctx, traceID, domain.SpanStart{NodeID: "c"})
	require.NoError(t, err)

	require.NoError(t, rec.CompleteSpan(ctx, ok, domain.SpanCompletion{Output: "done"}))
	require.NoError(t, rec.FailSpan(ctx, bad, domain.ErrorEvidence{Type: "generation_failed"}))
	require.NoError(t, rec.CompleteTrace(ctx, traceID, domain.SpanError))

	_, err = rec.CreateSpan(ctx, "missing", domain.SpanStart{})
	assert.Error(t, err)

	n, err := rec.CleanupOrphans(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	now = now.Add(time.Hour)
	n, err = rec.CleanupOrphans(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	trace, err := rec.Trace(ctx, traceID)
	require.NoError(t, err)
	assert.Equal(t, domain.SpanError, trace.Status)
	assert.NotNil(t, trace.EndedAt)

	spans, err := rec.Spans(ctx, traceID)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	assert.Equal(t, domain.SpanSuccess, spans[0].Status)
	assert.Equal(t, "done", spans[0].Completion.Output)
	assert.Equal(t, "generation_failed", spans[1].Error.Type)
	assert.Equal(t, stuck, spans[2].ID)
	assert.Equal(t, "orphaned", spans[2].Error.Type)
}
