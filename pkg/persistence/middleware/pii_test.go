package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/cascade/pkg/adapters/memory"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware(t *testing.T) {
	mw, err := middleware.NewPIIMiddleware([]string{`(?i)email`, `^password$`})
	require.NoError(t, err)

	under := memory.NewStore(&domain.PromptNode{ID: "root"})
	store := middleware.Chain(under, mw)
	ctx := context.Background()

	vars := map[string]any{
		"user_email": "a@b.c",
		"password":   "hunter2",
		"name":       "Ada",
		"profile":    map[string]any{"Email": "x@y.z", "age": 36},
	}
	require.NoError(t, store.UpdateNode(ctx, "root", domain.NodeUpdate{ExtractedVariables: vars}))

	n, err := under.GetNode(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, n.ExtractedVariables["user_email"])
	assert.Equal(t, middleware.Mask, n.ExtractedVariables["password"])
	assert.Equal(t, "Ada", n.ExtractedVariables["name"])
	assert.Equal(t, middleware.Mask, n.ExtractedVariables["profile"].(map[string]any)["Email"])

	assert.Equal(t, "a@b.c", vars["user_email"], "caller's map is not modified")
}

func TestPIIMiddleware_PutTree(t *testing.T) {
	mw, err := middleware.NewPIIMiddleware([]string{"token"})
	require.NoError(t, err)
	under := memory.NewStore()
	store := middleware.Chain(under, mw)

	tree := &domain.PromptNode{ID: "r", ExtractedVariables: map[string]any{"token": "t"}}
	require.NoError(t, store.PutTree(context.Background(), tree))

	n, err := under.GetNode(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, n.ExtractedVariables["token"])
	assert.Equal(t, "t", tree.ExtractedVariables["token"])
}

func TestPIIMiddleware_BadPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_Order(t *testing.T) {
	pii, err := middleware.NewPIIMiddleware([]string{"secret"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: make([]byte, 32)})
	require.NoError(t, err)

	under := memory.NewStore(&domain.PromptNode{ID: "root"})
	store := middleware.Chain(under, pii, enc)
	ctx := context.Background()
	require.NoError(t, store.UpdateNode(ctx, "root", domain.NodeUpdate{ExtractedVariables: map[string]any{"secret": "s", "ok": "v"}}))

	n, err := store.GetNode(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"secret": middleware.Mask, "ok": "v"}, n.ExtractedVariables)
}
