// Package testutils holds fixtures shared by adapter and facade tests.
package testutils

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/cascade/pkg/adapters/loam"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// NewRedis starts an in-process redis and a client connected to it.
// Both are closed when the test ends.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// NewLoamStore opens a Loam-backed tree store in a temporary directory.
func NewLoamStore(t *testing.T) *loam.Store {
	t.Helper()
	store, err := loam.Open(t.TempDir())
	require.NoError(t, err, "Failed to init loam store")
	return store
}

// Echo answers every prompt with "re:" and the resolved user prompt,
// reporting usage on each call.
func Echo(usage domain.Usage) ports.GenerationProvider {
	return ports.GenerationFunc(func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
		return &domain.GenerationResponse{
			Model:    "gpt-4o-mini",
			Response: "re:" + req.UserPrompt,
			Usage:    usage,
		}, nil
	})
}
