package ports

import (
	"context"

	"github.com/aretw0/cascade/pkg/domain"
)

// GenerationProvider produces a response for a resolved request.
// A reply with Interrupt set means the model asked the operator a question.
type GenerationProvider interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error)
}

// GenerationFunc adapts a function to GenerationProvider.
type GenerationFunc func(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error)

func (f GenerationFunc) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResponse, error) {
	return f(ctx, req)
}
