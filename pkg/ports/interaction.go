package ports

import (
	"context"

	"github.com/aretw0/cascade/pkg/domain"
)

// Confirmer approves or rejects an action preview before any tree mutation.
type Confirmer interface {
	Confirm(ctx context.Context, preview domain.ActionPreview) (bool, error)
}

// QuestionAsker collects the operator's answer to a question interrupt.
// A nil answer means the operator cancelled.
type QuestionAsker interface {
	AskQuestion(ctx context.Context, q domain.QuestionInterrupt) (*string, error)
}
