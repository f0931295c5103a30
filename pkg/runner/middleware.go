package runner

import (
	"context"
	"strings"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
)

// ConfirmPolicy adapts a function to ports.Confirmer.
type ConfirmPolicy func(ctx context.Context, p domain.ActionPreview) (bool, error)

func (f ConfirmPolicy) Confirm(ctx context.Context, p domain.ActionPreview) (bool, error) {
	return f(ctx, p)
}

// ConfirmChain approves only when every confirmer approves. The first
// rejection or error stops the chain.
func ConfirmChain(confirmers ...ports.Confirmer) ConfirmPolicy {
	return func(ctx context.Context, p domain.ActionPreview) (bool, error) {
		for _, c := range confirmers {
			ok, err := c.Confirm(ctx, p)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// AutoConfirm approves everything.
func AutoConfirm() ConfirmPolicy {
	return func(context.Context, domain.ActionPreview) (bool, error) {
		return true, nil
	}
}

// RejectAll rejects every preview, which turns a run into a dry run for
// actions.
func RejectAll() ConfirmPolicy {
	return func(context.Context, domain.ActionPreview) (bool, error) {
		return false, nil
	}
}

// MaxChildren rejects previews that would create more than n children.
func MaxChildren(n int) ConfirmPolicy {
	return func(_ context.Context, p domain.ActionPreview) (bool, error) {
		count := len(p.ChildNames)
		if count == 0 {
			count = len(p.Items)
		}
		return count <= n, nil
	}
}

// QuestionPolicy adapts a function to ports.QuestionAsker.
type QuestionPolicy func(ctx context.Context, q domain.QuestionInterrupt) (*string, error)

func (f QuestionPolicy) AskQuestion(ctx context.Context, q domain.QuestionInterrupt) (*string, error) {
	return f(ctx, q)
}

// ScriptedAnswers answers questions from a map keyed by variable name, bare
// or qualified, then by node id. Unmatched questions go to fallback; with no
// fallback they are cancelled.
func ScriptedAnswers(answers map[string]string, fallback ports.QuestionAsker) QuestionPolicy {
	return func(ctx context.Context, q domain.QuestionInterrupt) (*string, error) {
		for _, key := range scriptKeys(q) {
			if a, ok := answers[key]; ok {
				return &a, nil
			}
		}
		if fallback != nil {
			return fallback.AskQuestion(ctx, q)
		}
		return nil, nil
	}
}

func scriptKeys(q domain.QuestionInterrupt) []string {
	keys := []string{q.VariableName}
	if bare, ok := strings.CutPrefix(q.VariableName, "q."+q.NodeID+"."); ok {
		keys = append(keys, bare)
	}
	return append(keys, q.NodeID)
}
