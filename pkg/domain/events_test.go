package domain_test

import (
	"context"
	"testing"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestComposeHooks_CallsInOrder(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnNodeStart: func(context.Context, *domain.NodeEvent) { calls = append(calls, "a.start") },
	}
	b := domain.LifecycleHooks{
		OnNodeStart: func(context.Context, *domain.NodeEvent) { calls = append(calls, "b.start") },
		OnAction:    func(context.Context, *domain.ActionEvent) { calls = append(calls, "b.action") },
	}

	h := domain.ComposeHooks(a, domain.LifecycleHooks{}, b)
	h.OnNodeStart(context.Background(), &domain.NodeEvent{})
	h.OnAction(context.Background(), &domain.ActionEvent{})

	assert.Equal(t, []string{"a.start", "b.start", "b.action"}, calls)
	assert.Nil(t, h.OnQuestion)
	assert.Nil(t, h.OnNodeFinish)
}
