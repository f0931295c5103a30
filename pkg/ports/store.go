package ports

import (
	"context"

	"github.com/aretw0/cascade/pkg/domain"
)

// TreeStore defines the persistence operations the engine needs.
type TreeStore interface {
	// GetSubtree returns the node and all of its descendants, children ordered by Position.
	// Returns domain.ErrNodeNotFound if the root does not exist.
	GetSubtree(ctx context.Context, rootID string) (*domain.PromptNode, error)

	// GetNode returns a single node without its children.
	GetNode(ctx context.Context, id string) (*domain.PromptNode, error)

	// CreateNode appends a child under parentID. An empty parentID creates a root.
	// The store assigns ID (when empty), ParentID and Position.
	CreateNode(ctx context.Context, parentID string, node domain.PromptNode) (*domain.PromptNode, error)

	// UpdateNode applies the non-nil fields of update.
	UpdateNode(ctx context.Context, id string, update domain.NodeUpdate) error
}

// TreeCatalog is implemented by stores that can enumerate and import whole trees.
type TreeCatalog interface {
	// ListRoots returns every root node without children.
	ListRoots(ctx context.Context) ([]*domain.PromptNode, error)

	// PutTree stores a tree as-is, replacing nodes with the same IDs.
	PutTree(ctx context.Context, root *domain.PromptNode) error
}
