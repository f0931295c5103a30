package dsl

import (
	"fmt"

	"github.com/aretw0/cascade/pkg/adapters/memory"
	"github.com/aretw0/cascade/pkg/domain"
)

// Builder manages the tree construction.
type Builder struct {
	nodes map[string]*NodeBuilder
	order []string
}

// New creates a new tree builder.
func New() *Builder {
	return &Builder{
		nodes: make(map[string]*NodeBuilder),
	}
}

// Add creates a new node. Nodes without Under become roots.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.PromptNode{ID: id, Name: id},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Tree assembles the tree rooted at rootID. Children keep the order in
// which they were added.
func (b *Builder) Tree(rootID string) (*domain.PromptNode, error) {
	if _, ok := b.nodes[rootID]; !ok {
		return nil, fmt.Errorf("unknown root %q", rootID)
	}
	kids := make(map[string][]string)
	for _, id := range b.order {
		parent := b.nodes[id].node.ParentID
		if parent == "" {
			continue
		}
		if _, ok := b.nodes[parent]; !ok {
			return nil, fmt.Errorf("node %q: unknown parent %q", id, parent)
		}
		kids[parent] = append(kids[parent], id)
	}

	onPath := make(map[string]bool)
	var build func(id string) (*domain.PromptNode, error)
	build = func(id string) (*domain.PromptNode, error) {
		if onPath[id] {
			return nil, fmt.Errorf("cycle through %q", id)
		}
		onPath[id] = true
		defer delete(onPath, id)

		n := b.nodes[id].node.Shallow()
		for i, cid := range kids[id] {
			c, err := build(cid)
			if err != nil {
				return nil, err
			}
			c.Position = i
			n.Children = append(n.Children, c)
		}
		return n, nil
	}
	return build(rootID)
}

// Build stores every root in a new memory store.
func (b *Builder) Build() (*memory.Store, error) {
	var roots []*domain.PromptNode
	for _, id := range b.order {
		if b.nodes[id].node.ParentID != "" {
			continue
		}
		t, err := b.Tree(id)
		if err != nil {
			return nil, fmt.Errorf("failed to build tree %s: %w", id, err)
		}
		roots = append(roots, t)
	}
	if len(roots) == 0 && len(b.nodes) > 0 {
		return nil, fmt.Errorf("no root node")
	}
	return memory.NewStore(roots...), nil
}
