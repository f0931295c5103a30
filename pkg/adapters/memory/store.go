package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.TreeStore and ports.TreeCatalog in memory.
// Safe for concurrent use. Nodes are copied on read and write.
type Store struct {
	mu       sync.RWMutex
	nodes    map[string]*domain.PromptNode
	children map[string][]string
	newID    func() string
}

// NewStore creates a new in-memory store seeded with the given trees.
func NewStore(trees ...*domain.PromptNode) *Store {
	s := &Store{
		nodes:    make(map[string]*domain.PromptNode),
		children: make(map[string][]string),
		newID:    uuid.NewString,
	}
	for _, t := range trees {
		_ = s.PutTree(context.Background(), t)
	}
	return s
}

// GetSubtree returns a copy of rootID and its descendants.
func (s *Store) GetSubtree(ctx context.Context, rootID string) (*domain.PromptNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[rootID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, rootID)
	}
	return s.buildLocked(rootID), nil
}

func (s *Store) buildLocked(id string) *domain.PromptNode {
	n := s.nodes[id].Clone()
	for _, cid := range s.children[id] {
		n.Children = append(n.Children, s.buildLocked(cid))
	}
	return n
}

// GetNode returns a copy of a single node without children.
func (s *Store) GetNode(ctx context.Context, id string) (*domain.PromptNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	return n.Clone(), nil
}

// CreateNode appends a copy of node under parentID.
func (s *Store) CreateNode(ctx context.Context, parentID string, node domain.PromptNode) (*domain.PromptNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if parentID != "" {
		if _, ok := s.nodes[parentID]; !ok {
			return nil, fmt.Errorf("%w: parent %s", domain.ErrNodeNotFound, parentID)
		}
	}
	n := node.Shallow()
	if n.ID == "" {
		n.ID = s.newID()
	}
	if _, exists := s.nodes[n.ID]; exists {
		return nil, fmt.Errorf("node %s already exists", n.ID)
	}
	n.ParentID = parentID
	n.Position = len(s.children[parentID])
	s.nodes[n.ID] = n
	s.children[parentID] = append(s.children[parentID], n.ID)
	return n.Clone(), nil
}

// UpdateNode applies the non-nil fields of update.
func (s *Store) UpdateNode(ctx context.Context, id string, update domain.NodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	applyUpdate(n, update)
	return nil
}

// ListRoots returns copies of all root nodes.
func (s *Store) ListRoots(ctx context.Context) ([]*domain.PromptNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roots := make([]*domain.PromptNode, 0, len(s.children[""]))
	for _, id := range s.children[""] {
		roots = append(roots, s.nodes[id].Clone())
	}
	return roots, nil
}

// PutTree stores a tree, replacing nodes that share IDs.
func (s *Store) PutTree(ctx context.Context, root *domain.PromptNode) error {
	if root == nil || root.ID == "" {
		return fmt.Errorf("tree root needs an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !contains(s.children[root.ParentID], root.ID) {
		s.children[root.ParentID] = append(s.children[root.ParentID], root.ID)
	}
	s.putLocked(root.Clone(), root.ParentID)
	return nil
}

func (s *Store) putLocked(n *domain.PromptNode, parentID string) {
	kids := n.Children
	sort.SliceStable(kids, func(i, j int) bool { return kids[i].Position < kids[j].Position })
	n.Children = nil
	n.ParentID = parentID
	s.nodes[n.ID] = n

	ids := make([]string, 0, len(kids))
	for i, c := range kids {
		c.Position = i
		ids = append(ids, c.ID)
		s.putLocked(c, n.ID)
	}
	s.children[n.ID] = ids
}

func applyUpdate(n *domain.PromptNode, u domain.NodeUpdate) {
	if u.LastResponse != nil {
		n.LastResponse = *u.LastResponse
	}
	if u.LastActionResult != nil {
		r := *u.LastActionResult
		n.LastActionResult = &r
	}
	if u.ExtractedVariables != nil {
		n.ExtractedVariables = (&domain.PromptNode{ExtractedVariables: u.ExtractedVariables}).Clone().ExtractedVariables
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
