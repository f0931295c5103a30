package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/loam"
	"github.com/google/uuid"
)

// Store implements ports.TreeStore and ports.TreeCatalog over a directory of
// markdown documents managed by Loam. One document per node; the tree shape
// lives in the parent_id and position frontmatter keys.
type Store struct {
	repo  *loam.TypedRepository[NodeMetadata]
	mu    sync.Mutex
	newID func() string
}

// New wraps an existing typed repository.
func New(repo *loam.TypedRepository[NodeMetadata]) *Store {
	return &Store{repo: repo, newID: uuid.NewString}
}

// Open initialises a Loam repository at dir without versioning.
func Open(dir string, opts ...loam.Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	base := []loam.Option{loam.WithVersioning(false), loam.WithForceTemp(false)}
	repo, err := loam.Init(abs, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[NodeMetadata](repo)), nil
}

// GetNode returns a single node. Any lookup failure is reported as not found.
func (s *Store) GetNode(ctx context.Context, id string) (*domain.PromptNode, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrNodeNotFound, id, err)
	}
	return s.decode(doc.ID, doc.Data, doc.Content)
}

// GetSubtree lists the repository once and assembles the tree in memory.
func (s *Store) GetSubtree(ctx context.Context, rootID string) (*domain.PromptNode, error) {
	nodes, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.PromptNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	root, ok := byID[rootID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, rootID)
	}
	kids := childIndex(nodes)
	var attach func(n *domain.PromptNode)
	attach = func(n *domain.PromptNode) {
		n.Children = kids[n.ID]
		for _, c := range n.Children {
			attach(c)
		}
	}
	attach(root)
	return root, nil
}

// CreateNode appends node under parentID.
func (s *Store) CreateNode(ctx context.Context, parentID string, node domain.PromptNode) (*domain.PromptNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	n := node.Shallow()
	if n.ID == "" {
		n.ID = s.newID()
	}
	parentFound := parentID == ""
	for _, existing := range nodes {
		if existing.ID == n.ID {
			return nil, fmt.Errorf("node %s already exists", n.ID)
		}
		if existing.ID == parentID {
			parentFound = true
		}
	}
	if !parentFound {
		return nil, fmt.Errorf("%w: parent %s", domain.ErrNodeNotFound, parentID)
	}
	n.ParentID = parentID
	n.Position = len(childIndex(nodes)[parentID])
	if err := s.save(ctx, n); err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// UpdateNode applies the non-nil fields of update.
func (s *Store) UpdateNode(ctx context.Context, id string, update domain.NodeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}
	if update.LastResponse != nil {
		n.LastResponse = *update.LastResponse
	}
	if update.LastActionResult != nil {
		r := *update.LastActionResult
		n.LastActionResult = &r
	}
	if update.ExtractedVariables != nil {
		n.ExtractedVariables = update.ExtractedVariables
	}
	return s.save(ctx, n)
}

// ListRoots returns every node without a parent, ordered by position then id.
func (s *Store) ListRoots(ctx context.Context) ([]*domain.PromptNode, error) {
	nodes, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return childIndex(nodes)[""], nil
}

// PutTree writes every node of the tree as its own document.
func (s *Store) PutTree(ctx context.Context, root *domain.PromptNode) error {
	if root == nil || root.ID == "" {
		return fmt.Errorf("tree root needs an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var put func(n *domain.PromptNode, parentID string) error
	put = func(n *domain.PromptNode, parentID string) error {
		kids := append([]*domain.PromptNode(nil), n.Children...)
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].Position < kids[j].Position })
		flat := n.Shallow()
		flat.ParentID = parentID
		if err := s.save(ctx, flat); err != nil {
			return err
		}
		for i, c := range kids {
			c = c.Clone()
			c.Position = i
			if err := put(c, n.ID); err != nil {
				return err
			}
		}
		return nil
	}
	return put(root, root.ParentID)
}

func (s *Store) save(ctx context.Context, n *domain.PromptNode) error {
	meta, err := toMetadata(n)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", n.ID, err)
	}
	err = s.repo.Save(ctx, &loam.DocumentModel[NodeMetadata]{
		ID:      n.ID,
		Content: n.UserPrompt,
		Data:    meta,
	})
	if err != nil {
		return fmt.Errorf("loam save failed for %s: %w", n.ID, err)
	}
	return nil
}

func (s *Store) all(ctx context.Context) ([]*domain.PromptNode, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	out := make([]*domain.PromptNode, 0, len(docs))
	for _, doc := range docs {
		n, err := s.decode(doc.ID, doc.Data, doc.Content)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) decode(docID string, meta NodeMetadata, content string) (*domain.PromptNode, error) {
	if meta.ID == "" {
		meta.ID = trimExtension(docID)
	}
	if meta.Name == "" {
		meta.Name = meta.ID
	}
	return fromMetadata(meta, strings.TrimSpace(content))
}

// childIndex groups nodes by parent, each group ordered by position then id.
func childIndex(nodes []*domain.PromptNode) map[string][]*domain.PromptNode {
	idx := make(map[string][]*domain.PromptNode)
	for _, n := range nodes {
		idx[n.ParentID] = append(idx[n.ParentID], n)
	}
	for _, group := range idx {
		sort.Slice(group, func(i, j int) bool {
			if group[i].Position != group[j].Position {
				return group[i].Position < group[j].Position
			}
			return group[i].ID < group[j].ID
		})
	}
	return idx
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	return filepath.ToSlash(strings.TrimSuffix(id, ext))
}
