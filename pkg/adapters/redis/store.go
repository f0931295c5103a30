package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/cascade/pkg/domain"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "cascade:"

// Store implements ports.TreeStore and ports.TreeCatalog using Redis.
//
// Layout:
//
//	<prefix>node:<id>        JSON node without children
//	<prefix>children:<id>    ZSET of child ids scored by position
//	<prefix>roots            ZSET of root ids
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	newID  func() string
}

type Option func(*Store)

// WithTTL sets the expiration of node keys. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store from a redis URL such as redis://localhost:6379/0.
func New(url string, opts ...Option) (*Store, error) {
	o, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewFromClient(backend.NewClient(o), opts...), nil
}

// NewFromClient creates a store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying client so ledgers and lockers can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) nodeKey(id string) string     { return s.prefix + "node:" + id }
func (s *Store) childrenKey(id string) string { return s.prefix + "children:" + id }
func (s *Store) rootsKey() string             { return s.prefix + "roots" }

// siblingsKey is the ZSET a node with parentID belongs to.
func (s *Store) siblingsKey(parentID string) string {
	if parentID == "" {
		return s.rootsKey()
	}
	return s.childrenKey(parentID)
}

// GetSubtree loads the tree level by level, one pipeline per level.
func (s *Store) GetSubtree(ctx context.Context, rootID string) (*domain.PromptNode, error) {
	root, err := s.GetNode(ctx, rootID)
	if err != nil {
		return nil, err
	}

	level := []*domain.PromptNode{root}
	for len(level) > 0 {
		pipe := s.client.Pipeline()
		cmds := make([]*backend.StringSliceCmd, len(level))
		for i, n := range level {
			cmds[i] = pipe.ZRange(ctx, s.childrenKey(n.ID), 0, -1)
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("failed to read children: %w", err)
		}

		var next []*domain.PromptNode
		for i, n := range level {
			kids, err := s.loadNodes(ctx, cmds[i].Val())
			if err != nil {
				return nil, err
			}
			n.Children = kids
			next = append(next, kids...)
		}
		level = next
	}
	return root, nil
}

// loadNodes fetches ids with MGET, skipping expired entries.
func (s *Store) loadNodes(ctx context.Context, ids []string) ([]*domain.PromptNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.nodeKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get nodes: %w", err)
	}
	out := make([]*domain.PromptNode, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		n, err := decodeNode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// GetNode returns a single node without children.
func (s *Store) GetNode(ctx context.Context, id string) (*domain.PromptNode, error) {
	raw, err := s.client.Get(ctx, s.nodeKey(id)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decodeNode(raw)
}

// CreateNode appends node under parentID. The sibling set is watched so
// concurrent appends never share a position.
func (s *Store) CreateNode(ctx context.Context, parentID string, node domain.PromptNode) (*domain.PromptNode, error) {
	n := node.Shallow()
	if n.ID == "" {
		n.ID = s.newID()
	}
	n.ParentID = parentID
	siblings := s.siblingsKey(parentID)

	txf := func(tx *backend.Tx) error {
		if parentID != "" {
			ok, err := tx.Exists(ctx, s.nodeKey(parentID)).Result()
			if err != nil {
				return err
			}
			if ok == 0 {
				return fmt.Errorf("%w: parent %s", domain.ErrNodeNotFound, parentID)
			}
		}
		if dup, err := tx.Exists(ctx, s.nodeKey(n.ID)).Result(); err != nil {
			return err
		} else if dup > 0 {
			return fmt.Errorf("node %s already exists", n.ID)
		}
		count, err := tx.ZCard(ctx, siblings).Result()
		if err != nil {
			return err
		}
		n.Position = int(count)
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to marshal node: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p backend.Pipeliner) error {
			p.Set(ctx, s.nodeKey(n.ID), data, s.ttl)
			p.ZAdd(ctx, siblings, backend.Z{Score: float64(n.Position), Member: n.ID})
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, siblings); err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	return n.Clone(), nil
}

// UpdateNode applies the non-nil fields of update.
func (s *Store) UpdateNode(ctx context.Context, id string, update domain.NodeUpdate) error {
	key := s.nodeKey(id)
	txf := func(tx *backend.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, backend.Nil) {
				return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
			}
			return err
		}
		n, err := decodeNode(raw)
		if err != nil {
			return err
		}
		applyUpdate(n, update)
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("failed to marshal node: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p backend.Pipeliner) error {
			p.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, domain.ErrNodeNotFound) {
			return err
		}
		return fmt.Errorf("failed to update node: %w", err)
	}
	return nil
}

// ListRoots returns every root node without children.
func (s *Store) ListRoots(ctx context.Context) ([]*domain.PromptNode, error) {
	ids, err := s.client.ZRange(ctx, s.rootsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	return s.loadNodes(ctx, ids)
}

// PutTree writes the whole tree in a single pipeline, replacing the child
// lists of every node it contains.
func (s *Store) PutTree(ctx context.Context, root *domain.PromptNode) error {
	if root == nil || root.ID == "" {
		return fmt.Errorf("tree root needs an id")
	}
	pipe := s.client.TxPipeline()
	pipe.ZAddNX(ctx, s.siblingsKey(root.ParentID), backend.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: root.ID,
	})
	if err := s.putNode(ctx, pipe, root.Clone(), root.ParentID); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save tree to redis: %w", err)
	}
	return nil
}

func (s *Store) putNode(ctx context.Context, pipe backend.Pipeliner, n *domain.PromptNode, parentID string) error {
	kids := n.Children
	sort.SliceStable(kids, func(i, j int) bool { return kids[i].Position < kids[j].Position })
	n.ParentID = parentID

	data, err := json.Marshal(n.Shallow())
	if err != nil {
		return fmt.Errorf("failed to marshal node %s: %w", n.ID, err)
	}
	pipe.Set(ctx, s.nodeKey(n.ID), data, s.ttl)
	pipe.Del(ctx, s.childrenKey(n.ID))
	for i, c := range kids {
		c.Position = i
		pipe.ZAdd(ctx, s.childrenKey(n.ID), backend.Z{Score: float64(i), Member: c.ID})
		if err := s.putNode(ctx, pipe, c, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeNode(raw string) (*domain.PromptNode, error) {
	var n domain.PromptNode
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node: %w", err)
	}
	return &n, nil
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
		n.ExtractedVariables = u.ExtractedVariables
	}
}
