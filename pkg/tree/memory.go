package tree

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type childKey struct {
	scope  int64
	parent int64
}

type MemoryStore struct {
	mu       sync.RWMutex
	nodes    map[int64]Node
	children map[childKey][]int64
	nextID   int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:    make(map[int64]Node),
		children: make(map[childKey][]int64),
		nextID:   1,
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id int64) (Node, error) {
	if id == RootID {
		return Root(), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return clone(n), nil
}

func (s *MemoryStore) ListChildren(_ context.Context, scopeID, dirID int64, page, pageSize int) (Page, error) {
	if pageSize <= 0 || page < 0 {
		return Page{}, errWrap(ErrValidation, "bad page request")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.children[childKey{scopeID, dirID}]
	out := Page{Total: len(ids), TotalPages: totalPages(len(ids), pageSize)}
	start := page * pageSize
	if start >= len(ids) {
		return out, nil
	}
	end := min(start+pageSize, len(ids))
	out.Items = make([]Node, 0, end-start)
	for _, id := range ids[start:end] {
		out.Items = append(out.Items, clone(s.nodes[id]))
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, n Node) (Node, error) {
	if err := validate(&n); err != nil {
		return Node{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := Root()
	if n.ParentID != RootID {
		p, ok := s.nodes[n.ParentID]
		if !ok {
			return Node{}, errWrap(ErrValidation, fmt.Sprintf("parent %d does not exist", n.ParentID))
		}
		parent = p
	}
	if err := checkParent(parent, n.ScopeID); err != nil {
		return Node{}, err
	}

	n = clone(n)
	n.ID = s.nextID
	s.nextID++
	n.CreatedAt = s.now()
	s.nodes[n.ID] = n

	// ids are monotonic and CreatedAt is non-decreasing, so appending keeps
	// the (created_at, id) order unless the clock moved backwards.
	key := childKey{n.ScopeID, n.ParentID}
	s.children[key] = append(s.children[key], n.ID)
	if ids := s.children[key]; len(ids) > 1 && s.nodes[ids[len(ids)-2]].CreatedAt.After(n.CreatedAt) {
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := s.nodes[ids[i]], s.nodes[ids[j]]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
	}
	return clone(n), nil
}

func (s *MemoryStore) Remove(_ context.Context, scopeID, id int64) error {
	if id == RootID {
		return fmt.Errorf("%w: root cannot be removed", ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok || n.ScopeID != scopeID {
		return fmt.Errorf("%w: id %d in scope %d", ErrNotFound, id, scopeID)
	}
	if n.IsDir() && len(s.children[childKey{scopeID, id}]) > 0 {
		return errWrap(ErrPrecondition, fmt.Sprintf("directory %d is not empty", id))
	}

	delete(s.nodes, id)
	delete(s.children, childKey{scopeID, id})
	key := childKey{n.ScopeID, n.ParentID}
	siblings := s.children[key]
	for i, sid := range siblings {
		if sid == id {
			s.children[key] = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	if len(s.children[key]) == 0 {
		delete(s.children, key)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(n Node) Node {
	if n.MimeType != nil {
		m := *n.MimeType
		n.MimeType = &m
	}
	if n.SizeBytes != nil {
		sz := *n.SizeBytes
		n.SizeBytes = &sz
	}
	return n
}
