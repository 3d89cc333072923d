package state

import (
	"context"
	"sync"
	"time"

	"github.com/sipeed/picobot/pkg/bus"
)

type MemoryStore struct {
	mu      sync.Mutex
	pending map[bus.ConversationKey]PendingCommand
	closed  bool
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending: make(map[bus.ConversationKey]PendingCommand),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key bus.ConversationKey) (*PendingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	p, ok := s.pending[key]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) Save(_ context.Context, p PendingCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.now()
	}
	s.pending[p.Key] = p
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key bus.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.pending, key)
	return nil
}

func (s *MemoryStore) Take(_ context.Context, key bus.ConversationKey) (*PendingCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	p, ok := s.pending[key]
	if !ok {
		return nil, nil
	}
	delete(s.pending, key)
	return &p, nil
}

func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for k, p := range s.pending {
		if p.UpdatedAt.Before(cutoff) {
			delete(s.pending, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = nil
	return nil
}
