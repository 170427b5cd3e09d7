package allowlist

import (
	"context"
	"sync"

	"github.com/congo-pay/token_ledger/internal/account"
)

// Store records accounts that completed a transfer-and-register
// orchestration. Entries are never removed.
type Store interface {
	Contains(ctx context.Context, id account.ID) (bool, error)
	// MarkAllowed adds id and reports whether it was newly inserted.
	MarkAllowed(ctx context.Context, id account.ID) (bool, error)
}

type memoryStore struct {
	mu      sync.RWMutex
	members map[account.ID]struct{}
}

// NewMemory constructs an in-memory allowlist for tests and development.
func NewMemory() Store {
	return &memoryStore{members: make(map[account.ID]struct{})}
}

func (s *memoryStore) Contains(_ context.Context, id account.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[id]
	return ok, nil
}

func (s *memoryStore) MarkAllowed(_ context.Context, id account.ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; ok {
		return false, nil
	}
	s.members[id] = struct{}{}
	return true, nil
}
