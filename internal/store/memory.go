package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
)

// MemoryStore keeps serialized session state in a process-local map. It
// stands in for the shared backend in tests and single-node runs; multiple
// coordinator instances pointed at one MemoryStore behave like independent
// workers sharing an external store, because every Load deserializes a fresh
// value and no *session.State ever escapes the map.
type MemoryStore struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	versions map[string]int64
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:    make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*session.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	m.mu.Lock()
	blob, ok := m.blobs[sessionID]
	m.mu.Unlock()

	if !ok {
		return session.NewState(sessionID), nil
	}

	state := &session.State{}
	if err := json.Unmarshal(blob, state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return state, nil
}

// CompareAndSwap implements Store.
func (m *MemoryStore) CompareAndSwap(ctx context.Context, sessionID string, expectedVersion int64, next *session.State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	stored := next.Clone()
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.versions[sessionID] != expectedVersion {
		return ErrConflict
	}
	m.blobs[sessionID] = blob
	m.versions[sessionID] = stored.Version
	return nil
}
