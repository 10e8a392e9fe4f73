// Package store holds the shared session-state store contract. Every worker
// process reads and writes session state exclusively through a Store; nothing
// in this package or its implementations may cache deserialized state between
// calls, because workers share no memory with one another.
package store

import (
	"context"
	"errors"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
)

var (
	// ErrConflict reports an optimistic-concurrency collision: the stored
	// version no longer matches the version the caller loaded.
	ErrConflict = errors.New("session version conflict")
	// ErrUnavailable reports that the backing store could not be reached.
	ErrUnavailable = errors.New("session store unavailable")
)

// Store is the client contract for the external session-state backend.
type Store interface {
	// Load returns a freshly deserialized state for the session, or the
	// default general-mode state (version 0) when none is stored.
	Load(ctx context.Context, sessionID string) (*session.State, error)

	// CompareAndSwap persists next with version expectedVersion+1 only if
	// the stored version still equals expectedVersion (0 meaning "not yet
	// stored"). Returns ErrConflict otherwise. The caller's next is not
	// mutated.
	CompareAndSwap(ctx context.Context, sessionID string, expectedVersion int64, next *session.State) error
}
