package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
	_ "modernc.org/sqlite"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	version    INTEGER NOT NULL,
	expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
`

// SQLiteStore persists session state in a SQLite file shared by every worker
// process on the host. Optimistic concurrency rides on a versioned UPDATE;
// there is no in-process cache, every Load round-trips to the database.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (or creates) the session database at path. A zero ttl
// disables expiry; otherwise rows older than ttl since their last write are
// treated as absent.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize session schema: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*session.State, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM sessions WHERE session_id = ? AND (expires_at IS NULL OR expires_at > ?)`,
		sessionID, time.Now().UnixMilli(),
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return session.NewState(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrUnavailable, sessionID, err)
	}

	state := &session.State{}
	if err := json.Unmarshal([]byte(blob), state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return state, nil
}

// CompareAndSwap implements Store.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, sessionID string, expectedVersion int64, next *session.State) error {
	stored := next.Clone()
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}

	var expiresAt any
	if s.ttl > 0 {
		expiresAt = time.Now().Add(s.ttl).UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin swap %s: %v", ErrUnavailable, sessionID, err)
	}
	defer tx.Rollback()

	// Expired rows count as absent for version accounting.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		sessionID, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("%w: expire %s: %v", ErrUnavailable, sessionID, err)
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (session_id, state, version, expires_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(session_id) DO NOTHING`,
			sessionID, string(blob), stored.Version, expiresAt,
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE sessions SET state = ?, version = ?, expires_at = ? WHERE session_id = ? AND version = ?`,
			string(blob), stored.Version, expiresAt, sessionID, expectedVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("%w: swap %s: %v", ErrUnavailable, sessionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: swap %s: %v", ErrUnavailable, sessionID, err)
	}
	if affected == 0 {
		return ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrUnavailable, sessionID, err)
	}
	return nil
}
