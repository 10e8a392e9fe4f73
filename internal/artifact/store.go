// Package artifact stores per-session computed outputs (result tables,
// rendered visualization fragments) behind a content-addressed key. Bodies
// live here; the session store only ever records references.
package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
	"github.com/viant/afs"
)

// Store writes artifact bodies beneath a base URL. Any scheme the afs
// service understands works: file:// for a shared volume, mem:// in tests,
// an object-store scheme in production.
type Store struct {
	fs      afs.Service
	baseURL string
}

// NewStore returns an artifact store rooted at baseURL.
func NewStore(baseURL string) *Store {
	return &Store{
		fs:      afs.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Put persists data for a session-scoped artifact and returns its storage
// key. The key embeds a content hash, so re-writing identical bytes is
// idempotent and a ref never observes a partially replaced body.
func (s *Store) Put(ctx context.Context, sessionID, name string, kind session.ArtifactKind, data []byte) (string, error) {
	if sessionID == "" || name == "" {
		return "", fmt.Errorf("artifact put: session id and name are required")
	}

	sum := sha256.Sum256(data)
	key := fmt.Sprintf("%s/%s/%s-%x", sessionID, kind, sanitizeName(name), sum[:8])
	if err := s.fs.Upload(ctx, s.urlFor(key), 0o644, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("upload artifact %s for session %s: %w", name, sessionID, err)
	}
	return key, nil
}

// Get resolves a storage key produced by Put back to the artifact bytes.
func (s *Store) Get(ctx context.Context, storageKey string) ([]byte, error) {
	data, err := s.fs.DownloadWithURL(ctx, s.urlFor(storageKey))
	if err != nil {
		return nil, fmt.Errorf("download artifact %s: %w", storageKey, err)
	}
	return data, nil
}

// Exists reports whether a storage key resolves to a stored body.
func (s *Store) Exists(ctx context.Context, storageKey string) (bool, error) {
	return s.fs.Exists(ctx, s.urlFor(storageKey))
}

func (s *Store) urlFor(key string) string {
	return s.baseURL + "/" + key
}

// sanitizeName keeps storage keys path-safe without losing readability.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}
