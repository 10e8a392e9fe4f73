package session

import (
	"fmt"
	"time"
)

// Mode is the conversational mode a session is currently in.
type Mode string

const (
	// ModeGeneral routes messages to the free-form chat handler.
	ModeGeneral Mode = "general"
	// ModeGuided routes messages to the active guided-workflow handler.
	ModeGuided Mode = "guided"
)

// ArtifactKind classifies a computed output handed over on workflow exit.
type ArtifactKind string

const (
	ArtifactTable         ArtifactKind = "table"
	ArtifactVisualization ArtifactKind = "visualization"
)

// ArtifactRef points at a computed output in the artifact store. Refs are
// immutable once written; replacing an artifact requires a new name.
type ArtifactRef struct {
	Name       string       `json:"name"`
	Kind       ArtifactKind `json:"kind"`
	StorageKey string       `json:"storageKey"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// State is the shared, cross-worker record for one conversation. It lives
// only in the external session store; workers must never hold onto a State
// across requests.
type State struct {
	SessionID   string                 `json:"sessionId"`
	Mode        Mode                   `json:"mode"`
	GuidedKind  string                 `json:"guidedKind,omitempty"`
	Artifacts   map[string]ArtifactRef `json:"artifacts,omitempty"`
	Meta        map[string]string      `json:"meta,omitempty"`
	ExitPending bool                   `json:"exitPending,omitempty"`
	Version     int64                  `json:"version"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// NewState returns the default state a session starts in. Version 0 marks a
// state that has never been persisted.
func NewState(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		Mode:      ModeGeneral,
	}
}

// Clone deep-copies the state so callers can mutate freely before a
// compare-and-swap.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.Artifacts != nil {
		out.Artifacts = make(map[string]ArtifactRef, len(s.Artifacts))
		for k, v := range s.Artifacts {
			out.Artifacts[k] = v
		}
	}
	if s.Meta != nil {
		out.Meta = make(map[string]string, len(s.Meta))
		for k, v := range s.Meta {
			out.Meta[k] = v
		}
	}
	return &out
}

// Validate enforces the mode/kind coupling invariants.
func (s *State) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session state missing session id")
	}
	switch s.Mode {
	case ModeGeneral:
		if s.GuidedKind != "" {
			return fmt.Errorf("session %s: general mode with guided kind %q", s.SessionID, s.GuidedKind)
		}
		if s.ExitPending {
			return fmt.Errorf("session %s: exit pending outside guided mode", s.SessionID)
		}
	case ModeGuided:
		if s.GuidedKind == "" {
			return fmt.Errorf("session %s: guided mode without a workflow kind", s.SessionID)
		}
	default:
		return fmt.Errorf("session %s: unknown mode %q", s.SessionID, s.Mode)
	}
	return nil
}

// SetMeta records a small key/value on the state, allocating lazily.
func (s *State) SetMeta(key, value string) {
	if s.Meta == nil {
		s.Meta = make(map[string]string)
	}
	s.Meta[key] = value
}

// AddArtifact records an artifact reference, allocating lazily.
func (s *State) AddArtifact(ref ArtifactRef) {
	if s.Artifacts == nil {
		s.Artifacts = make(map[string]ArtifactRef)
	}
	s.Artifacts[ref.Name] = ref
}
