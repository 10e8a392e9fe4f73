// Package coordinator implements the mode-transition state machine that lets
// a pool of share-nothing workers agree on whether a session is in a guided
// analysis workflow or in general chat, and hands computed artifacts over
// when a session leaves the guided mode. All cross-request state lives in the
// external session store; a Coordinator instance holds only configuration.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/probe"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrRetryTurn reports two back-to-back version conflicts; the caller
	// should ask the user to resend rather than risk a lost update.
	ErrRetryTurn = errors.New("concurrent session update, please retry")
	// ErrInvalidTransition reports a start request for a workflow kind while
	// a different kind is already active.
	ErrInvalidTransition = errors.New("invalid mode transition")
	// ErrUnknownWorkflow reports a start request for an unregistered kind.
	ErrUnknownWorkflow = errors.New("unknown guided workflow kind")
)

// ArtifactStore is the slice of the artifact store the coordinator needs for
// the exit handoff.
type ArtifactStore interface {
	Put(ctx context.Context, sessionID, name string, kind session.ArtifactKind, data []byte) (string, error)
	Get(ctx context.Context, storageKey string) ([]byte, error)
}

// Artifact is a computed output produced by a guided handler on one turn.
type Artifact struct {
	Name string
	Kind session.ArtifactKind
	Data []byte
}

// TurnOutput is what a handler produced for one turn.
type TurnOutput struct {
	Reply     string
	Artifacts []Artifact
}

// TurnHandler produces the conversational response for a turn. Guided
// handlers may record workflow progress in state.Meta; the coordinator
// persists those mutations together with any mode transition.
type TurnHandler interface {
	Handle(ctx context.Context, state *session.State, message string) (*TurnOutput, error)
}

// TurnHandlerFunc adapts a function to the TurnHandler interface.
type TurnHandlerFunc func(ctx context.Context, state *session.State, message string) (*TurnOutput, error)

// Handle implements TurnHandler.
func (f TurnHandlerFunc) Handle(ctx context.Context, state *session.State, message string) (*TurnOutput, error) {
	return f(ctx, state, message)
}

// TurnInput is one inbound user message plus the dispatcher's reading of it.
type TurnInput struct {
	SessionID string
	Message   string
	// StartWorkflow carries the workflow kind when the dispatcher detected
	// an explicit request to begin a guided analysis.
	StartWorkflow string
	// ExitRequested is set when the user issued an explicit cancel. It takes
	// precedence over probe-driven completion on the same turn.
	ExitRequested bool
}

// TurnResult is the outcome of one turn. RouteHint and Artifacts form the
// single-turn signal to the dispatcher; they are never persisted.
type TurnResult struct {
	SessionID string            `json:"sessionId"`
	Mode      session.Mode      `json:"mode"`
	Reply     string            `json:"reply"`
	RouteHint session.RouteHint `json:"routeHint"`
	Artifacts []string          `json:"artifacts,omitempty"`
	// Degraded marks a read-only general-mode fallback taken because the
	// session store was unreachable.
	Degraded bool `json:"degraded,omitempty"`
}

// TransitionEvent describes a committed mode transition.
type TransitionEvent struct {
	SessionID string       `json:"sessionId"`
	From      session.Mode `json:"from"`
	To        session.Mode `json:"to"`
	Kind      string       `json:"kind,omitempty"`
	Artifacts []string     `json:"artifacts,omitempty"`
	At        time.Time    `json:"at"`
}

// TransitionListener observes committed transitions, e.g. to feed a UI event
// stream. Listeners run synchronously after the state write succeeds.
type TransitionListener func(TransitionEvent)

// Options bound the coordinator's store calls.
type Options struct {
	// StoreTimeout caps each individual load/swap call.
	StoreTimeout time.Duration
	// MaxAttempts bounds load retries when the store is unreachable.
	MaxAttempts int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 2 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = 100 * time.Millisecond
	}
	return o
}

// Coordinator governs mode transitions for every session. It is safe for
// concurrent use; it keeps no per-session state of its own.
type Coordinator struct {
	store     store.Store
	probes    *probe.Registry
	artifacts ArtifactStore
	general   TurnHandler
	guided    map[string]TurnHandler
	listeners []TransitionListener
	logger    *zap.Logger
	opts      Options
}

// New wires a coordinator. The general handler answers every turn outside a
// guided workflow; guided handlers are added via RegisterWorkflow before
// serving begins.
func New(st store.Store, probes *probe.Registry, artifacts ArtifactStore, general TurnHandler, logger *zap.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:     st,
		probes:    probes,
		artifacts: artifacts,
		general:   general,
		guided:    make(map[string]TurnHandler),
		logger:    logger,
		opts:      opts.withDefaults(),
	}
}

// RegisterWorkflow adds the handler for one guided workflow kind. Like probe
// registration this happens once at process start.
func (c *Coordinator) RegisterWorkflow(kind string, h TurnHandler) error {
	if kind == "" {
		return fmt.Errorf("workflow kind is required")
	}
	if h == nil {
		return fmt.Errorf("workflow %s: nil handler", kind)
	}
	if _, exists := c.guided[kind]; exists {
		return fmt.Errorf("workflow %s already registered", kind)
	}
	c.guided[kind] = h
	return nil
}

// OnTransition subscribes a listener to committed mode transitions. Must be
// called before serving begins.
func (c *Coordinator) OnTransition(l TransitionListener) {
	c.listeners = append(c.listeners, l)
}

// CurrentMode answers the dispatcher's routing question from the shared
// store. When the store is unreachable it reports the general-mode fallback
// alongside the error.
func (c *Coordinator) CurrentMode(ctx context.Context, sessionID string) (session.Mode, error) {
	state, err := c.loadWithRetry(ctx, sessionID)
	if err != nil {
		return session.ModeGeneral, err
	}
	return state.Mode, nil
}

func (c *Coordinator) loadWithRetry(ctx context.Context, sessionID string) (*session.State, error) {
	delay := c.opts.RetryBaseDelay
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, ctx.Err())
			}
		}

		cctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
		state, err := c.store.Load(cctx, sessionID)
		cancel()
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Coordinator) swap(ctx context.Context, state *session.State, expected int64) error {
	if err := state.Validate(); err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()
	if err := c.store.CompareAndSwap(cctx, state.SessionID, expected, state); err != nil {
		return err
	}
	state.Version = expected + 1
	return nil
}

func (c *Coordinator) notify(ev TransitionEvent) {
	ev.At = time.Now().UTC()
	for _, l := range c.listeners {
		l(ev)
	}
}
