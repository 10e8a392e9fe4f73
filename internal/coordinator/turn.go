package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/store"
	"go.uber.org/zap"
)

// HandleTurn runs one user turn through the state machine: load shared
// state, dispatch to the right handler, evaluate completion probes, and
// persist the outcome under the store's compare-and-swap contract. On a
// version conflict the whole read-evaluate-write sequence is replayed once
// against a fresh load; a second conflict surfaces as ErrRetryTurn.
func (c *Coordinator) HandleTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	state, err := c.loadWithRetry(ctx, in.SessionID)
	if err != nil {
		return c.degradedTurn(ctx, in, err), nil
	}

	result, err := c.processTurn(ctx, state, in)
	if errors.Is(err, store.ErrUnavailable) {
		// The store went away between load and write; the turn still
		// completes read-only, nothing is persisted.
		return c.degradedTurn(ctx, in, err), nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return result, err
	}

	c.logger.Info("session version conflict, replaying turn",
		zap.String("session", in.SessionID))

	state, lerr := c.loadWithRetry(ctx, in.SessionID)
	if lerr != nil {
		return c.degradedTurn(ctx, in, lerr), nil
	}
	result, err = c.processTurn(ctx, state, in)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrRetryTurn
	}
	if errors.Is(err, store.ErrUnavailable) {
		return c.degradedTurn(ctx, in, err), nil
	}
	return result, err
}

func (c *Coordinator) processTurn(ctx context.Context, state *session.State, in TurnInput) (*TurnResult, error) {
	expected := state.Version

	// User intent outranks automatic completion detection.
	if in.ExitRequested {
		return c.processExplicitExit(ctx, state, in, expected)
	}

	if in.StartWorkflow != "" {
		if _, ok := c.guided[in.StartWorkflow]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, in.StartWorkflow)
		}
		if state.Mode == session.ModeGuided && state.GuidedKind != in.StartWorkflow {
			c.logger.Warn("rejecting workflow start while another kind is active",
				zap.String("session", state.SessionID),
				zap.String("active", state.GuidedKind),
				zap.String("requested", in.StartWorkflow))
			return nil, fmt.Errorf("%w: session %s already running %s",
				ErrInvalidTransition, state.SessionID, state.GuidedKind)
		}
		if state.Mode == session.ModeGeneral {
			// Drop progress a previous run of this kind left behind, so
			// the workflow starts from its first step instead of
			// instantly re-completing on stale metadata.
			for key := range state.Meta {
				if strings.HasPrefix(key, in.StartWorkflow+":") {
					delete(state.Meta, key)
				}
			}
			// The flip persists together with this turn's outcome below,
			// so a crashed worker never leaves a half-started workflow.
			state.Mode = session.ModeGuided
			state.GuidedKind = in.StartWorkflow
			state.ExitPending = false
		}
	}

	if state.Mode == session.ModeGuided {
		return c.processGuidedTurn(ctx, state, in, expected)
	}
	return c.processGeneralTurn(ctx, state, in, expected)
}

func (c *Coordinator) processGeneralTurn(ctx context.Context, state *session.State, in TurnInput, expected int64) (*TurnResult, error) {
	out, err := c.general.Handle(ctx, state, in.Message)
	if err != nil {
		return nil, fmt.Errorf("general handler: %w", err)
	}

	// Materialize the session on first contact so every later turn shares
	// one version chain; established general turns are read-only.
	if expected == 0 {
		if err := c.swap(ctx, state, expected); err != nil {
			return nil, err
		}
	}

	return &TurnResult{
		SessionID: state.SessionID,
		Mode:      session.ModeGeneral,
		Reply:     out.Reply,
		RouteHint: session.RouteStay,
	}, nil
}

func (c *Coordinator) processExplicitExit(ctx context.Context, state *session.State, in TurnInput, expected int64) (*TurnResult, error) {
	hint := session.RouteStay
	if state.Mode == session.ModeGuided {
		kind := state.GuidedKind
		// Cancel before completion hands nothing over: the artifacts map is
		// left as-is, inert under general mode.
		state.Mode = session.ModeGeneral
		state.GuidedKind = ""
		state.ExitPending = false
		if err := c.swap(ctx, state, expected); err != nil {
			return nil, err
		}
		c.notify(TransitionEvent{
			SessionID: state.SessionID,
			From:      session.ModeGuided,
			To:        session.ModeGeneral,
			Kind:      kind,
		})
		c.logger.Info("guided workflow cancelled",
			zap.String("session", state.SessionID), zap.String("kind", kind))
		hint = session.RouteSwitchToGeneral
	}

	out, err := c.general.Handle(ctx, state, in.Message)
	if err != nil {
		return nil, fmt.Errorf("general handler: %w", err)
	}
	return &TurnResult{
		SessionID: state.SessionID,
		Mode:      session.ModeGeneral,
		Reply:     out.Reply,
		RouteHint: hint,
	}, nil
}

func (c *Coordinator) processGuidedTurn(ctx context.Context, state *session.State, in TurnInput, expected int64) (*TurnResult, error) {
	kind := state.GuidedKind
	handler, ok := c.guided[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, kind)
	}

	out, err := handler.Handle(ctx, state, in.Message)
	if err != nil {
		return nil, fmt.Errorf("guided handler %s: %w", kind, err)
	}

	// ExitPending survives a failed handoff from an earlier turn, so the
	// flip is retried even if the probe's verdict somehow changed.
	complete := state.ExitPending
	for _, name := range c.probes.Evaluate(state) {
		if name == kind {
			complete = true
			continue
		}
		c.logger.Debug("ignoring probe for inactive workflow kind",
			zap.String("session", state.SessionID),
			zap.String("probe", name),
			zap.String("active", kind))
	}

	if !complete {
		if err := c.swap(ctx, state, expected); err != nil {
			return nil, err
		}
		return &TurnResult{
			SessionID: state.SessionID,
			Mode:      session.ModeGuided,
			Reply:     out.Reply,
			RouteHint: session.RouteStay,
		}, nil
	}

	return c.finishGuidedTurn(ctx, state, out, kind, expected)
}

// finishGuidedTurn runs the exit handoff: artifact bodies are persisted
// first, then a single compare-and-swap records the references and flips the
// mode, so no reader ever observes a half-applied transition.
func (c *Coordinator) finishGuidedTurn(ctx context.Context, state *session.State, out *TurnOutput, kind string, expected int64) (*TurnResult, error) {
	refs, perr := c.persistArtifacts(ctx, state.SessionID, kind, out.Artifacts)
	if perr != nil {
		// Deferred, never lost: stay guided with the exit flagged and let
		// the next turn retry the handoff. The analysis reply still goes
		// out to the user.
		c.logger.Warn("artifact persist failed, deferring mode flip",
			zap.String("session", state.SessionID),
			zap.String("kind", kind),
			zap.Error(perr))
		state.ExitPending = true
		if err := c.swap(ctx, state, expected); err != nil {
			return nil, err
		}
		return &TurnResult{
			SessionID: state.SessionID,
			Mode:      session.ModeGuided,
			Reply:     out.Reply,
			RouteHint: session.RouteStay,
		}, nil
	}

	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		state.AddArtifact(ref)
		names = append(names, ref.Name)
	}
	state.Mode = session.ModeGeneral
	state.GuidedKind = ""
	state.ExitPending = false
	if err := c.swap(ctx, state, expected); err != nil {
		return nil, err
	}

	c.notify(TransitionEvent{
		SessionID: state.SessionID,
		From:      session.ModeGuided,
		To:        session.ModeGeneral,
		Kind:      kind,
		Artifacts: names,
	})
	c.logger.Info("guided workflow completed",
		zap.String("session", state.SessionID),
		zap.String("kind", kind),
		zap.Int("artifacts", len(names)))

	return &TurnResult{
		SessionID: state.SessionID,
		Mode:      session.ModeGeneral,
		Reply:     out.Reply,
		RouteHint: session.RouteSwitchToGeneral,
		Artifacts: names,
	}, nil
}

// persistArtifacts writes this turn's artifact bodies and returns refs whose
// names carry the workflow-kind prefix, keeping them collision-free across
// workflows within one session.
func (c *Coordinator) persistArtifacts(ctx context.Context, sessionID, kind string, artifacts []Artifact) ([]session.ArtifactRef, error) {
	refs := make([]session.ArtifactRef, 0, len(artifacts))
	for _, a := range artifacts {
		key, err := c.artifacts.Put(ctx, sessionID, a.Name, a.Kind, a.Data)
		if err != nil {
			return nil, err
		}
		refs = append(refs, session.ArtifactRef{
			Name:       kind + ":" + a.Name,
			Kind:       a.Kind,
			StorageKey: key,
			CreatedAt:  time.Now().UTC(),
		})
	}
	return refs, nil
}

// degradedTurn is the read-only general fallback taken when the store stays
// unreachable past its retry budget. The request completes; no state is
// written.
func (c *Coordinator) degradedTurn(ctx context.Context, in TurnInput, cause error) *TurnResult {
	c.logger.Warn("session store unavailable, degrading to read-only general mode",
		zap.String("session", in.SessionID), zap.Error(cause))

	result := &TurnResult{
		SessionID: in.SessionID,
		Mode:      session.ModeGeneral,
		RouteHint: session.RouteStay,
		Degraded:  true,
	}
	out, err := c.general.Handle(ctx, session.NewState(in.SessionID), in.Message)
	if err != nil {
		c.logger.Error("general handler failed during degraded turn",
			zap.String("session", in.SessionID), zap.Error(err))
		return result
	}
	result.Reply = out.Reply
	return result
}
