package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/coordinator"
	sessionModel "github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/model/session"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/store"
	"github.com/BernardOforiBoateng/chat-mrpt-sub014/pkg/utils"
)

// Handler exposes the coordination core over HTTP: the turn endpoint the
// dispatcher calls plus session/artifact inspection routes for the UI.
type Handler struct {
	coord     *coordinator.Coordinator
	store     store.Store
	artifacts coordinator.ArtifactStore
	logger    *zap.Logger
}

// New creates the session handler.
func New(coord *coordinator.Coordinator, st store.Store, artifacts coordinator.ArtifactStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{coord: coord, store: st, artifacts: artifacts, logger: logger}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Post("/session/{sessionID}/turn", h.handleTurn)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Get("/session/{sessionID}/artifacts/{name}", h.handleGetArtifact)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	// State materializes lazily on the first turn; only the id is minted here.
	utils.RespondJSON(w, http.StatusCreated, map[string]string{"sessionId": uuid.NewString()})
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Message       string `json:"message"`
		StartWorkflow string `json:"startWorkflow"`
		Cancel        bool   `json:"cancel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" && !payload.Cancel {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.coord.HandleTurn(r.Context(), coordinator.TurnInput{
		SessionID:     sessionID,
		Message:       payload.Message,
		StartWorkflow: payload.StartWorkflow,
		ExitRequested: payload.Cancel,
	})
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrRetryTurn):
			utils.RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, coordinator.ErrInvalidTransition),
			errors.Is(err, coordinator.ErrUnknownWorkflow):
			utils.RespondError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("turn failed",
				zap.String("session", sessionID), zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, "turn failed")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	state, err := h.store.Load(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			utils.RespondError(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}
		h.logger.Error("load session failed",
			zap.String("session", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "load session failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	name := chi.URLParam(r, "name")

	state, err := h.store.Load(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}

	ref, ok := state.Artifacts[name]
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "artifact not found")
		return
	}

	data, err := h.artifacts.Get(r.Context(), ref.StorageKey)
	if err != nil {
		h.logger.Error("resolve artifact failed",
			zap.String("session", sessionID),
			zap.String("artifact", name),
			zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "resolve artifact failed")
		return
	}

	utils.RespondBytes(w, http.StatusOK, contentTypeFor(ref.Kind), data)
}

func contentTypeFor(kind sessionModel.ArtifactKind) string {
	switch kind {
	case sessionModel.ArtifactVisualization:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
