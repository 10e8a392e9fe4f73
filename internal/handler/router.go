package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/handler/events"
	sessionHandler "github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/handler/session"
	middlewarePkg "github.com/BernardOforiBoateng/chat-mrpt-sub014/internal/middleware"
)

// NewRouter wires HTTP routes to the coordination core.
func NewRouter(sessions *sessionHandler.Handler, hub *events.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		sessions.RegisterRoutes(api)
		hub.RegisterRoutes(api)
	})

	return r
}
