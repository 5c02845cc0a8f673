package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/z-tavern/moodchat/internal/handler/ui"
)

// NewRouter wires the local chat UI routes to the session.
func NewRouter(s ui.Session, preview ui.Preview) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	uiHandler := ui.New(s, preview)

	r.Route("/api", func(api chi.Router) {
		uiHandler.RegisterRoutes(api)
	})
	r.Get("/preview.jpg", uiHandler.HandlePreview)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
