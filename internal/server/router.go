// Package server exposes the scan pipeline and the session store over a
// small JSON HTTP API.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alainbuyze/stampscan/internal/scan"
	"github.com/alainbuyze/stampscan/internal/session"
)

// App holds the server's collaborators.
type App struct {
	Runner        *scan.Runner
	Recorder      *session.Recorder
	Index         *session.Index
	MaxUploadSize int64
}

// NewRouter builds the API routes.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", app.ScanHandler)
		r.Get("/sessions", app.ListSessionsHandler)
		r.Get("/sessions/{id}", app.GetSessionHandler)
		r.Get("/sessions/{id}/annotated", app.AnnotatedHandler)
		r.Get("/pending", app.ListPendingHandler)
		r.Post("/pending/{name}/resolve", app.ResolvePendingHandler)
	})

	return r
}

// PingHandler is the liveness probe.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}
