package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskrelay/dispatch-api/internal/api"
	apiMiddleware "github.com/taskrelay/dispatch-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware. Returns the configured router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace) // Add trace IDs for improved error handling

	dispatchHandler := api.NewDispatchHandler(app.dispatch)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/hamibot", func(r chi.Router) {
			r.Post("/execute", dispatchHandler.Execute)
			r.Post("/stop", dispatchHandler.Stop)
			r.Get("/log", dispatchHandler.Log)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("OK"))
		if err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
