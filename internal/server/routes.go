package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/graph", s.handleGraph)
		r.Get("/lineage", s.handleLineage)
		r.Get("/projects", s.handleProjects)

		r.Route("/models", func(r chi.Router) {
			r.Get("/", s.handleModels)
			r.Get("/{id}", s.handleModel)
			r.Get("/{id}/lineage", s.handleModelLineage)
			r.Get("/{id}/column-lineage", s.handleColumnLineage)
			r.Get("/{id}/columns/{column}", s.handleColumnFocus)
		})
		r.Get("/columns/related", s.handleRelatedColumns)

		r.Get("/export/{format}", s.handleExport)
		r.Get("/render.{format}", s.handleRender)

		r.Post("/assemble", s.handleAssemble)
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.CORSOrigins
}
