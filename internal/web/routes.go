package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/vface/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	s.router.NotFound(handlers.NotFound)
	s.router.MethodNotAllowed(handlers.MethodNotAllowed)

	s.router.Get("/", handlers.Hello)
	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Legacy paths used by existing clients. The API handler applies the
	// concurrency limit itself so rejections are audited.
	s.router.Post("/update", s.api.Register)
	s.router.Post("/recognition", s.api.Recognize)
	s.router.Post("/clear", s.api.Clear)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/update", s.api.Register)
		r.Post("/register", s.api.Register)
		r.Post("/recognition", s.api.Recognize)
		r.Post("/recognize", s.api.Recognize)
		r.Post("/clear", s.api.Clear)
	})
}

