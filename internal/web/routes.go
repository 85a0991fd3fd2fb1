package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/centrominero/labvision/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	recognizeHandler := handlers.NewRecognizeHandler(s.service)
	referencesHandler := handlers.NewReferencesHandler(s.service)
	statsHandler := handlers.NewStatsHandler(s.service)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/recognize", recognizeHandler.Recognize)

		r.Post("/references", referencesHandler.Register)
		r.Delete("/objects/{kind}/{name}/references", referencesHandler.Delete)

		r.Get("/stats", statsHandler.Get)
	})
}
