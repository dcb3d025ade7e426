package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/savegress/dbpulse/internal/anomaly"
	"github.com/savegress/dbpulse/internal/baseline"
	"github.com/savegress/dbpulse/internal/catalog"
	"github.com/savegress/dbpulse/internal/storage"
)

// Server represents the API server
type Server struct {
	router   chi.Router
	handlers *Handlers
}

// NewServer creates a new API server
func NewServer(cat catalog.Catalog, calculator *baseline.Calculator, detector *anomaly.Detector, manager *anomaly.Manager, baselines storage.BaselineStore, recorder storage.SampleRecorder) *Server {
	s := &Server{
		router: chi.NewRouter(),
		handlers: &Handlers{
			catalog:    cat,
			calculator: calculator,
			detector:   detector,
			manager:    manager,
			baselines:  baselines,
			recorder:   recorder,
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)

	s.router.Route("/api/v1/dbpulse", func(r chi.Router) {
		r.Get("/metrics", s.handlers.ListMetrics)

		r.Route("/instances/{instance}", func(r chi.Router) {
			r.Route("/anomalies", func(r chi.Router) {
				r.Get("/", s.handlers.OpenAnomalies)
				r.Get("/history", s.handlers.AnomalyHistory)
				r.Get("/summary", s.handlers.AnomalySummary)
				r.Post("/{id}/acknowledge", s.handlers.AcknowledgeAnomaly)
				r.Post("/{id}/resolve", s.handlers.ResolveAnomaly)
			})

			r.Route("/baselines", func(r chi.Router) {
				r.Get("/{metric}", s.handlers.GetBaseline)
				r.Post("/calculate", s.handlers.CalculateBaselines)
			})

			r.Post("/detect", s.handlers.RunDetection)
			r.Post("/samples", s.handlers.IngestSample)
		})
	})
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}
