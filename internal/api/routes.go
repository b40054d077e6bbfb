package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/datasets", h.UploadDataset)
		r.Get("/report", h.GetReport)

		r.Route("/metrics", func(r chi.Router) {
			r.Get("/summary", h.GetSummary)
			r.Get("/series", h.GetSeries)
			r.Get("/retention", h.GetRetention)
			r.Get("/cohorts", h.GetCohorts)
			r.Post("/funnel", h.RunFunnel)
		})

		r.Get("/segments", h.GetSegments)
		r.Get("/churn", h.GetChurn)
		r.Get("/anomalies", h.GetAnomalies)

		r.Route("/assistant", func(r chi.Router) {
			r.Post("/insights", h.GenerateInsights)
			r.Post("/query", h.AnswerQuery)
		})
	})

	return r
}
