package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avisser/budget-engine/internal/api/handlers"
	custommiddleware "github.com/avisser/budget-engine/internal/api/middleware"
	"github.com/avisser/budget-engine/internal/config"
	"github.com/avisser/budget-engine/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	scheduleService *service.ScheduleService,
	rateService *service.RateService,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
		})

		r.Route("/schedule", func(r chi.Router) {
			scheduleHandler := handlers.NewScheduleHandler(scheduleService)
			r.Get("/", scheduleHandler.List)
			r.Post("/create", scheduleHandler.Create)
			r.Post("/update", scheduleHandler.Update)
			r.Post("/delete", scheduleHandler.Delete)
			r.Post("/skip-next-date", scheduleHandler.SkipNextDate)
			r.Post("/post-transaction", scheduleHandler.PostTransaction)
			r.Post("/force-run-service", scheduleHandler.ForceRunService)
			r.Post("/discover", scheduleHandler.Discover)
			r.Post("/get-upcoming-dates", scheduleHandler.UpcomingDates)
			r.Post("/export", scheduleHandler.Export)
			r.Post("/import", scheduleHandler.Import)
		})

		r.Route("/rates", func(r chi.Router) {
			rateHandler := handlers.NewRateHandler(rateService)
			r.Get("/rate", rateHandler.Rate)
			r.Post("/manual", rateHandler.ManualRate)
			r.Post("/refresh", rateHandler.Refresh)
		})
	})

	return r
}
