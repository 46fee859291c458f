package httpapi

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/newsmap/hubcrawl/internal/config"
	"github.com/newsmap/hubcrawl/internal/version"
)

// NewRouter assembles the chi router, middleware stack and API routes.
func NewRouter(cfg *config.Config, h *Handlers) chi.Router {
	// Uniform {"status":"error","error":{...}} bodies for every failure.
	huma.NewError = newErrorEnvelope

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(middleware.RequestSize(1 * 1024 * 1024))
	router.Use(httprate.LimitByIP(100, time.Minute))

	humaConfig := huma.DefaultConfig("Hubcrawl API", version.Get().Version)
	humaConfig.Info.Description = "Hub-discovery crawler for news sites: predicts, fetches and validates place and topic hub pages."
	humaConfig.Servers = []*huma.Server{{URL: cfg.BaseURL, Description: "API Server"}}
	api := humachi.New(router, humaConfig)

	huma.Get(api, "/healthz", h.HealthCheck)
	huma.Get(api, "/v1/availability", h.GetAvailability)

	huma.Post(api, "/v1/operations/{name}/run", h.RunOperation)
	huma.Post(api, "/v1/operations/{name}/start", h.StartOperation)

	huma.Post(api, "/v1/sequences/presets/{name}/run", h.RunSequencePreset)
	huma.Post(api, "/v1/sequences/presets/{name}/start", h.StartSequencePreset)
	huma.Post(api, "/v1/sequences/configs/{name}/run", h.RunSequenceConfig)

	huma.Get(api, "/v1/jobs", h.ListJobs)
	huma.Get(api, "/v1/jobs/{id}", h.GetJob)
	huma.Get(api, "/v1/jobs/{id}/events", h.GetJobEvents)
	huma.Post(api, "/v1/jobs/{id}/pause", h.PauseJob)
	huma.Post(api, "/v1/jobs/{id}/resume", h.ResumeJob)
	huma.Post(api, "/v1/jobs/{id}/stop", h.StopJob)

	huma.Get(api, "/v1/probe", h.ProbeDomain)

	// SSE endpoints stay raw chi handlers; huma buffers responses.
	router.Get("/events", h.StreamEvents)
	router.Get("/v1/jobs/{id}/events/stream", h.StreamJobEvents)

	return router
}
