package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/voice-scribe/backend/internal/api/handlers"
	"github.com/voice-scribe/backend/internal/api/middleware"
	"github.com/voice-scribe/backend/internal/auth"
	"github.com/voice-scribe/backend/internal/config"
	"github.com/voice-scribe/backend/internal/db"
	"github.com/voice-scribe/backend/internal/job"
	"github.com/voice-scribe/backend/internal/recovery"
	"github.com/voice-scribe/backend/internal/resource"
)

// Deps bundles the long-lived collaborators the router wires into
// handlers.
type Deps struct {
	Config   *config.Config
	Database *db.Database
	JWT      *auth.JWTService
	Queue    *job.JobQueue
	Broker   *job.Broker
	Sentinel *resource.Sentinel
	Recovery *recovery.Manager
}

func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(deps.Config.CORSOrigins)))

	// Handlers
	authHandler := handlers.NewAuthHandler(deps.Database, deps.JWT)
	modelsHandler := handlers.NewModelsHandler(deps.Sentinel)
	statusHandler := handlers.NewStatusHandler(deps.Sentinel, deps.Recovery)
	transcriptsHandler := handlers.NewTranscriptsHandler(deps.Database, deps.Queue)
	jobHandler := handlers.NewJobHandler(deps.Queue)
	settingsHandler := handlers.NewSettingsHandler(deps.Database)
	progressHandler := handlers.NewProgressHandler(deps.Broker, deps.JWT)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Get("/health", statusHandler.Health)
		r.With(loginLimiter.Handler, middleware.MaxBodySize(4<<10)).
			Post("/auth/login", authHandler.Login)
		// Token is checked inside the handler, from the query string.
		r.Get("/progress/ws", progressHandler.Serve)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.JWT))
			r.Use(middleware.MaxBodySize(16 << 20))

			// Auth
			r.Get("/auth/me", authHandler.Me)

			// Resource sentinel
			r.Get("/status", statusHandler.Status)
			r.Get("/metrics", statusHandler.Metrics)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))
				r.Post("/models/{kind}/load", modelsHandler.Load)
				r.Post("/models/{kind}/unload", modelsHandler.Unload)
				r.Post("/models/swap", modelsHandler.Swap)
				r.Post("/models/cleanup", modelsHandler.Cleanup)
			})

			// Transcripts
			r.Get("/transcripts", transcriptsHandler.List)
			r.Post("/transcripts", transcriptsHandler.Create)
			r.Get("/transcripts/{id}", transcriptsHandler.Get)
			r.Post("/transcripts/{id}/correct", transcriptsHandler.Correct)
			r.Post("/transcribe", transcriptsHandler.Transcribe)

			// Jobs
			r.Get("/jobs", jobHandler.ListJobs)
			r.Get("/jobs/{id}", jobHandler.GetJob)
			r.Delete("/jobs/{id}", jobHandler.CancelJob)
			r.Post("/jobs/{id}/retry", jobHandler.RetryJob)

			// Settings
			r.Get("/settings", settingsHandler.GetSettings)
			r.With(middleware.RequireRole("admin")).
				Put("/settings", settingsHandler.UpdateSettings)
		})
	})

	return r
}
