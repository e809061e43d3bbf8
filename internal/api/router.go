package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/vehiclereid/revid/internal/api/middleware"
	"github.com/vehiclereid/revid/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler        http.HandlerFunc
	SubmitHandler        http.HandlerFunc
	ListJobsHandler      http.HandlerFunc
	GetJobHandler        http.HandlerFunc
	ResultHandler        http.HandlerFunc
	LogsHandler          http.HandlerFunc
	ListArtifactsHandler http.HandlerFunc
	GetArtifactHandler   http.HandlerFunc
	LiveHandler          http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Rate-limited routes
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/videos", orNotImplemented(deps.SubmitHandler))
		r.Get("/api/v1/videos", orNotImplemented(deps.ListJobsHandler))
		r.Get("/api/v1/videos/{jobID}", orNotImplemented(deps.GetJobHandler))
		r.Get("/api/v1/videos/{jobID}/result", orNotImplemented(deps.ResultHandler))
		r.Get("/api/v1/videos/{jobID}/logs", orNotImplemented(deps.LogsHandler))
		r.Get("/api/v1/videos/{jobID}/artifacts", orNotImplemented(deps.ListArtifactsHandler))
		r.Get("/api/v1/videos/{jobID}/artifacts/{filename}", orNotImplemented(deps.GetArtifactHandler))

		r.Get("/api/v1/live/ws", orNotImplemented(deps.LiveHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
