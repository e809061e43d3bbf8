package handler

import (
	"net/http"

	"github.com/vehiclereid/revid/internal/api/response"
	"github.com/vehiclereid/revid/internal/cache"
	"github.com/vehiclereid/revid/internal/store"
)

// NewHealthHandler returns the handler for GET /api/v1/health. It checks
// database and cache connectivity.
func NewHealthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			services["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			services["cache"] = "degraded"
		}

		degraded := services["database"] != "ok" || services["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", services)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": services,
		})
	}
}
