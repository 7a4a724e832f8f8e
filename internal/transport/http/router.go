// Package httptransport assembles the public router from the per-domain
// handlers. Handlers own their routes and middleware; this package only
// mounts them and the operational endpoints.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"brickvault/internal/transport/http/shared"
)

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter mounts the domain handlers plus /healthz and /metrics.
func NewRouter(checks map[string]HealthChecker, handlers ...Registrar) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		result := make(map[string]string, len(checks)+1)
		result["status"] = "ok"
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				result["status"] = "degraded"
				continue
			}
			result[name] = "ok"
		}
		shared.WriteJSON(w, status, result)
	}
}
