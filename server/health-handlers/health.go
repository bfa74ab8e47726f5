package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jrschumacher/linkdash/internal/config"
	"github.com/jrschumacher/linkdash/internal/httputil"
	"github.com/jrschumacher/linkdash/internal/logger"
	"github.com/jrschumacher/linkdash/internal/svrlib"
)

const readyTimeout = 3 * time.Second

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type HealthRouter struct {
	*svrlib.Router
	checks map[string]Check
}

// RegisterRoutes registers all health check routes on the given mux.
// checks are run by /readyz; /healthz only proves the process is serving.
func RegisterRoutes(mux *http.ServeMux, baseRoute string, cfg *config.Config, checks map[string]Check) {
	router := &HealthRouter{svrlib.NewRouter(mux, baseRoute, cfg), checks}
	mux.HandleFunc("GET "+router.Path("/healthz"), router.HealthzHandler)
	mux.HandleFunc("GET "+router.Path("/readyz"), router.ReadyzHandler)
}

// HealthzHandler responds to /healthz requests for health checks
func (rt *HealthRouter) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

// ReadyzHandler runs every readiness check and reports each result. Failure
// details go to the log only.
func (rt *HealthRouter) ReadyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(rt.checks))
	for name, check := range rt.checks {
		if err := check(ctx); err != nil {
			logger.Warn("Readiness check failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	httputil.WriteJSON(w, status, results)
}
