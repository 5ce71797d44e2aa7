package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/beaconflags/beacon/internal/flags"
	"github.com/beaconflags/beacon/internal/observability"
	"github.com/beaconflags/beacon/internal/platform/ratelimit"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	FlagsHandler *flags.Handler
	EvalLimiter  *ratelimit.Limiter
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router with Beacon defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	prefix := "/api/v1"
	if params.Config != nil && params.Config.APIPrefix != "" {
		prefix = params.Config.APIPrefix
	}
	r.Route(prefix, func(r chi.Router) {
		var evalMiddleware []func(http.Handler) http.Handler
		if params.EvalLimiter != nil {
			evalMiddleware = append(evalMiddleware, params.EvalLimiter.Middleware)
		}
		params.FlagsHandler.MountRoutes(r, evalMiddleware...)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
