package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hangar/internal/platform/metrics"
	"hangar/internal/platform/middleware"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/platform/httputil"
)

// ReadyFunc reports whether the process can serve traffic. Typically wired
// to a store ping plus a collaborator reachability probe.
type ReadyFunc func(ctx context.Context) error

// RouterConfig tunes the assembled router.
type RouterConfig struct {
	// RequestTimeout bounds every API request. Synchronous batch runs and
	// polls are clamped by it, so deployments that use wait=true size it
	// accordingly.
	RequestTimeout time.Duration

	// Ready gates /readyz. Nil means always ready.
	Ready ReadyFunc
}

// NewRouter assembles the public surface: middleware chain, health probes,
// Prometheus metrics and the v1 API.
func NewRouter(h *Handler, logger *slog.Logger, m *metrics.Metrics, cfg RouterConfig) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.LatencyMiddleware(m))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(cfg.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.ContentTypeJSON)
		h.Register(r)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReady(ready ReadyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "not ready"))
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
