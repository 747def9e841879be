package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/nexastudio/creditmeter/adapters/hasher"
	"github.com/nexastudio/creditmeter/adapters/metrics"
	_ "github.com/nexastudio/creditmeter/docs/swagger" // swagger docs
	"github.com/nexastudio/creditmeter/ports"
)

// RouterConfig configures the top-level router.
type RouterConfig struct {
	Metrics        *metrics.Collector // nil disables request metrics
	MetricsPath    string             // defaults to /metrics when Metrics is set
	ServiceKeyHash string             // bcrypt hash guarding /v1, empty disables
	KeyHasher      ports.KeyHasher    // defaults to bcrypt
	EnableOpenAPI  bool               // serves Swagger UI and doc.json under /swagger
	Timeout        time.Duration
}

// NewRouter creates the chi router with all middleware and routes.
func NewRouter(h *Handler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Get("/healthz", Health)

	if cfg.EnableOpenAPI {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Route("/v1", func(r chi.Router) {
		keyHasher := cfg.KeyHasher
		if keyHasher == nil {
			keyHasher = hasher.NewBcrypt(0)
		}
		r.Use(ServiceKeyAuth(cfg.ServiceKeyHash, keyHasher))
		h.Routes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Route not found")
	})

	return r
}
