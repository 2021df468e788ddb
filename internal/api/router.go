package api

import (
	"net/http"
	"strconv"
	"time"

	"orchard/internal/bus"
	"orchard/internal/observability"
	"orchard/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterConfig bundles the router's collaborators. Limiter and Metrics
// may be nil.
type RouterConfig struct {
	Handler *Handler
	Hub     *realtime.Hub
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Limiter *bus.RateLimiter
}

// NewRouter wires the HTTP surface: submission, status, the websocket
// status feed, and a liveness probe.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(metricsMiddleware(cfg.Metrics))
	}

	r.Route("/api/orders", func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(rateLimitMiddleware(cfg.Limiter, cfg.Metrics, cfg.Logger))
		}
		r.Post("/", cfg.Handler.SubmitOrder)
		r.Get("/{id}", cfg.Handler.GetOrder)
	})

	if cfg.Hub != nil {
		r.Get("/ws", realtime.ServeWS(cfg.Hub, cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// metricsMiddleware counts requests per route pattern and status code.
func metricsMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			metrics.ObserveHTTPRequest(route, strconv.Itoa(ww.Status()))
		})
	}
}

// rateLimitMiddleware applies the shared token bucket to the order
// endpoints.
func rateLimitMiddleware(limiter *bus.RateLimiter, metrics *observability.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			if err := limiter.Wait(r.Context()); err != nil {
				logger.Warn("rate limit wait aborted", zap.Error(err))
				writeError(w, http.StatusServiceUnavailable, "unavailable", "")
				return
			}
			if metrics != nil {
				metrics.AddRateLimitWait(time.Since(start))
			}
			next.ServeHTTP(w, r)
		})
	}
}
