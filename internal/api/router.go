package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vidasaude/telehealth-core/internal/auth"
)

type RouterConfig struct {
	Service        AppointmentService
	Resolver       *auth.Resolver
	PgPool         *pgxpool.Pool
	Redis          *redis.Client // optional
	Env            string
	Version        string
	AllowedOrigins []string
	MetricsEnabled bool
	// Sessions backs POST/DELETE /api/sessions. The routes are absent when nil.
	Sessions   auth.SessionStore
	SessionTTL time.Duration
	// Dev exposes internal error causes in responses.
	Dev bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Recovery)
	r.Use(LoggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token", "X-Session-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(cfg.Resolver.Middleware)

	r.NotFound(notFoundHandler)
	r.MethodNotAllowed(methodNotAllowedHandler)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	h := &handlers{svc: cfg.Service, errs: errorWriter{dev: cfg.Dev}}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Delete("/{id}", h.deleteAppointment)
			r.Post("/{id}/join", h.joinAppointment)
			r.Post("/{id}/cancel", h.cancelAppointment)
			r.Post("/{id}/complete", h.completeAppointment)
		})

		r.Post("/payments/authorize", h.authorizePayment)

		if cfg.Sessions != nil {
			ttl := cfg.SessionTTL
			if ttl <= 0 {
				ttl = defaultSessionTTL
			}
			sh := &sessionHandlers{
				store:    cfg.Sessions,
				resolver: cfg.Resolver,
				ttl:      ttl,
				secure:   !cfg.Dev,
				now:      time.Now,
				errs:     h.errs,
			}
			r.Post("/sessions", sh.create)
			r.Delete("/sessions", sh.delete)
		}

		r.Get("/me", h.me)
		r.Get("/me/entitlements", h.entitlements)
	})

	return r
}
