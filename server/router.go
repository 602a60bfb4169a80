// Package server assembles the HTTP handler: middleware, routes and the
// operational endpoints.
package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/user/taskdesk-go/auth"
	"github.com/user/taskdesk-go/config"
	// Registers the swagger spec served under /swagger.
	_ "github.com/user/taskdesk-go/docs"
	"github.com/user/taskdesk-go/metrics"
	"github.com/user/taskdesk-go/respond"
	"github.com/user/taskdesk-go/session"
	"github.com/user/taskdesk-go/tasks"
	"github.com/user/taskdesk-go/telemetry"
	"github.com/user/taskdesk-go/users"
)

// requestTimeout bounds every request handled by the router.
const requestTimeout = 30 * time.Second

// Deps are the collaborators the router wires into routes.
type Deps struct {
	Server    config.ServerConfig
	Authority *session.Authority
	Auth      *auth.Handlers
	Users     *users.Handlers
	Tasks     *tasks.Handlers
	Metrics   *metrics.Metrics
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter builds the application's http.Handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.Timeout(requestTimeout))

	allowed := d.Server.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	// The session cookie is only sent cross-origin to origins listed by name.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: !slices.Contains(allowed, "*"),
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.Message(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				respond.Message(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		respond.Message(w, http.StatusOK, "ready")
	})

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/auth", func(r chi.Router) {
		if d.Server.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(d.Server.RateLimitPerMinute, time.Minute))
		}
		r.Post("/register", d.Auth.HandleRegister())
		r.Post("/login", d.Auth.HandleLogin())
		r.Post("/refresh", d.Auth.HandleRefresh())
		r.Post("/logout", d.Auth.HandleLogout())
		r.Post("/forgot-password", d.Auth.HandleForgotPassword())
		r.Post("/reset-password", d.Auth.HandleResetPassword())
	})

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(d.Authority))

		r.Get("/users/me", d.Users.HandleGetProfile())
		r.Put("/users/me", d.Users.HandleUpdateProfile())

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", d.Tasks.HandleList())
			r.Post("/", d.Tasks.HandleCreate())
			r.Get("/{id}", d.Tasks.HandleGet())
			r.Patch("/{id}", d.Tasks.HandleUpdate())
			r.Delete("/{id}", d.Tasks.HandleDelete())
		})
	})

	return otelhttp.NewHandler(r, telemetry.ServiceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/readyz" && r.URL.Path != "/metrics"
		}),
	)
}
