// Package http serves one client's session and aggregator as a JSON API
// for a local user interface.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fintrack/internal/aggregator"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/notify"
	"fintrack/internal/session"
)

// Deps is what the handlers act on.
type Deps struct {
	Session       *session.Manager
	Aggregator    *aggregator.Aggregator
	Notifications *notify.Buffer
	Logger        *log.Logger
}

type Options struct {
	CORSAllowedOrigins []string
	TrustedProxies     []string
	// AuthRateLimit is the number of sign-in and registration attempts a
	// client may make per minute; zero turns the limit off.
	AuthRateLimit int
	// Now replaces the rate limiter clock.
	Now func() time.Time
}

type Server struct {
	http.Server

	session       *session.Manager
	agg           *aggregator.Aggregator
	notifications *notify.Buffer
	logger        *log.Logger

	clientIP    *security.ClientIP
	authLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, d Deps, o Options) *Server {
	logger := d.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	clientIP, invalid := security.NewClientIP(o.TrustedProxies...)
	for _, p := range invalid {
		logger.Warn("Ignoring invalid trusted proxy", "proxy", p)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		session:       d.Session,
		agg:           d.Aggregator,
		notifications: d.Notifications,
		logger:        logger,
		clientIP:      clientIP,
	}
	if o.AuthRateLimit > 0 {
		s.authLimiter = ratelimit.NewLimiter(ratelimit.Config{
			Requests: o.AuthRateLimit,
			Window:   time.Minute,
			Now:      o.Now,
		})
	}
	s.Handler = s.routes(logger, o.CORSAllowedOrigins)
	return s
}

func (s *Server) routes(logger *log.Logger, origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(trace.Middleware)
	r.Use(log.Middleware(logger, trace.FromRequest))
	r.Use(log.AccessLog)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", trace.Header},
		ExposedHeaders:   []string{trace.Header, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limited := func(next http.Handler) http.Handler { return next }
	if s.authLimiter != nil {
		limited = s.authLimiter.Middleware(s.clientIP.Extract, s.writeRateLimited)
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleGetSession)
		r.With(limited).Post("/session", s.handleLogin)
		r.Delete("/session", s.handleLogout)
		r.With(limited).Post("/register", s.handleRegister)

		r.Get("/notifications", s.handleNotifications)
		r.Post("/refresh", s.handleRefresh)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Patch("/{id}", s.handleUpdateCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Put("/filters", s.handleApplyFilters)
			r.Post("/next", s.handleNextPage)
			r.Post("/previous", s.handlePreviousPage)
			r.Post("/", s.handleCreateTransaction)
			r.Patch("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})

		r.Get("/budget", s.handleGetBudget)
		r.Put("/budget", s.handleSaveBudget)
		r.Get("/summary", s.handleSummary)
		r.Get("/dashboard", s.handleDashboard)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.authLimiter != nil {
			s.authLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
