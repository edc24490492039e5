// Package server is the composition root: it builds the services and
// handlers on top of the store and sender chosen in main, mounts them on a
// chi router and runs the HTTP server until SIGINT or SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/showdex/internal/auth"
	"github.com/sakif/showdex/internal/handler"
	"github.com/sakif/showdex/internal/metrics"
	"github.com/sakif/showdex/internal/middleware"
	"github.com/sakif/showdex/internal/notify"
	"github.com/sakif/showdex/internal/repository"
	"github.com/sakif/showdex/internal/service"
)

// Config holds the settings the server itself needs. main fills it from
// config.Config.
type Config struct {
	Port            int
	AllowedOrigins  []string
	CodeTTL         time.Duration
	ExposeCodes     bool
	Location        *time.Location
	ShutdownTimeout time.Duration
}

// Deps are the outside resources the server runs on.
type Deps struct {
	Users   repository.UserRepository
	Shows   repository.ShowRepository
	Sender  notify.Sender
	Metrics *metrics.Metrics

	// Close releases the store. It runs after the HTTP server has drained.
	Close func(ctx context.Context) error
}

type Server struct {
	router  *chi.Mux
	config  Config
	deps    Deps
	logger  *slog.Logger
	handler http.Handler
}

// New wires services and handlers and sets up the routes.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Users == nil || deps.Shows == nil || deps.Sender == nil {
		return nil, errors.New("server: users, shows and sender are required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the router wrapped in CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes mounts every endpoint.
//
// MIDDLEWARE ORDER:
//  1. RequestID, so everything after it can log the ID
//  2. RealIP
//  3. Logger and Metrics, which see the final status
//  4. Recoverer, innermost, so a panic still reaches Logger as a 500
//
// CORS wraps the whole router so preflight requests are answered before
// routing.
//
// POST /api/register            → AccountHandler.HandleRegister
// POST /api/login               → AccountHandler.HandleLogin
// POST /api/verify              → AccountHandler.HandleVerify
// POST /api/resendverification  → AccountHandler.HandleResendVerification
// POST /api/forgotpassword      → AccountHandler.HandleForgotPassword
// POST /api/resetpassword       → AccountHandler.HandleResetPassword
// POST /api/addshow             → ShowHandler.HandleAdd
// POST /api/updateshow          → ShowHandler.HandleUpdate
// POST /api/deleteshow          → ShowHandler.HandleDelete
// POST /api/searchshows         → ShowHandler.HandleSearch
// GET  /healthz                 → HealthHandler.HandleHealth
// GET  /metrics                 → Prometheus exposition
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.deps.Metrics))
	s.router.Use(chimiddleware.Recoverer)

	passwords := auth.NewPasswordService()
	codes := service.NewCodeIssuer(s.deps.Users, s.deps.Sender, s.deps.Metrics, s.logger, s.config.CodeTTL)
	accounts := service.NewAccountService(s.deps.Users, passwords, codes, s.logger)
	flows := service.NewVerificationService(s.deps.Users, passwords, codes, s.logger)
	shows := service.NewShowService(s.deps.Shows, s.logger)

	accountHandler := handler.NewAccountHandler(accounts, flows, s.config.Location, s.config.ExposeCodes, s.logger)
	showHandler := handler.NewShowHandler(shows, s.logger)
	healthHandler := handler.NewHealthHandler(s.deps.Users, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", accountHandler.HandleRegister)
		r.Post("/login", accountHandler.HandleLogin)
		r.Post("/verify", accountHandler.HandleVerify)
		r.Post("/resendverification", accountHandler.HandleResendVerification)
		r.Post("/forgotpassword", accountHandler.HandleForgotPassword)
		r.Post("/resetpassword", accountHandler.HandleResetPassword)

		r.Post("/addshow", showHandler.HandleAdd)
		r.Post("/updateshow", showHandler.HandleUpdate)
		r.Post("/deleteshow", showHandler.HandleDelete)
		r.Post("/searchshows", showHandler.HandleSearch)
	})

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         300,
	}).Handler(s.router)
}

// Start runs the server and blocks until it fails or a shutdown signal
// arrives. On shutdown it drains in-flight requests, then closes the store.
func (s *Server) Start() error {
	defer s.closeStore()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) closeStore() {
	if s.deps.Close == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Close(ctx); err != nil {
		s.logger.Error("closing store", slog.String("error", err.Error()))
	}
}
