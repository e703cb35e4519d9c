// Package server sets up the HTTP server, router, and all route
// definitions. It is the composition root: every dependency is wired here,
// in one place, rather than scattered across the codebase.
//
// DEPENDENCY CHAIN:
//
//	sqlite.DB → implements every repository interface
//	AccountService / AuthService receive the repository interfaces
//	Handlers receive the services
//
// The handlers never touch the database; the services never touch HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Endika/participacion/internal/auth"
	"github.com/Endika/participacion/internal/config"
	"github.com/Endika/participacion/internal/handler"
	"github.com/Endika/participacion/internal/middleware"
	sqliteRepo "github.com/Endika/participacion/internal/repository/sqlite"
	"github.com/Endika/participacion/internal/service"
)

// Config holds server configuration assembled in cmd/server.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string

	// OAuth provider; zero value disables the external identity routes.
	OAuth auth.ProviderConfig

	// System configuration store: locales, official domain, username limit.
	Settings config.Settings

	// Census allow-list entries ("TYPE:NUMBER") for the static census.
	CensusAllowList []string
}

// Server owns the HTTP router and the database connection; the connection
// is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server, wiring the full dependency graph.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware, builds the services and handlers, and
// maps the routes.
//
// MIDDLEWARE ORDER MATTERS — RequestID and RealIP first so the logger sees
// them, Recoverer before anything that can panic.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	var provider *auth.Provider
	if s.config.OAuth.ClientID != "" {
		provider, err = auth.NewProvider(s.config.OAuth)
		if err != nil {
			return fmt.Errorf("creating OAuth provider: %w", err)
		}
	} else {
		s.logger.Warn("no OAuth provider configured, external identity login disabled")
	}

	census := service.NewStaticCensus(s.config.CensusAllowList)

	accountService := service.NewAccountService(
		s.db, s.db, s.db, s.db, s.db, s.db, s.db,
		census, passwords, s.config.Settings, s.logger,
	)
	authService := service.NewAuthService(
		s.db, s.db, s.db, tokens, passwords, s.config.Settings, s.logger,
	)

	authHandler := handler.NewAuthHandler(provider, authService, accountService, s.logger)
	accountHandler := handler.NewAccountHandler(accountService, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/oauth/login", authHandler.HandleOAuthLogin)
		r.Get("/oauth/callback", authHandler.HandleOAuthCallback)
	})

	s.router.Route("/api", func(r chi.Router) {
		// Signed-in routes.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authHandler.HandleMe)
			r.Put("/me", accountHandler.HandleUpdateProfile)
			r.Get("/me/votes", accountHandler.HandleVotes)
			r.Post("/me/votes", accountHandler.HandleCastVote)
			r.Get("/me/flags", accountHandler.HandleFlags)
			r.Post("/me/flags", accountHandler.HandleRaiseFlag)
			r.Get("/me/notifications", accountHandler.HandleNotifications)
			r.Post("/me/verify", accountHandler.HandleVerifyResidence)
		})

		// Moderation routes: administrators only.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Use(handler.RequireAdmin(accountService))

			r.Get("/accounts/search", accountHandler.HandleSearch)
			r.Post("/accounts/{id}/block", accountHandler.HandleBlock)
			r.Post("/accounts/{id}/erase", accountHandler.HandleErase)
			r.Post("/accounts/{id}/lock", accountHandler.HandleLock)
			r.Post("/accounts/{id}/unlock", accountHandler.HandleUnlock)
			r.Put("/accounts/{id}/official", accountHandler.HandleAssignOfficial)
			r.Delete("/accounts/{id}/official", accountHandler.HandleClearOfficial)
			r.Post("/accounts/{id}/roles/{role}", accountHandler.HandleGrantRole)
			r.Delete("/accounts/{id}/roles/{role}", accountHandler.HandleRevokeRole)
		})
	})

	return nil
}

// Start starts the HTTP server and blocks until shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections
// 2. Wait for in-flight requests (30s timeout)
// 3. Close the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
