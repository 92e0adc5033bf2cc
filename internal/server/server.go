// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency is built in New and wired
// into handlers in setupRoutes, so no other package constructs its own
// collaborators.
//
// DEPENDENCY FLOW:
//
//	config → sqlite.DB ──┬─ ProjectRepository / LearnerRepository
//	                     └─ KV (or Redis) → store.Store → ProgressService
//	catalog ─┬─ ChallengeService ← grader ← executor (goja or docker)
//	         └─ handlers
//	assembler → workspace.Hub → WorkspaceHandler (REST, socket, sandbox)
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/js-playground/internal/assembler"
	"github.com/sakif/js-playground/internal/auth"
	"github.com/sakif/js-playground/internal/catalog"
	"github.com/sakif/js-playground/internal/config"
	"github.com/sakif/js-playground/internal/executor"
	"github.com/sakif/js-playground/internal/executor/docker"
	"github.com/sakif/js-playground/internal/executor/jsvm"
	"github.com/sakif/js-playground/internal/grader"
	"github.com/sakif/js-playground/internal/handler"
	"github.com/sakif/js-playground/internal/metrics"
	"github.com/sakif/js-playground/internal/middleware"
	sqliteRepo "github.com/sakif/js-playground/internal/repository/sqlite"
	"github.com/sakif/js-playground/internal/service"
	"github.com/sakif/js-playground/internal/store"
	"github.com/sakif/js-playground/internal/store/redisstore"
	"github.com/sakif/js-playground/internal/workspace"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database, the optional Redis connection and the
// grading executor. They are closed in Close, after in-flight requests
// have drained.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	db      *sqliteRepo.DB
	store   store.Store
	catalog *catalog.Catalog
	exec    executor.Executor
	tokens  *auth.TokenService
	github  *auth.GitHubProvider
	hub     *workspace.Hub

	closers []io.Closer
}

// New builds every dependency from cfg. On failure anything already opened
// is closed again.
func New(cfg *config.Config, logger *slog.Logger) (_ *Server, err error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// === DATABASE ===
	s.db, err = sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.closers = append(s.closers, s.db)

	// === PROGRESS STORE ===
	switch cfg.Storage.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rs, err := redisstore.New(ctx, cfg.Storage.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		s.closers = append(s.closers, rs)
		s.store = rs
	default:
		s.store = s.db.KV()
	}

	// === CATALOG ===
	if cfg.Server.CatalogPath != "" {
		s.catalog, err = catalog.LoadFile(cfg.Server.CatalogPath)
	} else {
		s.catalog, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	// === GRADING ENGINE ===
	if s.exec, err = newExecutor(cfg.Grader, logger); err != nil {
		return nil, fmt.Errorf("starting %s grader: %w", cfg.Grader.Engine, err)
	}
	if c, ok := s.exec.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	// === AUTH ===
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if secret, err = auth.RandomSecret(); err != nil {
			return nil, err
		}
		logger.Warn("JWT_SECRET not set, using a random secret: learner sessions will not survive a restart")
	}
	if s.tokens, err = auth.NewTokenService(secret); err != nil {
		return nil, err
	}
	if cfg.Auth.GitHubClientID != "" && cfg.Auth.GitHubClientSecret != "" {
		s.github = auth.NewGitHubProvider(cfg.Auth.GitHubClientID, cfg.Auth.GitHubClientSecret, cfg.Auth.GitHubCallbackURL)
	} else {
		logger.Info("GitHub OAuth not configured, sign-in is disabled")
	}

	// === WORKSPACES ===
	s.hub = workspace.NewHub(workspace.Settings{
		Debounce:    cfg.Preview.Debounce,
		AutoRun:     cfg.Preview.AutoRun,
		ConsoleCap:  cfg.Preview.ConsoleCap,
		BridgeRate:  cfg.Preview.BridgeRate,
		BridgeBurst: cfg.Preview.BridgeBurst,
	}, workspace.Limits{
		IdleTTL: cfg.Workspace.IdleTTL,
		Max:     cfg.Workspace.MaxWorkspaces,
	}, assembler.New(), s.metrics, logger)

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func newExecutor(cfg config.GraderConfig, logger *slog.Logger) (executor.Executor, error) {
	switch cfg.Engine {
	case "docker":
		dc := docker.DefaultConfig()
		dc.Image = cfg.DockerImage
		dc.PoolSize = cfg.DockerPool
		dc.CallTimeout = cfg.Timeout
		return docker.New(dc, logger)
	default:
		jc := jsvm.DefaultConfig()
		jc.Timeout = cfg.Timeout
		return jsvm.New(jc), nil
	}
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /                         → playground page (HTML)
//	GET  /static/*                 → static files
//	GET  /metrics                  → Prometheus
//	GET  /healthz                  → liveness
//	GET  /sandbox/{id}/{gen}       → preview document for the iframe
//	     /api/workspaces/...       → live editing, console, socket
//	     /api/catalog/...          → lessons, challenges, templates, libraries
//	POST /api/challenges/{id}/submit
//	     /api/progress/...         → theme, warning flag, completions
//	     /api/projects/...         → saved projects, export, import
//	GET  /api/me
//	GET  /auth/github/{login,callback}
//	POST /auth/logout
//
// Everything a learner touches runs behind auth.Learner, which hands out an
// anonymous identity on first visit. Sandbox documents do not: the iframe
// is an opaque origin and never sees the cookie. For the same reason the
// API only answers the shell's own origin, so preview code cannot drive it.
func (s *Server) setupRoutes() error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(s.metrics.Middleware)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Static Files ===
	fileServer := http.FileServer(http.Dir(s.config.Server.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	s.router.Handle("/metrics", s.metrics.Handler())
	s.router.Get("/healthz", s.handleHealth)

	// === Services ===
	progressService := service.NewProgressService(s.store, s.catalog, s.logger)
	projectService := service.NewProjectService(s.db, s.logger)
	challengeService := service.NewChallengeService(s.catalog, grader.New(s.exec, s.logger, s.metrics), progressService, s.logger)
	authService := service.NewAuthService(s.db, s.db, progressService, s.tokens, s.logger)

	// === Handlers ===
	playgroundHandler, err := handler.NewPlaygroundHandler(s.config.Server.TemplateDir, s.catalog, s.github != nil, s.logger)
	if err != nil {
		return fmt.Errorf("creating playground handler: %w", err)
	}
	workspaceHandler := handler.NewWorkspaceHandler(s.hub, s.catalog, projectService, s.metrics, s.logger)
	catalogHandler := handler.NewCatalogHandler(s.catalog, s.logger)
	challengeHandler := handler.NewChallengeHandler(challengeService, s.logger)
	progressHandler := handler.NewProgressHandler(progressService, s.logger)
	projectHandler := handler.NewProjectHandler(projectService, s.logger)

	var github handler.GitHub
	if s.github != nil {
		github = s.github
	}
	authHandler := handler.NewAuthHandler(github, authService, s.logger)

	s.router.Get("/sandbox/{id}/{gen}", workspaceHandler.HandleSandbox)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Learner(s.tokens, s.logger))
		r.Use(middleware.RecordLearner)

		r.Get("/", playgroundHandler.HandlePlayground)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.SameOrigin(s.logger))
			r.Get("/me", authHandler.HandleMe)
			r.Route("/workspaces", workspaceHandler.Routes)
			r.Route("/catalog", catalogHandler.Routes)
			r.Post("/challenges/{id}/submit", challengeHandler.HandleSubmit)
			r.Route("/progress", progressHandler.Routes)
			r.Route("/projects", projectHandler.Routes)
		})

		r.Route("/auth", func(r chi.Router) {
			if github != nil {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}
			// Logging out an anonymous learner would orphan their work.
			r.With(middleware.SameOrigin(s.logger), auth.RequireSignedIn).Post("/logout", authHandler.HandleLogout)
		})
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database, Redis and the grading executor, in reverse
// order of creation, and closes every open workspace.
func (s *Server) Close() error {
	if s.hub != nil {
		s.hub.CloseAll()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close workspaces, the executor, Redis and the database
//
// Sockets are hijacked connections that Shutdown does not wait for; closing
// the workspaces ends their event streams.
func (s *Server) Start() error {
	defer s.Close()

	ctx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
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
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Storage.DBPath),
			slog.String("store", s.config.Storage.Backend),
			slog.String("grader", s.exec.Name()),
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
