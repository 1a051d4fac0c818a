// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer, the composition root: every
// dependency is built here once and handed down.
//
//	config → store (sqlite | hosted) ─┐
//	       → daily.Client ────────────┼→ services → handlers → chi routes
//	       → heartbeats (redis | mem) ┘
//	                                   → presence.Reconciler (background)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/hangout/internal/auth"
	"github.com/sakif/hangout/internal/config"
	"github.com/sakif/hangout/internal/daily"
	"github.com/sakif/hangout/internal/handler"
	"github.com/sakif/hangout/internal/health"
	"github.com/sakif/hangout/internal/middleware"
	"github.com/sakif/hangout/internal/presence"
	"github.com/sakif/hangout/internal/repository"
	"github.com/sakif/hangout/internal/repository/hosted"
	sqliteRepo "github.com/sakif/hangout/internal/repository/sqlite"
	"github.com/sakif/hangout/internal/service"
	"github.com/sakif/hangout/internal/session"
)

const (
	readinessTimeout = 3 * time.Second
	shutdownTimeout  = 30 * time.Second

	// Starting a call makes up to three Daily requests in a row (create
	// room, meeting token, delete on rollback). The response must still
	// be writable after all of them.
	writeTimeout = 3*daily.RequestTimeout + 15*time.Second
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store, the optional Redis client and the reconciler
// goroutine. Start releases all three on shutdown.
type Server struct {
	router     *chi.Mux
	cfg        *config.Config
	logger     *slog.Logger
	store      repository.Store
	redis      *redis.Client // nil without REDIS_URL
	reconciler *presence.Reconciler
}

// OpenStore opens the backend STORE_BACKEND names. The verify command
// uses it too.
func OpenStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendHosted:
		return hosted.New(hosted.Config{
			URL:    cfg.Store.SupabaseURL,
			APIKey: cfg.Store.SupabaseAnonKey,
		}, logger)
	default:
		if cfg.Store.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Store.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqliteRepo.New(cfg.Store.DBPath)
	}
}

// NewDailyClient builds the room provider client from configuration.
func NewDailyClient(cfg *config.Config, logger *slog.Logger) *daily.Client {
	return daily.NewClient(daily.Config{
		APIKey:  cfg.Daily.APIKey,
		BaseURL: cfg.Daily.APIURL,
		RoomTTL: cfg.Daily.RoomTTL(),
		Debug:   cfg.Debug,
	}, logger)
}

// New creates a Server with every dependency wired.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// heartbeats picks Redis when REDIS_URL is set and the in-process map
// otherwise. The in-process map only works with a single server instance.
func (s *Server) heartbeats() (presence.Heartbeats, []health.Checker, error) {
	if s.cfg.Presence.RedisURL == "" {
		s.logger.Warn("REDIS_URL not set, presence heartbeats are kept in memory")
		return presence.NewMemoryHeartbeats(), nil, nil
	}
	client, err := presence.NewRedisClient(s.cfg.Presence.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	s.redis = client
	return presence.NewRedisHeartbeats(client), []health.Checker{
		health.NewPingChecker("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() }),
	}, nil
}

// setupRoutes builds services and handlers and mounts them.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz, /readyz                 health
//	GET    /auth/google/login|callback       OAuth
//	POST   /auth/dev/login, /auth/logout
//	/api/* (RequireSession)                  me, users, friends, groups (+members),
//	                                         dashboard, calls, presence,
//	                                         workspace, sounds
//
// MIDDLEWARE ORDER MATTERS: RequestID first so the logger can print it,
// Recoverer last so a panic still produces a logged 500.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, "/healthz", "/readyz"))
	s.router.Use(chimiddleware.Recoverer)

	beats, redisChecks, err := s.heartbeats()
	if err != nil {
		return fmt.Errorf("connecting presence store: %w", err)
	}

	tokens, err := auth.NewTokenService(s.cfg.Auth.JWTSecret, 0)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var google auth.IdentityProvider
	if s.cfg.Google.Enabled() {
		google = auth.NewGoogleProvider(s.cfg.Google.ClientID, s.cfg.Google.ClientSecret, s.cfg.GoogleRedirectURI())
	}

	// === SERVICES ===
	rooms := NewDailyClient(s.cfg, s.logger)
	sessions := session.NewManager(s.cfg.Auth.SessionIdleTimeout)

	calls := service.NewCallService(s.store, rooms, beats, service.CallConfig{
		MaxRoomSize:  s.cfg.Daily.MaxRoomSize,
		Domain:       s.cfg.Daily.Domain,
		HeartbeatTTL: s.cfg.Presence.HeartbeatTTL,
	}, s.logger)
	directory := service.NewDirectoryService(s.store, s.logger)
	authService := service.NewAuthService(s.store, calls, sessions, tokens, s.logger)
	workspace := service.NewWorkspaceService(sessions)

	s.reconciler = presence.NewReconciler(s.store, rooms, beats, workspace, presence.ReconcilerConfig{
		Interval: s.cfg.Presence.ReconcileInterval,
	}, s.logger, sessions)

	checks := health.NewReadinessRunner(readinessTimeout, append([]health.Checker{
		health.NewPingChecker("store", s.store.Ping),
		health.NewPingChecker("daily", rooms.VerifyAPIKey),
	}, redisChecks...)...)

	// === HANDLERS ===
	healthHandler := handler.NewHealthHandler(checks)
	authHandler := handler.NewAuthHandler(google, authService, tokens, handler.AuthOptions{
		DevLogin:      s.cfg.Auth.DevLogin,
		SecureCookies: s.cfg.Env == config.EnvProd,
	}, s.logger)
	directoryHandler := handler.NewDirectoryHandler(directory, s.logger)
	callHandler := handler.NewCallHandler(calls, workspace, s.logger)
	workspaceHandler := handler.NewWorkspaceHandler(workspace)

	// === ROUTES ===
	s.router.Get("/healthz", healthHandler.HandleLive)
	s.router.Get("/readyz", healthHandler.HandleReady)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.HandleGoogleLogin)
		r.Get("/google/callback", authHandler.HandleGoogleCallback)
		r.Post("/dev/login", authHandler.HandleDevLogin)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireSession(tokens, sessions))

		r.Get("/me", directoryHandler.HandleMe)
		r.Get("/users/search", directoryHandler.HandleSearch)
		r.Get("/friends", directoryHandler.HandleFriends)
		r.Post("/friends", directoryHandler.HandleAddFriend)
		r.Get("/friends/{id}/status", directoryHandler.HandleFriendStatus)
		r.Get("/groups", directoryHandler.HandleGroups)
		r.Post("/groups", directoryHandler.HandleCreateGroup)
		r.Post("/groups/{id}/members", directoryHandler.HandleAddGroupMember)
		r.Get("/dashboard", directoryHandler.HandleDashboard)

		r.Post("/calls", callHandler.HandleStart)
		r.Post("/calls/join", callHandler.HandleJoin)
		r.Get("/calls/current", callHandler.HandleCurrent)
		r.Delete("/calls/current", callHandler.HandleEnd)
		r.Post("/presence/heartbeat", callHandler.HandleHeartbeat)

		r.Get("/sounds", workspaceHandler.HandleSounds)
		r.Get("/workspace", workspaceHandler.HandleGet)
		r.Put("/workspace/notes", workspaceHandler.HandleSetNotes)
		r.Post("/workspace/whiteboard/strokes", workspaceHandler.HandleAddStroke)
		r.Delete("/workspace/whiteboard", workspaceHandler.HandleClearWhiteboard)
		r.Put("/workspace/sound", workspaceHandler.HandlePlaySound)
		r.Delete("/workspace/sound", workspaceHandler.HandleStopSound)
		r.Put("/workspace/volume", workspaceHandler.HandleSetVolume)
	})

	return nil
}

// Start serves HTTP until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections and wait for in-flight requests
//  2. Stop the reconciler (waits for a running pass)
//  3. Close Redis and the store
func (s *Server) Start() error {
	defer s.close()

	srv := s.httpServer()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	s.reconciler.Start()

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("env", s.cfg.Env),
			slog.String("store", s.cfg.Store.Backend),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// close releases everything New acquired. Safe to call before Start.
func (s *Server) close() {
	if s.reconciler != nil {
		s.reconciler.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("closing redis failed", slog.String("error", err.Error()))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing store failed", slog.String("error", err.Error()))
	}
}
