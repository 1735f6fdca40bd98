// Package server sets up the HTTP server, router, and all route definitions.
//
// It is the composition root: New builds the store, the notification
// backend, the services and the handlers, and wires them to routes.
//
//	config → sqlite.DB → services → handlers → chi routes
//	              notify.Backend ↗         ↘ certificate mailer (subscriber)
package server

import (
	"context"
	"encoding/json"
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
	"github.com/go-chi/cors"

	"github.com/sakif/servicehours/internal/auth"
	"github.com/sakif/servicehours/internal/config"
	"github.com/sakif/servicehours/internal/handler"
	"github.com/sakif/servicehours/internal/mailer"
	"github.com/sakif/servicehours/internal/middleware"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
	sqliteRepo "github.com/sakif/servicehours/internal/repository/sqlite"
	"github.com/sakif/servicehours/internal/service"
)

// auditGroup is the subscription group of the session audit log.
const auditGroup = "audit"

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database and the notification backend. Start closes
// both on shutdown, after the HTTP server has drained.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	backend notify.Backend
	mailer  mailer.Mailer
	streams *handler.ProgressHandler
}

// New opens the store and the notification backend and builds the router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	backend, err := NewBackend(cfg.Notify)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting notification backend: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		backend: backend,
		mailer: mailer.New(mailer.Config{
			Provider:        cfg.Mail.Provider,
			FromAddress:     cfg.Mail.FromAddress,
			FromName:        cfg.Mail.FromName,
			Region:          cfg.Mail.AWSRegion,
			AccessKeyID:     cfg.Mail.AWSAccessKeyID,
			SecretAccessKey: cfg.Mail.AWSSecretAccessKey,
		}, logger),
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// NewBackend picks the notification transport named in config.
func NewBackend(cfg config.NotifyConfig) (notify.Backend, error) {
	switch cfg.Backend {
	case "rabbitmq":
		return notify.NewRabbitMQ(cfg.RabbitMQURL)
	case "memory", "":
		return notify.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown notification backend %q", cfg.Backend)
	}
}

// Services bundles the business layer so the CLI can reuse it without HTTP.
type Services struct {
	Engine        *service.AccountingEngine
	Hours         *service.HourService
	Registrations *service.RegistrationService
	Events        *service.EventService
	Progress      *service.ProgressService
	Auth          *service.AuthService
	Tokens        *auth.TokenService
}

// NewServices wires every service over db, publishing to backend.
func NewServices(cfg *config.Config, db *sqliteRepo.DB, backend notify.Backend, logger *slog.Logger) (*Services, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	bus := notify.NewBus(backend)
	policy := service.UnregisterPolicy(cfg.Policy.HoursOnUnregister)
	eventPolicy := service.EventPolicy{
		CreateRole: model.Role(cfg.Policy.EventCreateRole),
		Delete:     service.DeletePolicy(cfg.Policy.EventDeletePolicy),
	}

	engine := NewAccountingEngine(cfg, db, bus, logger)
	return &Services{
		Engine:        engine,
		Hours:         service.NewHourService(db.HourRequests(), db.Events(), engine, logger),
		Registrations: service.NewRegistrationService(db.Registrations(), db.Events(), engine, policy, cfg.Policy.EnforceCapacity, logger),
		Events:        service.NewEventService(db.Events(), eventPolicy, logger),
		Progress:      service.NewProgressService(engine, db.Users(), db.Events()),
		Auth:          service.NewAuthService(db.Users(), tokens, auth.NewPasswordService(), bus, logger),
		Tokens:        tokens,
	}, nil
}

// NewAccountingEngine builds the engine alone. The recompute command uses
// it without the rest of the service layer.
func NewAccountingEngine(cfg *config.Config, db *sqliteRepo.DB, publisher notify.Publisher, logger *slog.Logger) *service.AccountingEngine {
	thresholds := model.Thresholds{
		EventCertificateHours:  cfg.Accounting.EventCertificateHours,
		GlobalCertificateHours: cfg.Accounting.GlobalCertificateHours,
	}
	policy := service.UnregisterPolicy(cfg.Policy.HoursOnUnregister)
	return service.NewAccountingEngine(db.HourRequests(), db.Registrations(), db.Accounts(), db.Certificates(), publisher, thresholds, policy, logger)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                           → liveness
// POST   /auth/signup | /auth/login         → password sign-in
// POST   /auth/logout                       → clear the session
// GET    /auth/github/login | /callback     → GitHub sign-in (when configured)
// GET    /api/events[/{id}]                 → public catalog
// POST   /api/events, DELETE /api/events/{id} → policy-checked in the service
// POST|DELETE /api/events/{id}/registration → enroll / leave
// POST   /api/events/{id}/hour-requests     → submit hours
// GET    /api/me[/registrations|/hour-requests|/progress|/progress/stream|/certificates]
// GET    /api/hour-requests                 → organizer review queue
// POST   /api/hour-requests/{id}/approve|reject
//
// MIDDLEWARE ORDER MATTERS:
// RequestID → RealIP → Logger → Recoverer → CORS, then auth per group.
func (s *Server) setupRoutes() error {
	svc, err := NewServices(s.config, s.db, s.backend, s.logger)
	if err != nil {
		return err
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var github handler.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	health := handler.NewHealthHandler(s.db)
	authHandler := handler.NewAuthHandler(svc.Auth, github, svc.Tokens.TTL(), s.config.Environment == "production", s.logger)
	events := handler.NewEventHandler(svc.Events, s.logger)
	registrations := handler.NewRegistrationHandler(svc.Registrations, s.logger)
	hours := handler.NewHourHandler(svc.Hours, s.logger)
	progress := handler.NewProgressHandler(svc.Progress, s.backend, s.logger)
	s.streams = progress

	requireAuth := auth.RequireAuth(svc.Tokens)

	s.router.Get("/healthz", health.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.HandleSignUp)
		r.Post("/login", authHandler.HandleLogin)
		r.With(auth.OptionalAuth(svc.Tokens)).Post("/logout", authHandler.HandleLogout)
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events", events.HandleList)
		r.Get("/events/{id}", events.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Post("/events", events.HandleCreate)
			r.Delete("/events/{id}", events.HandleDelete)
			r.Post("/events/{id}/registration", registrations.HandleRegister)
			r.Delete("/events/{id}/registration", registrations.HandleUnregister)
			r.Post("/events/{id}/hour-requests", hours.HandleSubmit)

			r.Get("/me", authHandler.HandleMe)
			r.Get("/me/registrations", registrations.HandleListMine)
			r.Get("/me/hour-requests", hours.HandleListMine)
			r.Get("/me/progress", progress.HandleView)
			r.Get("/me/progress/stream", progress.HandleStream)
			r.Get("/me/certificates", progress.HandleCertificates)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(model.RoleOrganizer))
				r.Get("/hour-requests", hours.HandleListPending)
				r.Post("/hour-requests/{id}/approve", hours.HandleApprove)
				r.Post("/hour-requests/{id}/reject", hours.HandleReject)
			})
		})
	})

	return nil
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartSubscribers runs the background consumers: the certificate mailer
// and the session audit log. They stop when ctx is cancelled.
func (s *Server) StartSubscribers(ctx context.Context) []*notify.Subscription {
	notifier := mailer.NewCertificateNotifier(s.mailer, s.db.Users(), s.db.Events(), s.logger)
	return []*notify.Subscription{
		notifier.Start(ctx, s.backend),
		notify.Start(ctx, s.backend, notify.Grouped(notify.TopicSessionChanged, auditGroup), s.auditSession, s.logger),
	}
}

func (s *Server) auditSession(_ context.Context, msg notify.Message) error {
	var change notify.SessionChanged
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		s.logger.Warn("dropping malformed session event", slog.String("error", err.Error()))
		return nil
	}
	s.logger.Info("session changed",
		slog.String("user_id", change.UserID),
		slog.Bool("signed_in", change.SignedIn),
	)
	return nil
}

// httpServer builds the listener-facing server. Shutting it down ends the
// open progress streams, which would otherwise hold Shutdown open.
func (s *Server) httpServer() *http.Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv.RegisterOnShutdown(s.streams.Shutdown)
	return srv
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections and end the progress streams
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the subscribers, then close the backend and the database
//
// Request contexts are not tied to the subscriber context, so in-flight
// requests keep running until Shutdown returns.
func (s *Server) Start() error {
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	subs := s.StartSubscribers(ctx)
	defer func() {
		cancel()
		for _, sub := range subs {
			_ = sub.Stop()
		}
	}()

	srv := s.httpServer()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("notify_backend", s.config.Notify.Backend),
			slog.Bool("github_sign_in", s.config.GitHubEnabled()),
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

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the backend and the store.
func (s *Server) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Warn("closing notification backend", slog.String("error", err.Error()))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
