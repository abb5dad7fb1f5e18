package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-tracker/pkg/audit"
	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
	"github.com/ekaya-inc/ekaya-tracker/pkg/config"
	"github.com/ekaya-inc/ekaya-tracker/pkg/database"
	"github.com/ekaya-inc/ekaya-tracker/pkg/handlers"
	"github.com/ekaya-inc/ekaya-tracker/pkg/logging"
	"github.com/ekaya-inc/ekaya-tracker/pkg/metrics"
	"github.com/ekaya-inc/ekaya-tracker/pkg/middleware"
	"github.com/ekaya-inc/ekaya-tracker/pkg/repositories"
	"github.com/ekaya-inc/ekaya-tracker/pkg/retry"
	"github.com/ekaya-inc/ekaya-tracker/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// devSessionSecret signs session cookies in local development only.
const devSessionSecret = "ekaya-tracker-local-development"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.String("error", logging.SanitizeError(err)))
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Int("jwks_issuers", len(cfg.Auth.JWKSEndpoints)),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}
	if err := database.Seed(ctx, db, cfg.Seed.DemoProject, logger); err != nil {
		return fmt.Errorf("failed to seed reference data: %w", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)
	metrics.RegisterPoolStats(registry, db.Pool)

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize JWKS client: %w", err)
	}
	defer jwksClient.Close()
	if !cfg.Auth.EnableVerification {
		logger.Warn("JWT signature verification is disabled")
	}

	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)

	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		logger.Warn("SESSION_SECRET not set; using development secret")
		sessionSecret = devSessionSecret
	}
	sessions := auth.NewSessionStore(sessionSecret, auth.DeriveCookieSettings(cfg.BaseURL, cfg.CookieDomain))

	// Repositories
	projectRepo := repositories.NewProjectRepository()
	membershipRepo := repositories.NewMembershipRepository()
	roleRepo := repositories.NewRoleRepository()
	statusRepo := repositories.NewStatusRepository()
	ticketRepo := repositories.NewTicketRepository()

	// Authorization
	auditor := audit.NewSecurityAuditor(logger)
	resolver := authz.NewResolver(membershipRepo, projectRepo, logger)
	guard := authz.NewGuard(logger, m, auditor)

	// Services
	projectService := services.NewProjectService(projectRepo, membershipRepo, resolver, guard, auditor, logger)
	membershipService := services.NewMembershipService(membershipRepo, roleRepo, guard, auditor, m, logger)
	ticketService := services.NewTicketService(ticketRepo, membershipRepo, guard, logger)
	referenceService := services.NewReferenceService(roleRepo, statusRepo)

	// Routes
	mux := http.NewServeMux()
	mw := handlers.Middlewares{
		Auth:    authMiddleware,
		Scope:   database.WithScopeContext(db, logger),
		Project: authz.NewMiddleware(resolver, logger),
	}

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	metrics.RegisterEndpoint(mux, registry)
	handlers.NewProjectsHandler(projectService, sessions, logger).RegisterRoutes(mux, mw)
	handlers.NewMembersHandler(membershipService, logger).RegisterRoutes(mux, mw)
	handlers.NewTicketsHandler(ticketService, sessions, logger).RegisterRoutes(mux, mw)
	handlers.NewReferenceHandler(referenceService, logger).RegisterRoutes(mux, mw)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(logger)(metrics.HTTPMiddleware(m)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ekaya-tracker",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))

		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// connectDatabase opens the pool, retrying while the database is starting up.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*database.DB, error) {
	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("Database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("error", logging.SanitizeError(err)))
	}

	db, err := retry.Do(ctx, retryCfg, func(ctx context.Context) (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// migrate applies pending schema migrations over a short-lived database/sql handle.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
