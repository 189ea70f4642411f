package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/responseable/onboarding/internal/api/handlers"
	"github.com/responseable/onboarding/internal/api/middleware"
	"github.com/responseable/onboarding/internal/config"
	"github.com/responseable/onboarding/internal/connector/typeform"
	"github.com/responseable/onboarding/internal/models"
	"github.com/responseable/onboarding/internal/observability"
	"github.com/responseable/onboarding/internal/repository"
	"github.com/responseable/onboarding/internal/service"
	"github.com/responseable/onboarding/internal/workers"
	"github.com/responseable/onboarding/pkg/database"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Configure slog with the log level from config
	setupLogging(cfg.LogLevel)

	// Run pending migrations before serving traffic
	migrator, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize migrator", "error", err)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := migrator.Close(); err != nil {
		slog.Error("Failed to close migrator", "error", err)
	}

	// Initialize database connection
	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	driversRepo := repository.NewDriversRepository(db)
	eventsRepo := repository.NewWebhookEventsRepository(db)
	adminsRepo := repository.NewAdminsRepository(db)

	// Initialize the dispatch loop and register provider handlers
	dispatcher := workers.NewDispatcher(eventsRepo)
	dispatcher.RegisterHandler("typeform", typeform.NewHandler(driversRepo))

	// Initialize services
	var sender service.EmailSender = service.LogEmailSender{}
	if cfg.SMTPHost != "" {
		sender = &service.SMTPEmailSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.FormsSenderEmail,
		}
		slog.Info("SMTP delivery enabled", "host", cfg.SMTPHost)
	} else {
		slog.Info("SMTP delivery disabled (SMTP_HOST not set), logging outbound email")
	}
	formsService := service.NewFormsService(cfg.AdditionalDetailsFormID, sender, cfg.EmailRateLimit)

	ingestionService := service.NewIngestionService(eventsRepo, dispatcher)
	driversService := service.NewDriversService(driversRepo, formsService)
	adminsService := service.NewAdminsService(adminsRepo, time.Duration(cfg.SessionTTLHours)*time.Hour)

	if err := adminsService.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		slog.Error("Failed to ensure bootstrap admin", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	webhooksHandler := handlers.NewWebhooksHandler(ingestionService)
	driversHandler := handlers.NewDriversHandler(driversService)
	adminsHandler := handlers.NewAdminsHandler(adminsService)
	authHandler := handlers.NewAuthHandler(adminsService)
	healthHandler := handlers.NewHealthHandler()

	// Public endpoints: health, webhook ingestion, and login
	publicMux := http.NewServeMux()
	publicMux.HandleFunc("GET /health", healthHandler.Check)
	publicMux.HandleFunc("POST /webhooks/typeform", webhooksHandler.IngestLegacyTypeform)
	publicMux.HandleFunc("POST /webhooks/{provider}/{eventName}", webhooksHandler.Ingest)

	// Session-protected endpoints
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("GET /v1/auth/session", authHandler.Session)

	protectedMux.HandleFunc("GET /v1/webhook-events", webhooksHandler.ListEvents)

	protectedMux.HandleFunc("GET /v1/drivers", middleware.RequirePermission(models.PermViewDrivers, driversHandler.List))
	protectedMux.HandleFunc("POST /v1/drivers", middleware.RequirePermission(models.PermEditDrivers, driversHandler.Create))
	protectedMux.HandleFunc("GET /v1/drivers/stats", middleware.RequirePermission(models.PermViewStats, driversHandler.Stats))
	protectedMux.HandleFunc("GET /v1/drivers/{id}", middleware.RequirePermission(models.PermViewDrivers, driversHandler.Get))
	protectedMux.HandleFunc("PATCH /v1/drivers/{id}", middleware.RequirePermission(models.PermEditDrivers, driversHandler.Update))
	protectedMux.HandleFunc("POST /v1/drivers/{id}/send-additional-details-form",
		middleware.RequirePermission(models.PermSendForms, driversHandler.SendAdditionalDetailsForm))

	protectedMux.HandleFunc("GET /v1/admins", middleware.RequirePermission(models.PermManageAdmins, adminsHandler.List))
	protectedMux.HandleFunc("POST /v1/admins", middleware.RequirePermission(models.PermManageAdmins, adminsHandler.Create))
	protectedMux.HandleFunc("GET /v1/admins/{id}", middleware.RequirePermission(models.PermManageAdmins, adminsHandler.Get))
	protectedMux.HandleFunc("PATCH /v1/admins/{id}", middleware.RequirePermission(models.PermManageAdmins, adminsHandler.UpdateAccess))
	protectedMux.HandleFunc("DELETE /v1/admins/{id}", middleware.RequirePermission(models.PermManageAdmins, adminsHandler.Delete))

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.SessionAuth(adminsService)(protectedHandler)

	// Combine both handlers. Login and logout live under /v1 but must work
	// without an authenticated session, so they are routed ahead of the
	// protected catch-all.
	mainMux := http.NewServeMux()
	mainMux.HandleFunc("POST /v1/auth/login", authHandler.Login)
	mainMux.HandleFunc("POST /v1/auth/logout", authHandler.Logout)
	mainMux.Handle("/v1/", protectedHandler)
	mainMux.Handle("/", publicMux)

	// Outermost first: request id, then access logging, then body limit
	var handler http.Handler = mainMux
	handler = middleware.MaxBody(cfg.MaxRequestBodyBytes)(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Drain any events that were left PENDING by a previous run
	dispatcher.Dispatch(ctx, "typeform")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Stop accepting new HTTP requests
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// 2. Wait for in-flight event drains to finish
	dispatcher.Wait()

	slog.Info("Server exited")
}

// setupLogging configures slog with the specified log level and the
// request-id-aware context handler
func setupLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := observability.NewRequestContextHandler(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(slog.New(handler))
}
