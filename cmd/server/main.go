package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slipsight/slipsight/internal"
	"github.com/slipsight/slipsight/internal/backend"
	"github.com/slipsight/slipsight/internal/checkout"
	"github.com/slipsight/slipsight/internal/handler"
	"github.com/slipsight/slipsight/internal/metrics"
	"github.com/slipsight/slipsight/internal/middleware"
	"github.com/slipsight/slipsight/internal/service"
	"github.com/slipsight/slipsight/internal/session"
)

func run() error {
	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize backend API client
	api, err := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("backend client initialization failed: %w", err)
	}
	logger.Info("Backend client ready", "url", cfg.BackendURL)

	// Initialize session store
	store := session.NewStore(session.StoreConfig{
		MaxSessions: cfg.MaxSessions,
		TTL:         cfg.SessionTTL,
	}, logger)

	// Initialize services
	ledger := service.NewUsageLedger(api, logger)
	analyzer := service.NewAnalyzer(api, ledger, logger)

	// Initialize template renderer
	renderer, err := handler.NewRenderer(handler.RendererConfig{
		TemplatesDir: "web/templates",
		Logger:       logger,
		IsDev:        cfg.Env == "development",
	})
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	logger.Info("Templates loaded", "count", len(renderer.ListTemplates()))

	// Initialize middleware
	isSecure := cfg.SecureCookies
	sessionMw := middleware.NewSessionMiddleware(store, logger, isSecure, cfg.IsAdmin)
	authLimiter := middleware.NewAuthRateLimiter(logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(api, store, authLimiter, renderer, logger, isSecure)
	dashboardHandler := handler.NewDashboardHandler(api, analyzer, ledger, renderer, logger, isSecure)
	historyHandler := handler.NewHistoryHandler(api, renderer, logger, isSecure)
	billingHandler := handler.NewBillingHandler(api, ledger, checkout.Config{
		Interval:    cfg.CheckoutPollInterval,
		MaxAttempts: cfg.CheckoutPollAttempts,
	}, renderer, logger, cfg.BaseURL, isSecure)
	adminHandler := handler.NewAdminHandler(api, renderer, logger, isSecure)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Static files
	staticFS := http.FileServer(http.Dir("web/static"))
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticFS))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics (basic auth when credentials are configured)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Root redirects to the dashboard; RequireSession bounces
	// unauthenticated visitors on to /login from there.
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path
		if r.URL.Path != "/" {
			handler.NotFoundResponse(w, r, logger)
			return
		}
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	// Auth routes (public - no auth required)
	authHandler.RegisterRoutes(mux, authLimiter.LimitLogin, authLimiter.LimitSignup)

	// Create middleware stacks for protected routes
	requireSession := middleware.Stack(sessionMw.WithSession, sessionMw.RequireSession)
	requireAdmin := middleware.Stack(sessionMw.WithSession, sessionMw.RequireSession, sessionMw.RequireAdmin)

	dashboardHandler.RegisterRoutes(mux, requireSession, authLimiter.LimitAnalyze)
	historyHandler.RegisterRoutes(mux, requireSession)
	billingHandler.RegisterRoutes(mux, requireSession)
	adminHandler.RegisterRoutes(mux, requireAdmin)

	// Outer stack applied to every request
	root := middleware.Stack(
		securityMw.Handler,
		loggingMw.Handler,
		metrics.Middleware,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
