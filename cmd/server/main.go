package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/botfleet/internal/featureflags"
	"github.com/yourorg/botfleet/internal/handler"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
	"github.com/yourorg/botfleet/internal/infrastructure/logger"
	"github.com/yourorg/botfleet/internal/infrastructure/redis"
	"github.com/yourorg/botfleet/internal/linker"
	"github.com/yourorg/botfleet/internal/observability/metrics"
	"github.com/yourorg/botfleet/internal/observability/tracing"
	"github.com/yourorg/botfleet/internal/provision"
	"github.com/yourorg/botfleet/internal/repository"
	"github.com/yourorg/botfleet/internal/security"
	"github.com/yourorg/botfleet/internal/security/audit"
	"github.com/yourorg/botfleet/internal/security/auth"
	"github.com/yourorg/botfleet/internal/security/middleware"
	"github.com/yourorg/botfleet/internal/security/ratelimit"
	"github.com/yourorg/botfleet/internal/service"
	"github.com/yourorg/botfleet/internal/supervisor"
	"github.com/yourorg/botfleet/internal/worker"
	"github.com/yourorg/botfleet/pkg/config"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting botfleet server", slog.String("environment", cfg.Environment))

	for _, dir := range []string{cfg.DatabaseDir, cfg.StorageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("failed to create data directory", slog.String("dir", dir), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 3. Initialize tracing
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "botfleet", cfg.Environment)
	if err != nil {
		log.Warn("tracing disabled", slog.String("error", err.Error()))
	} else {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	// 4. Initialize Redis. Optional; the identity cache degrades to
	// in-process caching without it.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// 5. Initialize storage and repositories
	store, err := jsonstore.New(cfg.DatabaseDir, log)
	if err != nil {
		log.Error("failed to initialize record store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	tenantRepo := repository.NewTenantRepository(store, log)
	botRepo := repository.NewBotRepository(store, log)
	playerRepo := repository.NewPlayerRepository(store, log)
	linkRepo := repository.NewLinkRepository(store, log)

	// 6. Initialize process control and the account service client
	sup := supervisor.New(cfg.BotEntryPoint, cfg.BotCommand, cfg.StartGrace, cfg.StopTimeout, log)
	provisioner := provision.New(cfg.TemplateDir, log)

	linkerClient := linker.New(cfg.LinkerBaseURL, cfg.LinkerTimeout, redisClient, log)

	// 7. Initialize services
	hub := service.NewEventHub()
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "botfleet")
	authService := service.NewAuthService(tenantRepo, tokenManager, log)
	tenantService := service.NewTenantService(tenantRepo, botRepo, playerRepo, sup, provisioner, cfg.StorageDir, log)
	botService := service.NewBotService(botRepo, tenantRepo, playerRepo, sup, provisioner, hub, cfg.StorageDir, log)
	rosterService := service.NewRosterService(botRepo, playerRepo, linkerClient, log)

	// 8. Bootstrap the admin account
	if cfg.AdminPassword != "" {
		if err := tenantService.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Error("failed to bootstrap admin", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		log.Warn("ADMIN_PASSWORD not set, skipping admin bootstrap")
	}

	// 9. Initialize security components and handlers
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)
	authz := security.NewAuthorizationService(log)

	authHandler := handler.NewAuthHandler(authService, rateLimiter, auditLogger, log)
	tenantHandler := handler.NewTenantHandler(tenantService, authz, auditLogger, log)
	botHandler := handler.NewBotHandler(botService, auditLogger, log)
	rosterHandler := handler.NewRosterHandler(rosterService, auditLogger, log)
	linkHandler := handler.NewLinkHandler(linkRepo, authz, log)
	eventsHandler := handler.NewEventsHandler(hub, botRepo, tenantRepo, tokenManager, cfg.CORSAllowedOrigins, log)
	healthHandler := handler.NewHealthHandler(cfg.DatabaseDir, rawRedisOf(redisClient), log)

	// 10. Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", authHandler.Login)
	mux.HandleFunc("POST /api/password", authHandler.ChangePassword)

	mux.HandleFunc("GET /api/tenants", tenantHandler.List)
	mux.HandleFunc("POST /api/tenants", tenantHandler.Create)
	mux.HandleFunc("PUT /api/tenants/{id}", tenantHandler.Update)
	mux.HandleFunc("DELETE /api/tenants/{id}", tenantHandler.Delete)

	mux.HandleFunc("GET /api/bots", botHandler.List)
	mux.HandleFunc("POST /api/bots", botHandler.Create)
	mux.HandleFunc("GET /api/bots/{id}", botHandler.Get)
	mux.HandleFunc("DELETE /api/bots/{id}", botHandler.Delete)
	mux.HandleFunc("POST /api/bots/{id}/{action}", botHandler.Action)

	mux.HandleFunc("GET /api/bots/{id}/players", rosterHandler.List)
	mux.HandleFunc("POST /api/bots/{id}/players", rosterHandler.Add)
	mux.HandleFunc("POST /api/bots/{id}/players/bulk", rosterHandler.AddBulk)
	mux.HandleFunc("POST /api/bots/{id}/players/bulk-remove", rosterHandler.RemoveBulk)
	mux.HandleFunc("GET /api/bots/{id}/players/{uid}", rosterHandler.Check)
	mux.HandleFunc("DELETE /api/bots/{id}/players/{uid}", rosterHandler.Remove)
	mux.HandleFunc("GET /api/players/{uid}/info", rosterHandler.Info)

	mux.HandleFunc("GET /api/links", linkHandler.List)
	mux.HandleFunc("POST /api/links", linkHandler.Create)
	mux.HandleFunc("DELETE /api/links/{id}", linkHandler.Delete)

	mux.Handle("GET /ws/events/{id}", eventsHandler)
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> metrics -> sanitize -> content type
	// -> JWT -> rate limit -> CORS
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			middleware.SanitizeInputs(log)(
				middleware.ValidateJSONContentType(log)(
					middleware.JWTMiddleware(tokenManager, tenantRepo, log)(
						middleware.RateLimitMiddleware(rateLimiter, log)(handlerWithCORS),
					),
				),
			),
		),
		log,
	)
	tracedHandler := otelhttp.NewHandler(rootHandler, "botfleet.http")

	// 11. Start background workers
	livenessWorker := worker.NewLivenessWorker(botRepo, sup, hub, log, cfg.LivenessInterval)
	go livenessWorker.Start(ctx)

	if featureflags.Enabled("roster_expiry_sweep") {
		expiryWorker := worker.NewRosterExpiryWorker(botRepo, playerRepo, rosterService, log, cfg.RosterExpiryInterval)
		go expiryWorker.Start(ctx)
	} else {
		log.Info("roster expiry sweep disabled, set FLAG_ROSTER_EXPIRY_SWEEP=true to enable")
	}

	// 12. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      tracedHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop background workers
	rateLimiter.Stop()
	log.Info("server stopped")
}

// rawRedisOf unwraps the optional redis client, keeping nil nil
func rawRedisOf(c *redis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Raw()
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
