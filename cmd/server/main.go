// Ollama manager - local chat server fronting the ollama runner
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/ollama-manager/internal/api"
	"github.com/ashureev/ollama-manager/internal/chat"
	"github.com/ashureev/ollama-manager/internal/config"
	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/ashureev/ollama-manager/internal/health"
	"github.com/ashureev/ollama-manager/internal/metrics"
	"github.com/ashureev/ollama-manager/internal/middleware"
	"github.com/ashureev/ollama-manager/internal/prompt"
	"github.com/ashureev/ollama-manager/internal/resources"
	"github.com/ashureev/ollama-manager/internal/runner"
	"github.com/ashureev/ollama-manager/internal/store"
	"github.com/ashureev/ollama-manager/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const healthWatchInterval = 30 * time.Second

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "runner", cfg.Runner.Path)

	// Initialize dependencies.
	history, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := history.Close(); closeErr != nil {
			slog.Error("Failed to close history store", "error", closeErr)
		}
	}()

	if err := history.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	var invoker runner.Invoker
	if cfg.UsesContainer() {
		dockerInvoker, err := runner.NewDockerInvoker(cfg.Runner.Container, cfg.Runner.Path)
		if err != nil {
			slog.Error("Failed to initialize docker runner", "error", err)
			os.Exit(1)
		}
		defer dockerInvoker.Close()
		invoker = dockerInvoker
		slog.Info("Runner executes in container", "container", cfg.Runner.Container)
	} else {
		invoker = runner.NewExecInvoker(cfg.Runner.Path)
	}

	m := metrics.New()
	models := runner.NewModels(invoker, m)

	if version, err := versionWithTimeout(models, cfg.Runner.Timeout); err != nil {
		slog.Warn("Runner not available yet; completions will report it", "error", err)
	} else {
		slog.Info("Runner detected", "version", version)
	}

	// Initialize services.
	chatService := chat.NewService(invoker, history, chat.Options{
		Prompt:        prompt.NewBuilder(cfg.Completion.Language),
		MaxConcurrent: int64(cfg.Completion.MaxConcurrent),
		Timeout:       cfg.Completion.Timeout,
		Metrics:       m,
	})

	var gpu resources.GPUProbe
	if cfg.Resources.GPUEnabled {
		gpu = resources.NewNvidiaSMIProbe(runner.NewExecInvoker(cfg.Resources.GPUBinary))
	}
	monitor := resources.NewMonitor(resources.NewSampler(gpu), cfg.Resources.Interval)
	hub := resources.NewHub(monitor, cfg.AllowedOrigins)

	var limiter *middleware.RateLimiter
	if cfg.Completion.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Completion.RateLimit, time.Minute)
		defer limiter.Stop()
	}

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(history, models)
	chatHandler := api.NewChatHandler(chatService, limiter)
	modelHandler := api.NewModelHandler(models, cfg.Runner.Timeout, cfg.Runner.PullTimeout)
	resourceHandler := api.NewResourceHandler(monitor, hub)
	debugHandler := api.NewDebugHandler()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", m.Handler())

	chatHandler.RegisterRoutes(r)
	modelHandler.RegisterRoutes(r)
	resourceHandler.RegisterRoutes(r)
	debugHandler.RegisterRoutes(r)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Completions can run for minutes; WriteTimeout stays off.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start resource sampling.
	monitor.Start(ctx, func(u domain.ResourceUsage) {
		m.UpdateHost(u.CPU, u.Memory, u.GPU)
		hub.Broadcast(u)
	})

	// Start optional gRPC health service.
	var grpcHealth *health.Server
	if cfg.GRPCHealthAddr != "" {
		grpcHealth = health.NewServer(map[string]health.Check{
			"": history.Ping,
			health.RunnerService: func(ctx context.Context) error {
				_, err := models.Version(ctx)
				return err
			},
		})
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "addr", cfg.GRPCHealthAddr, "error", err)
			os.Exit(1)
		}
		grpcHealth.Watch(ctx, healthWatchInterval)
		go func() {
			if err := grpcHealth.Serve(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	hub.CloseAll()
	if grpcHealth != nil {
		grpcHealth.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func versionWithTimeout(models *runner.Models, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return models.Version(ctx)
}
