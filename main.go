package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gin-gonic/gin"

	"github.com/johnwmail/vpaste/config"
	"github.com/johnwmail/vpaste/handlers"
	"github.com/johnwmail/vpaste/internal/metrics"
	"github.com/johnwmail/vpaste/internal/server"
	"github.com/johnwmail/vpaste/internal/services"
	"github.com/johnwmail/vpaste/internal/slug"
	"github.com/johnwmail/vpaste/storage"
)

// Version/build info (set via -ldflags at build time)
var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "none"
)

// isLambdaEnvironment detects if running in AWS Lambda
func isLambdaEnvironment() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" || os.Getenv("AWS_LAMBDA_RUNTIME_API") != ""
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}
	cfg.Version = Version
	cfg.BuildTime = BuildTime
	cfg.CommitHash = CommitHash

	logger := setupLogging(cfg)
	slog.SetDefault(logger)
	logger.Info("Starting vpaste", "version", Version, "build_time", BuildTime, "commit", CommitHash)

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.TestMode {
		logger.Warn("Test mode enabled: the X-Test-Now-Ms header overrides the clock")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	backend, err := storage.NewStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "store", cfg.StoreType, "error", err)
		os.Exit(1)
	}
	logger.Info("Storage initialized", "store", cfg.StoreType)

	var store storage.HashStore = backend
	if m != nil {
		store = storage.NewInstrumented(backend, m)
	}

	ids, err := slug.New(cfg.IDLength, cfg.IDAlphabet)
	if err != nil {
		logger.Error("Invalid id settings", "error", err)
		os.Exit(1)
	}

	pasteService := services.NewPasteService(store, ids,
		services.WithKeyPrefix(cfg.KeyPrefix),
		services.WithLogger(logger),
		services.WithMetrics(m),
	)

	router, err := setupRouter(pasteService, ids, cfg, m, logger)
	if err != nil {
		logger.Error("Failed to set up router", "error", err)
		os.Exit(1)
	}

	if isLambdaEnvironment() {
		logger.Info("Starting in AWS Lambda mode")
		lambda.Start(newLambdaHandler(router, logger))
		return
	}

	logger.Info("Starting in HTTP server mode")
	runHTTPServer(router, cfg, store, pasteService, logger)
}

// setupLogging builds the process logger from the configured level and format
func setupLogging(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// setupRouter creates and configures the Gin router. m may be nil, in which
// case /metrics is not served.
func setupRouter(pasteService *services.PasteService, ids *slug.Generator, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*gin.Engine, error) {
	pasteHandler := handlers.NewPasteHandler(pasteService, ids, cfg, logger)
	systemHandler := handlers.NewSystemHandler(pasteService, cfg)
	webuiHandler := handlers.NewWebUIHandler(cfg)

	tmpl, err := handlers.Templates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(requestLogger(logger))
	router.Use(jsonRecovery(logger))

	// Web UI and preview pages
	router.GET("/", webuiHandler.Index)
	router.GET("/p/:id", pasteHandler.Preview)

	api := router.Group("/api")
	api.GET("/p/:id", pasteHandler.Preview)
	api.GET("/healthz", systemHandler.Health)

	pastes := api.Group("/pastes", canonicalErrors(logger))
	pastes.POST("", pasteHandler.Create)
	pastes.GET("/:id", pasteHandler.View)
	pastes.GET("/:id/meta", pasteHandler.Meta)

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
	})

	return router, nil
}

// sweeper is implemented by stores that cannot expire keys on their own
type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// janitorTarget finds the sweeper beneath any wrapping stores
func janitorTarget(store storage.HashStore) (sweeper, bool) {
	for {
		if s, ok := store.(sweeper); ok {
			return s, true
		}
		w, ok := store.(interface{ Unwrap() storage.HashStore })
		if !ok {
			return nil, false
		}
		store = w.Unwrap()
	}
}

// runJanitor sweeps expired keys every interval until ctx is done
func runJanitor(ctx context.Context, s sweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Sweep(ctx, now)
			if err != nil {
				logger.Warn("Expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("Expiry sweep removed keys", "count", n)
			}
		}
	}
}

// runHTTPServer starts the HTTP server for container mode, plus the TCP
// ingestion server and the expiry janitor when they apply.
func runHTTPServer(router *gin.Engine, cfg *config.Config, store storage.HashStore, pasteService *services.PasteService, logger *slog.Logger) {
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing storage", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s, ok := janitorTarget(store); ok && cfg.JanitorInterval > 0 {
		logger.Info("Starting expiry janitor", "interval", cfg.JanitorInterval)
		go runJanitor(ctx, s, cfg.JanitorInterval, logger)
	}

	if cfg.TCPPort != 0 {
		tcpServer := server.NewTCPServer(cfg, pasteService, logger)
		if err := tcpServer.Start(); err != nil {
			logger.Error("Failed to start TCP server", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := tcpServer.Stop(); err != nil {
				logger.Error("Error stopping TCP server", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting vpaste server", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	} else {
		logger.Info("Server shutdown complete")
	}
}
