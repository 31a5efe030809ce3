package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fentz26/potok/internal/audit"
	"github.com/fentz26/potok/internal/cache"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/connectors"
	"github.com/fentz26/potok/internal/connectors/webhook"
	"github.com/fentz26/potok/internal/controlplane"
	"github.com/fentz26/potok/internal/distribution"
	"github.com/fentz26/potok/internal/observability"
	"github.com/fentz26/potok/internal/stateprovider"
	"github.com/fentz26/potok/internal/store"
	"github.com/spf13/cobra"
)

var (
	listenAddr    string
	dbPath        string
	configPath    string
	stateURL      string
	webhookURL    string
	webhookSecret string
	otelExporter  string
	logLevel      string
	purgeInterval time.Duration
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Potok daemon",
	Long:  `Starts the Potok daemon which provides the HTTP API for task distribution.`,
	RunE:  runDaemon,
}

func init() {
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".potok", "potok.db")

	daemonCmd.Flags().StringVar(&listenAddr, "listen", envOr("POTOK_LISTEN", "127.0.0.1:7466"), "Listen address for the API server")
	daemonCmd.Flags().StringVar(&dbPath, "db", envOr("POTOK_DB", defaultDB), "Path to SQLite database")
	daemonCmd.Flags().StringVar(&configPath, "config", os.Getenv("POTOK_CONFIG"), "Algorithm config file (default ~/.potok/algorithm.yaml)")
	daemonCmd.Flags().StringVar(&stateURL, "state-url", os.Getenv("POTOK_STATE_URL"), "Base URL of the user state service")
	daemonCmd.Flags().StringVar(&webhookURL, "webhook-url", os.Getenv("POTOK_WEBHOOK_URL"), "URL receiving scheduling notifications")
	daemonCmd.Flags().StringVar(&webhookSecret, "webhook-secret", os.Getenv("POTOK_WEBHOOK_SECRET"), "Shared secret sent with notifications")
	daemonCmd.Flags().StringVar(&otelExporter, "otel-exporter", "", "Trace exporter: none, stdout, otlp, otlphttp (default $POTOK_OTEL_EXPORTER)")
	daemonCmd.Flags().StringVar(&logLevel, "log-level", envOr("POTOK_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	daemonCmd.Flags().DurationVar(&purgeInterval, "cache-purge-interval", 10*time.Minute, "How often expired cache entries are removed")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting Potok daemon...")
	logger := newLogger(logLevel)

	// Load algorithm configuration
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
	} else {
		cfg, err = config.LoadConfigFromHome()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Tracing
	tracing := observability.TracingConfigFromEnv()
	if otelExporter != "" {
		tracing.Exporter = strings.ToLower(otelExporter)
	}
	shutdownTracing, err := observability.InitTracing("potok", tracing)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}

	// Initialize store
	s, err := store.New(dbPath)
	if err != nil {
		return err
	}

	// Initialize components
	var notifier connectors.Notifier = connectors.Nop{}
	var dispatcher *webhook.Dispatcher
	if webhookURL != "" {
		whCfg := webhook.DefaultConfig()
		whCfg.URL = webhookURL
		whCfg.Secret = webhookSecret
		dispatcher = webhook.New(whCfg, logger)
		dispatcher.Start()
		notifier = dispatcher
		log.Printf("Webhook notifications enabled for %s", webhookURL)
	}

	states := stateprovider.New(stateURL, logger)
	if stateURL == "" {
		log.Println("No state service configured, using the neutral user state")
	}

	service := controlplane.NewService(controlplane.Dependencies{
		Store:    s,
		Engine:   distribution.New(cfg, logger),
		States:   states,
		Cache:    cache.NewStore(s),
		Recorder: audit.NewRecorder(s, logger),
		Notifier: notifier,
		Logger:   logger,
	})
	server := controlplane.NewServer(service, listenAddr)

	// Expired cache rows are only skipped on read, so sweep them periodically.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go purgeCache(ctx, s, purgeInterval, logger)

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	cancel()

	if dispatcher != nil {
		log.Println("Flushing webhook notifications...")
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			log.Printf("Webhook shutdown error: %v", err)
		}
		delivered, failed, dropped := dispatcher.Stats()
		log.Printf("Webhooks: %d delivered, %d failed, %d dropped", delivered, failed, dropped)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func purgeCache(ctx context.Context, s *store.Store, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredCache(ctx)
			if err != nil {
				logger.Warn("cache purge failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache entries", slog.Int64("count", n))
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
