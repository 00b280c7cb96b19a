package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/davfs/internal/logger"
	"github.com/marmos91/davfs/internal/protocol/dav/handlers"
	"github.com/marmos91/davfs/internal/server"
	"github.com/marmos91/davfs/pkg/config"
	"github.com/marmos91/davfs/pkg/metrics"
	metricsprom "github.com/marmos91/davfs/pkg/metrics/prometheus"
)

func main() {
	configPath := flag.String("config", "", fmt.Sprintf("Path to config file (default %s)", config.GetDefaultConfigPath()))
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.Info("log level set to %s", cfg.Logging.Level)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics collection enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs, err := config.CreateStorage(ctx, &cfg.Storage)
	if err != nil {
		logger.Error("failed to create storage backend: %v", err)
		os.Exit(1)
	}

	locks, err := config.CreateLockRegistry(&cfg.Locks)
	if err != nil {
		logger.Error("failed to create lock registry: %v", err)
		os.Exit(1)
	}
	if closer, ok := locks.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("closing lock registry: %v", err)
			}
		}()
	}

	dav := handlers.New(fs, locks,
		handlers.WithPrefix(cfg.Server.Prefix),
		handlers.WithMetrics(metricsprom.NewDAVMetrics()),
	)

	srv := server.New(cfg, dav)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error: %v", err)
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case err := <-serverDone:
		if err != nil {
			logger.Error("server error: %v", err)
			os.Exit(1)
		}
		logger.Info("server stopped")
	}
}
