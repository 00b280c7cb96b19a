// Package server hosts the HTTP front of davfs.
//
// It wires the DAV handler behind the middleware chain (request logging
// and optional Basic authentication), exposes the Prometheus endpoint,
// and owns listener lifecycle including graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/davfs/internal/logger"
	"github.com/marmos91/davfs/internal/ratelimiter"
	"github.com/marmos91/davfs/pkg/config"
	"github.com/marmos91/davfs/pkg/metrics"
)

// Server is the davfs HTTP server.
type Server struct {
	cfg        config.ServerConfig
	metricsCfg config.MetricsConfig
	httpSrv    *http.Server
	metricsSrv *http.Server
}

// New creates a server hosting the given DAV handler.
//
// The handler is wrapped with request logging and, when configured,
// Basic authentication. When metrics are enabled the Prometheus
// endpoint is mounted at /metrics, either on the main listener or on a
// dedicated one depending on metrics.listen.
func New(cfg *config.Config, dav http.Handler) *Server {
	s := &Server{
		cfg:        cfg.Server,
		metricsCfg: cfg.Metrics,
	}

	handler := withRequestLogging(dav)
	if cfg.Server.Auth.Enabled {
		handler = withBasicAuth(handler, &cfg.Server.Auth)
	}
	if cfg.Server.RateLimit.RequestsPerSecond > 0 {
		limiter := ratelimiter.New(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		handler = withRateLimit(handler, limiter)
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)

	if cfg.Metrics.Enabled {
		promHandler := promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
		if cfg.Metrics.Listen == "" || cfg.Metrics.Listen == cfg.Server.Listen {
			mux.Handle("/metrics", promHandler)
		} else {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promHandler)
			s.metricsSrv = &http.Server{
				Addr:    cfg.Metrics.Listen,
				Handler: metricsMux,
			}
		}
	}

	s.httpSrv = &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// Serve runs the server until the context is canceled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		logger.Info("HTTP server listening on %s", s.cfg.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	if s.metricsSrv != nil {
		go func() {
			logger.Info("metrics server listening on %s", s.metricsCfg.Listen)
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if err != nil {
			s.closeAll()
			return err
		}
		return nil
	}
}

// shutdown drains in-flight requests, closing connections outright once
// the shutdown timeout elapses.
func (s *Server) shutdown() error {
	logger.Info("shutting down, draining connections (timeout %v)", s.cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("metrics shutdown: %w", err)
		}
	}
	return firstErr
}

func (s *Server) closeAll() {
	_ = s.httpSrv.Close()
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Close()
	}
}
