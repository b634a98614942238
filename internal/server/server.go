package server

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/benjaminschubert/cacheproxy/internal/cache"
	"github.com/benjaminschubert/cacheproxy/internal/config"
	"github.com/benjaminschubert/cacheproxy/internal/handlers"
	"github.com/benjaminschubert/cacheproxy/internal/handlers/admin"
	"github.com/benjaminschubert/cacheproxy/internal/middleware"
	"github.com/benjaminschubert/cacheproxy/internal/proxy"
)

const shutdownTimeout = time.Minute

type adminInfo struct {
	server   *http.Server
	listener net.Listener
	logger   *zerolog.Logger
}

type Server struct {
	proxy       *proxy.Listener
	proxyLogger *zerolog.Logger
	admin       *adminInfo
	logger      *zerolog.Logger
}

// New binds the proxy and, if enabled, the admin interface. Nothing is
// served until ListenAndServe or Serve is called.
func New(
	conf *config.Config,
	c *cache.Cache,
	forwarder proxy.Forwarder,
	recorder proxy.Recorder,
	logger *zerolog.Logger,
	metricsRegistry interface {
		prometheus.Registerer
		prometheus.Gatherer
	},
) (*Server, error) {
	srv := Server{logger: logger}

	proxyLogger := logger.With().Str("service", "proxy").Logger()
	handler := proxy.NewHandler(c, forwarder, recorder, proxy.Options{
		ReadTimeout:  conf.Client.ReadTimeout,
		WriteTimeout: conf.Client.WriteTimeout,
	})
	listener, err := proxy.Listen(conf.Listen, handler, &proxyLogger)
	if err != nil {
		return nil, err
	}
	srv.proxy = listener
	srv.proxyLogger = &proxyLogger

	if conf.AdminInterface != "" {
		info, err := setupAdminInterface(conf, c, logger, metricsRegistry)
		if err != nil {
			_ = listener.Shutdown(context.Background())
			return nil, err
		}
		srv.admin = info
	} else if conf.EnableProfiling {
		logger.Warn().Msg("Profiling requested, but the admin interface is disabled. Ignoring.")
	}

	return &srv, nil
}

func (s *Server) ProxyAddr() net.Addr {
	return s.proxy.Addr()
}

// AdminAddr returns the address of the admin interface, or nil if disabled.
func (s *Server) AdminAddr() net.Addr {
	if s.admin == nil {
		return nil
	}
	return s.admin.listener.Addr()
}

// ListenAndServe serves until an interrupt signal is received.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return s.Serve(ctx)
}

// Serve serves until ctx is done or one of the servers fails, then shuts
// everything down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errChan := make(chan error, 2)
	running := 1

	go func() {
		s.proxyLogger.Info().Str("address", s.proxy.Addr().String()).Msg("Starting server")
		err := s.proxy.Serve()
		if !errors.Is(err, proxy.ErrListenerClosed) {
			s.proxyLogger.Error().Err(err).Msg("Server didn't come up properly")
		}
		errChan <- err
	}()

	if s.admin != nil {
		running++
		go func() {
			s.admin.logger.Info().Str("address", s.admin.listener.Addr().String()).Msg("Starting server")
			err := s.admin.server.Serve(s.admin.listener)
			if !errors.Is(err, http.ErrServerClosed) {
				s.admin.logger.Error().Err(err).Msg("Server didn't come up properly")
			}
			errChan <- err
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down")
	case serveErr = <-errChan:
		running--
		s.logger.Error().Err(serveErr).Msg("At least one server is unhealthy, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.proxy.Shutdown(shutdownCtx); err != nil {
		s.proxyLogger.Error().Err(err).Msg("Error shutting down the server")
		errs = append(errs, err)
	}
	if s.admin != nil {
		if err := s.admin.server.Shutdown(shutdownCtx); err != nil {
			s.admin.logger.Error().Err(err).Msg("Error shutting down the server")
			errs = append(errs, err)
		}
	}

	for range running {
		err := <-errChan
		if !errors.Is(err, proxy.ErrListenerClosed) && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if serveErr != nil && !errors.Is(serveErr, proxy.ErrListenerClosed) &&
		!errors.Is(serveErr, http.ErrServerClosed) {
		errs = append(errs, serveErr)
	}
	return errors.Join(errs...)
}

func setupAdminInterface(
	conf *config.Config,
	c *cache.Cache,
	logger *zerolog.Logger,
	registry interface {
		prometheus.Registerer
		prometheus.Gatherer
	},
) (*adminInfo, error) {
	serviceName := "admin"
	log := logger.With().Str("service", serviceName).Logger()

	handler := http.NewServeMux()

	if conf.EnableProfiling {
		log.Info().
			Str("profilingUrl", conf.AdminInterface+"/-/pprof/").
			Msg("Enabling profiling")
		handlers.RegisterProfilingHandlers(handler, "/-/pprof/")
	}

	if conf.EnableMetrics {
		log.Info().
			Str("metricsUrl", conf.AdminInterface+"/metrics").
			Msg("Enabling metrics")
		handler.Handle(
			"GET /metrics",
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if err := admin.RegisterHandler(handler, c, conf); err != nil {
		return nil, fmt.Errorf("unable to initialize admin interface: %w", err)
	}
	handler.HandleFunc("/", handlers.NotImplemented)

	listener, err := net.Listen("tcp", conf.AdminInterface)
	if err != nil {
		return nil, fmt.Errorf("unable to listen on %s: %w", conf.AdminInterface, err)
	}

	return &adminInfo{
		&http.Server{
			Addr:         conf.AdminInterface,
			Handler:      middleware.ApplyAllMiddlewares(handler, serviceName, &log, registry),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
			ErrorLog:     stdlog.New(&log, "", 0),
		},
		listener,
		&log,
	}, nil
}
