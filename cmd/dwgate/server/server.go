// Package server wires the gateway: the connection registry, the tool
// services, the MCP surface and the gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/TFMV/dwgate/cmd/dwgate/config"
	"github.com/TFMV/dwgate/cmd/dwgate/middleware"
	"github.com/TFMV/dwgate/pkg/dialects"
	"github.com/TFMV/dwgate/pkg/handlers"
	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
	"github.com/TFMV/dwgate/pkg/infrastructure/pool"
	"github.com/TFMV/dwgate/pkg/registry"
	"github.com/TFMV/dwgate/pkg/repositories"
	"github.com/TFMV/dwgate/pkg/repositories/backends"
	"github.com/TFMV/dwgate/pkg/services"
)

// HealthService is the gRPC health service name reporting overall status.
// Each instance reports under HealthService + "." + id.
const HealthService = "dwgate"

// Server owns every long-lived component of the gateway.
type Server struct {
	config  *config.Config
	logger  zerolog.Logger
	metrics metrics.Collector
	info    *mcp.Implementation

	opener   repositories.Opener
	load     *registry.LoadResult
	registry *registry.Registry
	cache    *pool.CatalogCache
	service  services.ToolService
	mcp      *mcp.Server

	health     *health.Server
	grpcServer *grpc.Server
	httpServer *http.Server

	mu      sync.Mutex
	closing bool
}

// Option configures a Server.
type Option func(*Server)

// WithOpener replaces the driver-backed opener.
func WithOpener(opener repositories.Opener) Option {
	return func(s *Server) {
		s.opener = opener
	}
}

// WithImplementation sets the name and version advertised to MCP clients.
func WithImplementation(name, version string) Option {
	return func(s *Server) {
		s.info = &mcp.Implementation{Name: name, Version: version}
	}
}

// New loads instances from environ and builds the gateway.
func New(cfg *config.Config, environ []string, logger zerolog.Logger, collector metrics.Collector, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	srv := &Server{
		config:  cfg,
		logger:  logger,
		metrics: collector,
		info:    &mcp.Implementation{Name: "dwgate", Version: "dev"},
		health:  health.NewServer(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	if srv.opener == nil {
		srv.opener = backends.NewOpener(pool.Config{
			MaxOpenConnections: cfg.ConnectionPool.MaxOpenConnections,
			MaxIdleConnections: cfg.ConnectionPool.MaxIdleConnections,
			ConnMaxLifetime:    cfg.ConnectionPool.ConnMaxLifetime,
			ConnMaxIdleTime:    cfg.ConnectionPool.ConnMaxIdleTime,
			ConnectionTimeout:  cfg.ConnectTimeout,
			SlowQueryThreshold: cfg.ConnectionPool.SlowQueryThreshold,
		}, logger)
	}

	// Load instances
	srv.load = registry.LoadConfig(environ)
	for _, fix := range srv.load.Fixes {
		logger.Info().Str("fix", fix).Msg("Auto-fixed configuration")
	}
	for _, skipped := range srv.load.Skipped {
		logger.Warn().Str("instance", skipped.ID).Str("reason", skipped.Reason).Msg("Skipped instance")
	}

	srv.registry = registry.New(srv.load, srv.opener,
		registry.WithLogger(logger.With().Str("component", "registry").Logger()),
		registry.WithMetrics(collector),
		registry.WithLivenessInterval(cfg.LivenessInterval),
		registry.WithConnectTimeout(cfg.ConnectTimeout),
	)

	// Create services
	serviceMetrics := &serviceMetricsAdapter{collector: collector}
	executor := services.NewQueryExecutor(
		srv.registry,
		newLoggerAdapter(logger, "query_executor"),
		serviceMetrics,
		services.ExecutorConfig{
			QueryTimeout: cfg.QueryTimeout,
			MaxRows:      cfg.MaxRows,
			DefaultLimit: cfg.DefaultLimit,
		},
	)

	var cache services.SchemaCache
	if cfg.SchemaCache.Enabled {
		srv.cache = pool.NewCatalogCache(cfg.SchemaCache.MaxEntries, cfg.SchemaCache.TTL)
		cache = srv.cache
	}

	srv.service = services.NewToolService(
		srv.registry,
		executor,
		dialects.NewCatalog(),
		cache,
		newLoggerAdapter(logger, "tool_service"),
		serviceMetrics,
		services.ToolServiceConfig{
			SchemaTimeout: cfg.QueryTimeout,
			DefaultLimit:  cfg.DefaultLimit,
		},
	)

	// Create handlers
	handlerMetrics := &handlerMetricsAdapter{collector: collector}
	srv.mcp = mcp.NewServer(srv.info, nil)
	handlers.NewToolHandler(srv.service, newLoggerAdapter(logger, "tool_handler"), handlerMetrics).Register(srv.mcp)
	handlers.NewPromptHandler(newLoggerAdapter(logger, "prompt_handler"), handlerMetrics).Register(srv.mcp)

	srv.health.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
	for _, id := range srv.registry.ListInstances(nil) {
		srv.health.SetServingStatus(instanceHealthService(id), grpc_health_v1.HealthCheckResponse_UNKNOWN)
	}

	return srv, nil
}

// Service returns the tool service behind the MCP surface.
func (s *Server) Service() services.ToolService {
	return s.service
}

// Registry returns the connection registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// LoadResult returns the outcome of scanning the environment.
func (s *Server) LoadResult() *registry.LoadResult {
	return s.load
}

// MCPServer returns the MCP server with every tool and prompt registered.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Health returns the gRPC health server.
func (s *Server) Health() *health.Server {
	return s.health
}

// InstanceStatus is the outcome of opening one instance.
type InstanceStatus struct {
	ID    string        `json:"id"`
	Open  bool          `json:"open"`
	Error string        `json:"error,omitempty"`
	Took  time.Duration `json:"took"`
}

// Warmup opens every configured instance concurrently and records the
// outcome in the health server. Failures are reported, not returned.
func (s *Server) Warmup(ctx context.Context) []InstanceStatus {
	ids := s.registry.ListInstances(nil)
	statuses := make([]InstanceStatus, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ConnectionPool.MaxOpenConnections)
	for i, id := range ids {
		g.Go(func() error {
			start := time.Now()
			_, err := s.registry.Resolve(gctx, id)

			st := InstanceStatus{ID: id, Open: err == nil, Took: time.Since(start)}
			serving := grpc_health_v1.HealthCheckResponse_SERVING
			if err != nil {
				st.Error = err.Error()
				serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
				s.logger.Warn().Err(err).Str("instance", id).Msg("Instance unavailable")
			}
			s.health.SetServingStatus(instanceHealthService(id), serving)
			statuses[i] = st
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

// HTTPHandler serves the MCP streamable HTTP transport behind recovery,
// logging and, when configured, bearer authentication.
func (s *Server) HTTPHandler() http.Handler {
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	authMW := middleware.NewAuthMiddleware(s.config.Auth, s.logger.With().Str("component", "auth_middleware").Logger())
	logMW := middleware.NewLoggingMiddleware(s.logger.With().Str("component", "http").Logger())
	recoverMW := middleware.NewRecoveryMiddleware(s.logger.With().Str("component", "recovery_middleware").Logger())

	mux := http.NewServeMux()
	mux.Handle("/mcp", authMW.Handler(mcpHandler))
	return recoverMW.Handler(logMW.Handler(mux))
}

// Serve runs the health endpoint when enabled and then the configured MCP
// transport until ctx is done or the transport ends.
func (s *Server) Serve(ctx context.Context) error {
	if s.config.Health.Enabled {
		if err := s.startHealth(); err != nil {
			return err
		}
	}

	switch s.config.Transport {
	case config.TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		s.logger.Info().Msg("Serving MCP on stdio")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.HTTPAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddress, err)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info().
		Str("address", ln.Addr().String()).
		Bool("auth", s.config.Auth.Enabled).
		Msg("Serving MCP over HTTP")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// startHealth serves the gRPC health service on its own listener.
func (s *Server) startHealth() error {
	ln, err := net.Listen("tcp", s.config.Health.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Health.Address, err)
	}

	logMW := middleware.NewLoggingMiddleware(s.logger.With().Str("component", "grpc").Logger())
	metricsMW := middleware.NewMetricsMiddleware(&middlewareMetricsAdapter{collector: s.metrics})
	recoverMW := middleware.NewRecoveryMiddleware(s.logger.With().Str("component", "recovery_middleware").Logger())

	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
		grpc.ChainUnaryInterceptor(
			recoverMW.UnaryInterceptor(),
			logMW.UnaryInterceptor(),
			metricsMW.UnaryInterceptor(),
		),
		grpc.ChainStreamInterceptor(
			recoverMW.StreamInterceptor(),
			logMW.StreamInterceptor(),
			metricsMW.StreamInterceptor(),
		),
	)
	grpc_health_v1.RegisterHealthServer(grpcServer, s.health)
	reflection.Register(grpcServer)

	s.mu.Lock()
	s.grpcServer = grpcServer
	s.mu.Unlock()

	go func() {
		s.logger.Info().Str("address", ln.Addr().String()).Msg("Health service listening")
		if err := grpcServer.Serve(ln); err != nil {
			s.logger.Error().Err(err).Msg("Health service stopped")
		}
	}()
	return nil
}

// Close stops the network surfaces and closes every open instance.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	grpcServer, httpServer := s.grpcServer, s.httpServer
	s.mu.Unlock()

	s.logger.Info().Msg("Closing gateway")
	s.health.Shutdown()

	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		}
	}

	if grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcServer.Stop()
		}
	}

	if err := s.registry.CloseAll(); err != nil {
		s.logger.Error().Err(err).Msg("Error closing instances")
		return err
	}

	s.logger.Info().Msg("Gateway closed")
	return nil
}

func instanceHealthService(id string) string {
	return HealthService + "." + id
}
