package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics server defaults.
const (
	DefaultMetricsPath         = "/metrics"
	DefaultMetricsReadTimeout  = 5 * time.Second
	DefaultMetricsWriteTimeout = 10 * time.Second
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// RouteRegistrar adds routes to the metrics server.
type RouteRegistrar func(r gin.IRoutes)

// ServerOption configures a MetricsServer.
type ServerOption func(*MetricsServer)

// WithRoutes registers extra routes, such as health checks, next to
// /metrics.
func WithRoutes(register RouteRegistrar) ServerOption {
	return func(s *MetricsServer) {
		if register != nil {
			s.routes = append(s.routes, register)
		}
	}
}

// MetricsServer exposes a Prometheus registry over HTTP together with a
// /health endpoint and any routes added with WithRoutes.
type MetricsServer struct {
	addr     string
	registry *prometheus.Registry
	logger   *zap.Logger
	routes   []RouteRegistrar

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	stopOnce sync.Once
}

// NewMetricsServer creates a metrics server for registry listening on
// addr. Go runtime and process collectors are added to registry.
func NewMetricsServer(
	addr string,
	registry *prometheus.Registry,
	logger *zap.Logger,
	opts ...ServerOption,
) *MetricsServer {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.Warn("failed to register runtime collector", zap.Error(err))
			}
		}
	}

	s := &MetricsServer{
		addr:     addr,
		registry: registry,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving metrics, health and the extra
// routes.
func (s *MetricsServer) Handler() http.Handler {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET(DefaultMetricsPath, gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:            &zapErrorLogger{logger: s.logger},
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: 10,
		Timeout:             DefaultMetricsWriteTimeout,
		EnableOpenMetrics:   true,
	})))
	engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	for _, register := range s.routes {
		register(engine)
	}
	return engine
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound.
func (s *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  DefaultMetricsReadTimeout,
		WriteTimeout: DefaultMetricsWriteTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting metrics server",
		zap.String("address", ln.Addr().String()),
		zap.String("path", DefaultMetricsPath),
	)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *MetricsServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down. It is safe to call more than once.
func (s *MetricsServer) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		srv := s.server
		s.mu.Unlock()
		if srv == nil {
			return
		}
		s.logger.Info("stopping metrics server")
		stopErr = srv.Shutdown(ctx)
	})
	return stopErr
}

// zapErrorLogger adapts zap.Logger to promhttp.Logger.
type zapErrorLogger struct {
	logger *zap.Logger
}

func (l *zapErrorLogger) Println(v ...interface{}) {
	l.logger.Error(fmt.Sprint(v...))
}
