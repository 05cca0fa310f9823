package httpfiber

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zama-ai/testnet-dispatcher/pkg/config"
	"github.com/zama-ai/testnet-dispatcher/pkg/logger"
	"github.com/zama-ai/testnet-dispatcher/pkg/version"

	"go.uber.org/zap"
)

// ReadinessFunc returns nil when the service can do useful work.
type ReadinessFunc func(ctx context.Context) error

// StatusFunc returns the document served on /status, nil when there is none yet.
type StatusFunc func() any

type Server struct {
	app *fiber.App
	cfg *config.Schema

	registry  *prometheus.Registry
	readiness ReadinessFunc
	status    StatusFunc

	readinessTimeout time.Duration
}

type Option func(*Server)

func NewServer(cfg *config.Schema, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})
	srv := &Server{
		app:              app,
		cfg:              cfg,
		registry:         prometheus.NewRegistry(),
		readinessTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

func WithReadiness(readiness ReadinessFunc) Option {
	return func(s *Server) {
		s.readiness = readiness
	}
}

func WithStatus(status StatusFunc) Option {
	return func(s *Server) {
		s.status = status
	}
}

func (s *Server) Run() error {
	if s.cfg.Global.Environment == "production" {
		level, err := zap.ParseAtomicLevel(s.cfg.Global.LogLevel)
		if err != nil {
			return err
		}
		zapLogger, err := logger.NewZapLogger(logger.WithLevel(level.Level()))
		if err != nil {
			return err
		}
		s.app.Use(fiberzap.New(fiberzap.Config{
			Logger: zapLogger.Logger,
		}))
	}

	if err := s.MapRoutes(); err != nil {
		logger.Fatalf("failed to map routes: %v", err)
	}

	logger.Infof("listening on %s", s.cfg.Global.MetricsAddr)
	return s.app.Listen(s.cfg.Global.MetricsAddr)
}

func (s *Server) Stop() {
	logger.Infof("Stopping HTTP server...")
	if err := s.app.ShutdownWithTimeout(1 * time.Second); err != nil {
		logger.Debugf("HTTP server shutdown: %v", err)
	}
	logger.Infof("HTTP server stopped")
}

func (s *Server) MapRoutes() error {
	v1 := s.app.Group("/")
	v1.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, log.Prefix(), log.Flags()),
		ErrorHandling: promhttp.ContinueOnError,
	})))
	v1.Get("/readiness", s.handleReadiness)
	v1.Get("/status", s.handleStatus)
	v1.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetVersion())
	})
	return nil
}

func (s *Server) handleReadiness(c *fiber.Ctx) error {
	if s.readiness != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), s.readinessTimeout)
		defer cancel()
		if err := s.readiness(ctx); err != nil {
			logger.Warnf("readiness check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	var doc any
	if s.status != nil {
		doc = s.status()
	}
	if doc == nil {
		return c.Status(fiber.StatusNoContent).Send(nil)
	}
	return c.JSON(doc)
}
