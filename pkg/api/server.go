// Package api exposes the hub over HTTP and WebSocket using Fiber v2.
package api

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/hub"
	nishubjson "github.com/organica-ai/nishub/pkg/json"
	"github.com/organica-ai/nishub/pkg/monitoring"
	"github.com/organica-ai/nishub/pkg/registry"
	"github.com/organica-ai/nishub/pkg/storage"
)

// Server is the HTTP/WebSocket front of the hub
type Server struct {
	app      *fiber.App
	cfg      config.ServerConfig
	registry *registry.Registry
	hub      *hub.Hub
	store    storage.NodeStore
	metrics  *monitoring.Metrics
	json     nishubjson.Codec

	requestCount int64
	errorCount   int64
	startTime    time.Time
}

// NewServer wires the fiber app, middlewares and routes. metrics may be
// nil when monitoring is disabled.
func NewServer(cfg config.ServerConfig, reg *registry.Registry, eventHub *hub.Hub, store storage.NodeStore, metrics *monitoring.Metrics) *Server {
	codec := nishubjson.New(cfg.JSONLibrary)

	app := fiber.New(fiber.Config{
		ServerHeader: "NIS-HUB",
		AppName:      "NIS Hub Coordination Server",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		JSONEncoder:  codec.Marshal,
		JSONDecoder:  codec.Unmarshal,
	})

	server := &Server{
		app:       app,
		cfg:       cfg,
		registry:  reg,
		hub:       eventHub,
		store:     store,
		metrics:   metrics,
		json:      codec,
		startTime: time.Now(),
	}

	server.setupMiddlewares()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddlewares() {
	if s.cfg.EnableRequestID {
		s.app.Use(requestid.New())
	}

	if s.cfg.EnableLogger {
		s.app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
			TimeFormat: "2006/01/02 15:04:05",
			TimeZone:   "Local",
		}))
	}

	if s.cfg.EnableRecover {
		s.app.Use(recover.New())
	}

	if s.cfg.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept,X-Requested-With",
		}))
	}

	s.app.Use(s.countersMiddleware)
}

func (s *Server) countersMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	atomic.AddInt64(&s.requestCount, 1)
	status := c.Response().StatusCode()
	if err != nil || status >= 500 {
		atomic.AddInt64(&s.errorCount, 1)
	}
	if s.metrics != nil {
		endpoint := c.Route().Path
		s.metrics.RecordRequest(c.Method(), endpoint, status, time.Since(start))
	}
	return err
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/status", s.handleStatus)
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))

	v1 := s.app.Group("/api/v1")
	nodes := v1.Group("/nodes")
	nodes.Post("/register", s.handleRegister)
	nodes.Post("/heartbeat", s.handleHeartbeat)
	nodes.Get("/", s.handleListNodes)
	nodes.Get("/stats/summary", s.handleStatsSummary)
	nodes.Get("/:id", s.handleGetNode)
	nodes.Delete("/:id", s.handleDeregister)

	v1.Post("/events/broadcast", s.handleBroadcast)
}

// App returns the underlying fiber app, used by tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start blocks serving HTTP until Stop is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Printf("[api] listening on %s (json: %s)", addr, s.json.Library)
	return s.app.Listen(addr)
}

// Stop drains connections and shuts the server down
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
