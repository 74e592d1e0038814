package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talupulahemanth/voiceassist/internal/config"
	"github.com/talupulahemanth/voiceassist/internal/device"
	"github.com/talupulahemanth/voiceassist/internal/live"
	"github.com/talupulahemanth/voiceassist/internal/metrics"
	"github.com/talupulahemanth/voiceassist/internal/session"
)

// Controller is the session surface the UI drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
	SelectVoice(name string) error
	SelectLanguage(code string) error
	ToggleCaptions() bool
	Voices() []config.Voice
	Languages() []config.Language
}

// Server is the HTTP boundary of the assistant.
type Server struct {
	app        *fiber.App
	controller Controller
	console    *Console
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type voiceRequest struct {
	Voice string `json:"voice"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the fiber app. gatherer backs /metrics.
func New(controller Controller, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		controller: controller,
		console:    NewConsole(controller, nil, logger),
		metrics:    m,
		logger:     logger,
	}

	s.app = fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.app.Use(s.withMetrics)

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(s.controller.Snapshot())
	})
	s.app.Get("/voices", func(c *fiber.Ctx) error {
		return c.JSON(s.controller.Voices())
	})
	s.app.Get("/languages", func(c *fiber.Ctx) error {
		return c.JSON(s.controller.Languages())
	})

	s.app.Post("/session/start", s.handleStart)
	s.app.Post("/session/stop", func(c *fiber.Ctx) error {
		s.controller.Stop()
		return c.JSON(s.controller.Snapshot())
	})

	s.app.Put("/settings/voice", s.handleVoice)
	s.app.Put("/settings/language", s.handleLanguage)
	s.app.Post("/settings/captions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"captions": s.controller.ToggleCaptions()})
	})

	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.stream))
}

func (s *Server) withMetrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if s.metrics == nil {
		return err
	}

	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	s.metrics.RecordHTTPRequest(c.Method(), c.Route().Path, status, time.Since(start).Seconds())
	return err
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.controller.Start(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.controller.Snapshot())
}

func (s *Server) handleVoice(c *fiber.Ctx) error {
	var req voiceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}
	if err := s.controller.SelectVoice(req.Voice); err != nil {
		return err
	}
	return c.JSON(s.controller.Snapshot())
}

func (s *Server) handleLanguage(c *fiber.Ctx) error {
	var req languageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}
	if err := s.controller.SelectLanguage(req.Language); err != nil {
		return err
	}
	return c.JSON(s.controller.Snapshot())
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return c.Status(status).JSON(errorResponse{Error: err.Error()})
}

// statusFor maps controller errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		fiberErr *fiber.Error
		permErr  *device.PermissionError
		connErr  *live.ConnectionError
	)
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &permErr):
		return fiber.StatusForbidden
	case errors.As(err, &connErr):
		return fiber.StatusBadGateway
	case errors.Is(err, session.ErrUnknownVoice), errors.Is(err, session.ErrUnknownLanguage):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// stream pushes a snapshot on connect and on every change. Text frames from
// the client are run as console commands.
func (s *Server) stream(conn *websocket.Conn) {
	defer conn.Close()

	updates, cancel := s.controller.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			if err := s.console.Execute(context.Background(), string(data)); err != nil {
				s.logger.Warn("WebSocket command failed", slog.String("error", err.Error()))
			}
		}
	}()

	if err := writeSnapshot(conn, s.controller.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap session.Snapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves HTTP on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("Starting HTTP API server", slog.String("address", addr))
	return s.app.Listen(addr)
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP API server...")
	return s.app.ShutdownWithContext(ctx)
}
