// Package httpapi exposes hub invocation over HTTP. Every request under
// /api carries a JWT bearer token whose subject is the invoking user.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driving"
	"github.com/custodia-labs/caseflow/internal/logger"
)

// bodyLimit bounds request bodies; uploads arrive base64 encoded.
const bodyLimit = 48 * 1024 * 1024

const shutdownTimeout = 10 * time.Second

// Config configures the server.
type Config struct {
	Addr      string
	JWTSecret string
	JWTIssuer string
}

// Server serves the hub over HTTP.
type Server struct {
	app  *fiber.App
	hub  driving.Hub
	addr string
}

// New creates the server and registers its routes.
func New(hub driving.Hub, cfg Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s := &Server{app: app, hub: hub, addr: cfg.Addr}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", jwtMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	api.Get("/modules", s.listModules)
	api.Get("/modules/:module", s.describeModule)
	api.Post("/modules/:module/actions/:action", s.invoke)

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http: listening on %s", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return <-errCh
	}
}

func (s *Server) invoke(c *fiber.Ctx) error {
	var params map[string]any
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(failure(domain.KindValidation, "body must be a JSON object of action params"))
		}
	}

	res := s.hub.Invoke(c.UserContext(), c.Params("module"), c.Params("action"), userID(c), params)
	if !res.OK {
		return c.Status(statusFor(res.Error.Kind)).JSON(res)
	}
	return c.JSON(res)
}

func (s *Server) listModules(c *fiber.Ctx) error {
	descs := s.hub.Modules()
	category := c.Query("category")
	out := make([]domain.ModuleDescriptor, 0, len(descs))
	for _, d := range descs {
		if category == "" || d.Category == category {
			out = append(out, d)
		}
	}
	return c.JSON(fiber.Map{"modules": out, "count": len(out)})
}

func (s *Server) describeModule(c *fiber.Ctx) error {
	desc, actions, err := s.hub.Describe(c.Params("module"))
	if err != nil {
		res := driving.Failure(err)
		return c.Status(statusFor(res.Error.Kind)).JSON(res)
	}
	return c.JSON(fiber.Map{"module": desc, "actions": actions})
}

// statusFor maps an error kind to the HTTP status reported with it.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return fiber.StatusBadRequest
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindAuthentication:
		return fiber.StatusUnauthorized
	case domain.KindTransientProvider:
		return fiber.StatusServiceUnavailable
	case domain.KindTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func failure(kind domain.ErrorKind, msg string) driving.Result {
	return driving.Result{Error: &driving.ErrorEnvelope{Kind: kind, Message: msg}}
}

// errorHandler renders routing and body-limit errors in the Result shape.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	kind := domain.KindPermanent
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		switch {
		case code == fiber.StatusNotFound:
			kind = domain.KindNotFound
		case code < fiber.StatusInternalServerError:
			kind = domain.KindValidation
		}
	}
	return c.Status(code).JSON(failure(kind, err.Error()))
}
