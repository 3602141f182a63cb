// Package api exposes the tracker over HTTP.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/gigurra/subscription-tracker/internal/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// MaxUploadSize bounds request bodies, statement documents included.
const MaxUploadSize = 16 << 20

// Server wires tracker operations to HTTP routes.
type Server struct {
	tracker *internal.Tracker
	log     zerolog.Logger
	app     *fiber.App
}

// New builds the fiber app and registers all routes.
func New(tracker *internal.Tracker, log zerolog.Logger) *Server {
	s := &Server{tracker: tracker, log: log}

	s.app = fiber.New(fiber.Config{
		AppName:               "subscription-tracker",
		BodyLimit:             MaxUploadSize,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestLogger())

	s.app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	users := s.app.Group("/api/users/:userID")
	users.Post("/transactions/csv", s.importCSV)
	users.Get("/transactions", s.listTransactions)
	users.Post("/statements/text", s.importStatementText)
	users.Post("/statements/document", s.importStatementDocument)
	users.Post("/subscriptions/recalculate", s.recalculate)
	users.Get("/subscriptions", s.listSubscriptions)
	users.Post("/subscriptions", s.createManualSubscription)
	users.Get("/subscriptions/:id", s.getSubscription)

	s.app.Get("/api/guides", s.listGuides)
	s.app.Get("/api/guides/:slug", s.getGuide)

	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info().Str("addr", addr).Msg("listening")
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// requestLogger attaches a request-scoped logger to the user context and logs each request.
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqLog := s.log.With().Str("method", c.Method()).Str("path", c.Path()).Logger()
		c.SetUserContext(logger.WithContext(c.UserContext(), reqLog))

		err := c.Next()
		if err != nil {
			// Resolve the status now so the access log matches what the client gets.
			if herr := s.handleError(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		reqLog.Info().
			Int("status", c.Response().StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("request")
		return nil
	}
}

// statusFor maps domain errors to HTTP status codes and client-safe messages.
func statusFor(err error) (int, string) {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.Is(err, internal.ErrNoTransactions):
		return fiber.StatusUnprocessableEntity, internal.ErrNoTransactions.Error()
	case errors.Is(err, internal.ErrNotFound), errors.Is(err, internal.ErrGuideNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, internal.ErrSubscriptionExists):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, internal.ErrInvalidAmount),
		errors.Is(err, internal.ErrInvalidInterval),
		errors.Is(err, internal.ErrInvalidDate),
		errors.Is(err, internal.ErrMissingField),
		errors.Is(err, internal.ErrMalformedInput):
		return fiber.StatusBadRequest, err.Error()
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code, message := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		log := logger.FromContext(c.UserContext())
		log.Error().Err(err).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}
