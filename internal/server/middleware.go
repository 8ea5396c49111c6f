package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"animelight/internal/models"
	"animelight/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const correlationHeader = "X-Correlation-ID"

// ContextMiddleware puts a correlation id into the request context so handler and
// session logs for one request share it. The request id is reused when present.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		id := c.Get(correlationHeader)
		if id == "" {
			if rid, ok := c.Locals("requestid").(string); ok {
				id = rid
			}
		}
		if id == "" {
			id = observability.GenerateCorrelationID()
		}
		ctx = observability.WithCorrelationID(ctx, id)
		c.Set(correlationHeader, id)

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := responseStatus(c, err)
		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Duration("latency", time.Since(start)),
		}

		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			observability.GlobalLogger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			observability.GlobalLogger.DebugContext(c.UserContext(), "request processed", fields...)
		}

		return err
	}
}

// responseStatus is the status the client will see. An error returned down the chain is
// only turned into a response by the app's ErrorHandler after every middleware has run.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		if status, ok := codeStatus[appErr.Code]; ok {
			return status
		}
	}
	return fiber.StatusInternalServerError
}

// TracingMiddleware adds OpenTelemetry tracing to requests
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))

		spanName := fmt.Sprintf("%s %s", c.Method(), c.Path())
		ctx, span := observability.Tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.path", c.Path()),
			),
		)
		defer span.End()

		c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		c.SetUserContext(ctx)

		err := c.Next()

		span.SetAttributes(attribute.Int("http.status_code", responseStatus(c, err)))
		if err != nil {
			span.RecordError(err)
		}
		return err
	}
}
