// Package instrument traces HTTP requests: every request gets a trace id that
// is echoed in the response, carried on the request context and attached to
// the request log line.
package instrument

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderTraceID carries an incoming trace id, and the assigned one on the response.
const HeaderTraceID = "X-Trace-Id"

type traceKey struct{}

// WithTraceID returns ctx carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace id on ctx, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// Logger returns base annotated with the trace id on ctx, if any.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	if id := TraceID(ctx); id != "" {
		return base.With(zap.String("trace_id", id))
	}
	return base
}

// Middleware assigns the trace id and logs one line per request with method,
// path, status and latency. Server errors log at error level.
func Middleware(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		id := c.Get(HeaderTraceID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(HeaderTraceID, id)
		c.SetUserContext(WithTraceID(c.UserContext(), id))

		err := c.Next()
		if err != nil {
			// let the app's error handler write the response so the status is final
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		fields := []zap.Field{
			zap.String("trace_id", id),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("request", fields...)
		} else {
			logger.Info("request", fields...)
		}
		return nil
	}
}
