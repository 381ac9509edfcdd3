package devstore

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"labdesk/internal/instrument"
)

// AppError is an error with the HTTP status and body the store answers with.
type AppError struct {
	Status  int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(status int, msg string) *AppError {
	return &AppError{Status: status, Message: msg, Data: map[string]any{}}
}

func NotFoundError() *AppError {
	return NewAppError(fiber.StatusNotFound, "The requested resource wasn't found.")
}

func UnknownCollectionError(name string) *AppError {
	return NewAppError(fiber.StatusNotFound, fmt.Sprintf("Missing collection %q.", name))
}

func ForbiddenError() *AppError {
	return NewAppError(fiber.StatusForbidden, "You are not allowed to perform this request.")
}

// ValidationError reports per-field failures under data.
func ValidationError(msg string, fields map[string]string) *AppError {
	data := make(map[string]any, len(fields))
	for k, msg := range fields {
		data[k] = map[string]string{"message": msg}
	}
	return &AppError{
		Status:  fiber.StatusBadRequest,
		Message: msg,
		Data:    data,
	}
}

// ErrorHandler renders AppError and fiber errors as {"code","message","data"}.
// Anything else is logged and answered with a generic 500.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(appErr)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(NewAppError(fiberErr.Code, fiberErr.Message))
		}

		instrument.Logger(c.UserContext(), logger).Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).
			JSON(NewAppError(fiber.StatusInternalServerError, "Something went wrong while processing your request."))
	}
}
