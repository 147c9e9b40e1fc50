package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ErrorClassifier lets a domain map its errors to a status code and body. It
// reports false for errors it does not know.
type ErrorClassifier func(err error) (status int, body any, ok bool)

// ErrorHandlerMiddleware renders errors returned by later handlers. Unknown
// errors become a 500 without leaking their text.
func ErrorHandlerMiddleware(classifiers ...ErrorClassifier) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		for _, classify := range classifiers {
			if status, body, ok := classify(err); ok {
				return ctx.Status(status).JSON(body)
			}
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			return ctx.Status(fiber.StatusBadRequest).JSON(&BaseResponse[map[string]string]{
				Code:    fiber.StatusBadRequest,
				Message: "Validation failed",
				Data:    verr.Fields,
			})
		}

		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			return ctx.Status(ferr.Code).JSON(ErrorResponse(ferr.Code, ferr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error"))
	}
}
