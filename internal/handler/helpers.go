package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autograde-api/internal/middleware"
	"github.com/noah-isme/autograde-api/internal/service"
	"github.com/noah-isme/autograde-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := middleware.RequestLogger(base, c)
	return &logger
}

var notFoundMessages = []struct {
	err     error
	message string
}{
	{service.ErrClassNotFound, "class not found"},
	{service.ErrAssignmentNotFound, "assignment not found"},
	{service.ErrBatchNotFound, "batch not found"},
	{service.ErrResultNotFound, "result not found"},
}

// sendServiceError maps service errors onto HTTP statuses. Anything
// unrecognised is logged and hidden behind a 500.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	for _, nf := range notFoundMessages {
		if errors.Is(err, nf.err) {
			return utils.SendError(c, fiber.StatusNotFound, nf.message)
		}
	}

	var validationErrors validator.ValidationErrors
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	case errors.As(err, &validationErr):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
