package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/http/dto"
	"github.com/modgate/backend/internal/middleware"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

var kindStatus = map[models.ErrorKind]int{
	models.KindScopeViolation:     fiber.StatusForbidden,
	models.KindPermissionDenied:   fiber.StatusForbidden,
	models.KindHierarchyViolation: fiber.StatusForbidden,
	models.KindCooldownActive:     fiber.StatusTooManyRequests,
	models.KindRateLimited:        fiber.StatusTooManyRequests,
	models.KindValidation:         fiber.StatusBadRequest,
	models.KindNotFound:           fiber.StatusNotFound,
	models.KindPersistence:        fiber.StatusServiceUnavailable,
}

// respondError writes err using the error taxonomy. Unclassified detail is
// logged, never returned.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := models.Classify(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = fiber.StatusInternalServerError
	}

	msg := err.Error()
	var de *models.DenialError
	switch {
	case errors.As(err, &de) && de.Message != "":
		msg = de.Message
	case errors.Is(err, models.ErrForbidden):
		msg = "forbidden"
	case kind == models.KindPersistence:
		msg = "storage unavailable, try again later"
	case status == fiber.StatusInternalServerError:
		msg = "internal server error"
	}
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     msg,
		Kind:      string(kind),
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, Kind: string(models.KindValidation)})
}
