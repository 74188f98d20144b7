package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/auth"
	"github.com/modgate/backend/internal/http/dto"
	"github.com/modgate/backend/internal/middleware"
	"go.uber.org/zap"
)

// AuthHandler mints dashboard tokens. The bot runtime calls it after the user
// has proven their platform identity there.
type AuthHandler struct {
	secret     string
	expiration time.Duration
	staff      middleware.TierDirectory
	log        *zap.Logger
}

func NewAuthHandler(secret string, expiration time.Duration, staff middleware.TierDirectory, log *zap.Logger) *AuthHandler {
	return &AuthHandler{secret: secret, expiration: expiration, staff: staff, log: log}
}

func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.IssueTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}

	token, err := auth.GenerateJWT(h.secret, req.UserID, h.expiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.TokenResponse{
		Token: token,
		Tier:  h.staff.Tier(req.UserID).String(),
	})
}

// Me reports the caller's identity and staff tier.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	tier := middleware.GetStaffTier(c)
	return c.JSON(dto.SuccessResponse{OK: true, Data: fiber.Map{
		"user_id":  middleware.GetUserID(c),
		"tier":     tier.String(),
		"is_staff": tier.IsStaff(),
	}})
}
