package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/auth"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

const (
	CtxUserID    = "user_id"
	CtxStaffTier = "staff_tier"

	HeaderInternalSecret = "X-Internal-Secret"
)

// TierDirectory resolves the global staff tier of a user id.
type TierDirectory interface {
	Tier(userID string) models.StaffTier
}

// AuthMiddleware accepts dashboard bearer tokens. The staff tier is resolved
// on every request so config changes apply to live tokens.
func AuthMiddleware(secret string, staff TierDirectory, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(secret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxStaffTier, staff.Tier(claims.UserID))

		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(CtxUserID).(string)
	return id
}

func GetStaffTier(c *fiber.Ctx) models.StaffTier {
	tier, _ := c.Locals(CtxStaffTier).(models.StaffTier)
	return tier
}

// RequireTier admits staff at or above tier. Must run after AuthMiddleware.
func RequireTier(tier models.StaffTier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !GetStaffTier(c).AtLeast(tier) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": tier.String() + " access required"})
		}
		return c.Next()
	}
}

// InternalSecretMiddleware guards the endpoints the bot runtime calls. An
// empty secret rejects everything.
func InternalSecretMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(HeaderInternalSecret)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid internal secret"})
		}
		return c.Next()
	}
}
