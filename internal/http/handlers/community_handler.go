package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/http/dto"
	"go.uber.org/zap"
)

type AuditPurger interface {
	PurgeCommunity(ctx context.Context, communityID string) (int64, error)
}

type RoleCache interface {
	InvalidateRoles(communityID string)
}

// CommunityHandler receives lifecycle notifications from the bot runtime.
type CommunityHandler struct {
	audit    AuditPurger
	settings AuditStreamSettings
	roles    RoleCache
	log      *zap.Logger
}

func NewCommunityHandler(audit AuditPurger, settings AuditStreamSettings, roles RoleCache, log *zap.Logger) *CommunityHandler {
	return &CommunityHandler{audit: audit, settings: settings, roles: roles, log: log}
}

// Removed purges audit records and settings of a community the bot has left.
func (h *CommunityHandler) Removed(c *fiber.Ctx) error {
	communityID := c.Params("communityId")
	n, err := h.audit.PurgeCommunity(c.UserContext(), communityID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.settings.Forget(c.UserContext(), communityID); err != nil {
		return respondError(c, h.log, err)
	}
	h.roles.InvalidateRoles(communityID)
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PurgeResponse{CommunityID: communityID, Deleted: n}})
}

// RolesChanged drops the cached role model of a community.
func (h *CommunityHandler) RolesChanged(c *fiber.Ctx) error {
	h.roles.InvalidateRoles(c.Params("communityId"))
	return c.SendStatus(fiber.StatusNoContent)
}
