package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/http/dto"
	"github.com/modgate/backend/internal/middleware"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

type AuditQueries interface {
	Recent(ctx context.Context, communityID string, limit int) ([]models.AuditRecord, error)
	History(ctx context.Context, communityID, userID string, limit int) ([]models.AuditRecord, error)
	Statistics(ctx context.Context, communityID string, days int) *models.AuditStatistics
	CheckConfiguration(ctx context.Context, communityID string) (*models.AuditConfiguration, error)
}

type AuditStreamSettings interface {
	Set(ctx context.Context, communityID, streamID string) error
	Forget(ctx context.Context, communityID string) error
}

type AuditHandler struct {
	audit    AuditQueries
	settings AuditStreamSettings
	log      *zap.Logger
}

func NewAuditHandler(audit AuditQueries, settings AuditStreamSettings, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, settings: settings, log: log}
}

func (h *AuditHandler) Recent(c *fiber.Ctx) error {
	recs, err := h.audit.Recent(c.UserContext(), c.Params("communityId"), c.QueryInt("limit"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: nonNil(recs)})
}

func (h *AuditHandler) History(c *fiber.Ctx) error {
	recs, err := h.audit.History(c.UserContext(), c.Params("communityId"), c.Params("userId"), c.QueryInt("limit"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: nonNil(recs)})
}

func (h *AuditHandler) Statistics(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.audit.Statistics(c.UserContext(), c.Params("communityId"), c.QueryInt("days"))})
}

func (h *AuditHandler) Configuration(c *fiber.Ctx) error {
	cfg, err := h.audit.CheckConfiguration(c.UserContext(), c.Params("communityId"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: cfg})
}

// SetStream points the community's audit mirror at a channel. An empty id
// clears the stored setting.
func (h *AuditHandler) SetStream(c *fiber.Ctx) error {
	var req dto.SetAuditStreamRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	communityID := c.Params("communityId")
	streamID := strings.TrimSpace(req.StreamID)

	if err := h.settings.Set(c.UserContext(), communityID, streamID); err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("audit stream updated",
		zap.String("community_id", communityID),
		zap.String("stream_id", streamID),
		zap.String("by", middleware.GetUserID(c)),
	)

	cfg, err := h.audit.CheckConfiguration(c.UserContext(), communityID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: cfg})
}
