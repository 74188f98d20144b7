package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/http/dto"
	"github.com/modgate/backend/internal/models"
)

type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type MetaTicketStatus struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Transitions []string `json:"transitions"`
}

var ticketStatusLabels = []MetaOption{
	{ID: string(models.TicketOpen), Label: "Open"},
	{ID: string(models.TicketInProgress), Label: "In progress"},
	{ID: string(models.TicketClosed), Label: "Closed"},
}

var ticketPriorities = []MetaOption{
	{ID: string(models.PriorityLow), Label: "Low"},
	{ID: string(models.PriorityNormal), Label: "Normal"},
	{ID: string(models.PriorityHigh), Label: "High"},
	{ID: string(models.PriorityUrgent), Label: "Urgent"},
}

var auditActionTypes = []MetaOption{
	{ID: models.ActionBan, Label: "Ban"},
	{ID: models.ActionKick, Label: "Kick"},
	{ID: models.ActionWarn, Label: "Warning"},
	{ID: models.ActionTimeout, Label: "Timeout"},
	{ID: models.ActionClear, Label: "Messages cleared"},
	{ID: models.ActionMassBan, Label: "Mass ban"},
}

func (h *MetaHandler) GetTicketStatuses(c *fiber.Ctx) error {
	all := []models.TicketStatus{models.TicketOpen, models.TicketInProgress, models.TicketClosed}
	out := make([]MetaTicketStatus, 0, len(ticketStatusLabels))
	for _, s := range ticketStatusLabels {
		var next []string
		for _, to := range all {
			if models.CanTransitionTicket(models.TicketStatus(s.ID), to) {
				next = append(next, string(to))
			}
		}
		out = append(out, MetaTicketStatus{ID: s.ID, Label: s.Label, Transitions: next})
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *MetaHandler) GetTicketPriorities(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: ticketPriorities})
}

func (h *MetaHandler) GetActionTypes(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: auditActionTypes})
}
