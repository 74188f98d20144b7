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

type TicketService interface {
	Create(ctx context.Context, ownerID, category, subject, message string) (*models.TicketWithMessages, error)
	Get(ctx context.Context, actorID, ticketID string) (*models.TicketWithMessages, error)
	ListByUser(ctx context.Context, userID string) ([]models.Ticket, error)
	ListAll(ctx context.Context, actorID string, status models.TicketStatus) ([]models.Ticket, error)
	AddMessage(ctx context.Context, actorID, ticketID, message string) (*models.TicketMessage, *models.Ticket, error)
	SetStatus(ctx context.Context, actorID, ticketID string, status models.TicketStatus) (*models.Ticket, error)
	Assign(ctx context.Context, actorID, ticketID, staffID string) (*models.Ticket, error)
	SetPriority(ctx context.Context, actorID, ticketID string, p models.TicketPriority) (*models.Ticket, error)
	Statistics(ctx context.Context) *models.TicketStatistics
}

type TicketHandler struct {
	tickets TicketService
	log     *zap.Logger
}

func NewTicketHandler(tickets TicketService, log *zap.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, log: log}
}

func (h *TicketHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	t, err := h.tickets.Create(c.UserContext(), middleware.GetUserID(c), req.Category, req.Subject, req.Message)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: t})
}

func (h *TicketHandler) GetTicket(c *fiber.Ctx) error {
	t, err := h.tickets.Get(c.UserContext(), middleware.GetUserID(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: t})
}

func (h *TicketHandler) MyTickets(c *fiber.Ctx) error {
	list, err := h.tickets.ListByUser(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: nonNil(list)})
}

func (h *TicketHandler) ListTickets(c *fiber.Ctx) error {
	status := models.TicketStatus(strings.ToLower(c.Query("status")))
	list, err := h.tickets.ListAll(c.UserContext(), middleware.GetUserID(c), status)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: nonNil(list)})
}

func (h *TicketHandler) AddMessage(c *fiber.Ctx) error {
	var req dto.TicketMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	msg, t, err := h.tickets.AddMessage(c.UserContext(), middleware.GetUserID(c), c.Params("id"), req.Message)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.TicketMessageResponse{Message: msg, Ticket: t}})
}

func (h *TicketHandler) SetStatus(c *fiber.Ctx) error {
	var req dto.SetTicketStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	t, err := h.tickets.SetStatus(c.UserContext(), middleware.GetUserID(c), c.Params("id"), models.TicketStatus(strings.ToLower(req.Status)))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: t})
}

func (h *TicketHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	t, err := h.tickets.Assign(c.UserContext(), middleware.GetUserID(c), c.Params("id"), strings.TrimSpace(req.StaffID))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: t})
}

func (h *TicketHandler) SetPriority(c *fiber.Ctx) error {
	var req dto.SetTicketPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	t, err := h.tickets.SetPriority(c.UserContext(), middleware.GetUserID(c), c.Params("id"), models.TicketPriority(strings.ToLower(req.Priority)))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: t})
}

func (h *TicketHandler) Statistics(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.tickets.Statistics(c.UserContext())})
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
