package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/modgate/backend/internal/commands"
	"github.com/modgate/backend/internal/http/dto"
	"github.com/modgate/backend/internal/models"
	"go.uber.org/zap"
)

type InvocationResolver interface {
	Resolve(ctx context.Context, req models.InvocationRequest) (*models.Invocation, error)
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, inv *models.Invocation) commands.Outcome
	Fail(ctx context.Context, inv *models.Invocation, err error) commands.Outcome
}

type CommandLister interface {
	List() []models.CommandDescriptor
}

// InvocationHandler is the bot runtime's entry point: it resolves the raw
// invocation and hands it to the dispatcher.
type InvocationHandler struct {
	resolver   InvocationResolver
	dispatcher CommandDispatcher
	registry   CommandLister
	log        *zap.Logger
}

func NewInvocationHandler(resolver InvocationResolver, dispatcher CommandDispatcher, registry CommandLister, log *zap.Logger) *InvocationHandler {
	return &InvocationHandler{resolver: resolver, dispatcher: dispatcher, registry: registry, log: log}
}

// Invoke answers 200 with an Outcome for every well-formed request. Denials,
// handler errors and resolution failures are outcomes, not HTTP failures.
func (h *InvocationHandler) Invoke(c *fiber.Ctx) error {
	var req models.InvocationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.CommandName == "" {
		return respondError(c, h.log, &models.ValidationError{Field: "command_name", Rule: "required"})
	}
	if req.ActorID == "" {
		return respondError(c, h.log, &models.ValidationError{Field: "actor_id", Rule: "required"})
	}

	ctx := c.UserContext()
	inv, err := h.resolver.Resolve(ctx, req)
	if err != nil {
		h.log.Warn("invocation not resolved",
			zap.String("command", req.CommandName),
			zap.String("actor_id", req.ActorID),
			zap.String("community_id", req.CommunityID),
			zap.Error(err),
		)
		return c.JSON(h.dispatcher.Fail(ctx, req.Unresolved(), err))
	}

	return c.JSON(h.dispatcher.Dispatch(ctx, inv))
}

func (h *InvocationHandler) ListCommands(c *fiber.Ctx) error {
	descs := h.registry.List()
	out := make([]dto.CommandInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, dto.NewCommandInfo(d))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}
