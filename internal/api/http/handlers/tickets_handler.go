package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/api/dto"
	"github.com/spec-kit/support-router/internal/service"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// IdempotencyKeyHeader carries the creation idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// TicketsHandler exposes ticket routing endpoints.
type TicketsHandler struct {
	coordinator *service.Coordinator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(coordinator *service.Coordinator) *TicketsHandler {
	return &TicketsHandler{coordinator: coordinator}
}

// CreateTicket POST /v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	key := strings.TrimSpace(c.Get(IdempotencyKeyHeader))
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.coordinator.CreateTicket(c.UserContext(), *principal, service.CreateTicketInput{
		Category:       req.Category,
		Severity:       req.Severity,
		Summary:        req.Summary,
		Context:        req.Context,
		IdempotencyKey: key,
	})
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if result.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.CreateTicketResponse{
		Ticket:  dto.NewTicketResponse(result.Ticket),
		Reused:  result.Reused,
		Message: result.Message,
	}})
}

// GetTicket GET /v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.coordinator.GetTicket(c.UserContext(), *principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AssignTicket POST /v1/tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		agentID = principal.ID
	}
	result, err := h.coordinator.AssignTicket(c.UserContext(), principal.Actor(), c.Params("id"), agentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AssignTicketResponse{
		Ticket:  dto.NewTicketResponse(result.Ticket),
		Message: result.Message,
	}})
}

// TransitionTicket POST /v1/tickets/:id/status.
func (h *TicketsHandler) TransitionTicket(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.TransitionTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.coordinator.TransitionTicket(c.UserContext(), principal.Actor(), c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// CloseTicket POST /v1/tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.coordinator.CloseTicket(c.UserContext(), principal.Actor(), c.Params("id"), service.CloseTicketInput{
		Resolution: req.Resolution,
		RootCause:  req.RootCause,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTicketEvents GET /v1/tickets/:id/events.
func (h *TicketsHandler) ListTicketEvents(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	trail, err := h.coordinator.ListTicketEvents(c.UserContext(), principal.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketEventResponses(trail)})
}
