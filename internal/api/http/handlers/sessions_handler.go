package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/api/dto"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/service"
)

// SessionsHandler exposes agent presence endpoints.
type SessionsHandler struct {
	coordinator *service.Coordinator
}

// NewSessionsHandler constructs handler.
func NewSessionsHandler(coordinator *service.Coordinator) *SessionsHandler {
	return &SessionsHandler{coordinator: coordinator}
}

// StartSession POST /v1/sessions.
func (h *SessionsHandler) StartSession(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	result, err := h.coordinator.StartSession(c.UserContext(), principal.Actor())
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if result.Resumed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.StartSessionResponse{
		Session: dto.NewSessionResponse(result.Session),
		Resumed: result.Resumed,
	}})
}

// EndSession POST /v1/sessions/end.
func (h *SessionsHandler) EndSession(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.EndSessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	agentID := principal.ID
	if principal.Role == domain.RoleAdmin && req.AgentID != "" {
		agentID = req.AgentID
	}
	result, err := h.coordinator.EndSession(c.UserContext(), principal.Actor(), agentID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.EndSessionResponse{
		Ended:           result.Ended,
		ReleasedTickets: dto.NewTicketResponses(result.Released),
	}})
}

// Heartbeat POST /v1/sessions/heartbeat.
func (h *SessionsHandler) Heartbeat(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	result, err := h.coordinator.Heartbeat(c.UserContext(), principal.Actor())
	if err != nil {
		return err
	}
	resp := dto.HeartbeatResponse{Active: result.Active}
	if result.Session != nil {
		resp.LastSeenAt = &result.Session.LastSeenAt
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ListAgentEvents GET /v1/agents/:id/events.
func (h *SessionsHandler) ListAgentEvents(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	trail, err := h.coordinator.ListAgentEvents(c.UserContext(), principal.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentEventResponses(trail)})
}

// GetAgent GET /v1/agents/:id.
func (h *SessionsHandler) GetAgent(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	agent, err := h.coordinator.GetAgent(c.UserContext(), principal.Actor(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}
