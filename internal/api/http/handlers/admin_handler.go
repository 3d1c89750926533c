package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/api/dto"
	"github.com/spec-kit/support-router/internal/service"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// AdminHandler exposes agent administration and maintenance endpoints.
type AdminHandler struct {
	coordinator *service.Coordinator
}

// NewAdminHandler constructs handler.
func NewAdminHandler(coordinator *service.Coordinator) *AdminHandler {
	return &AdminHandler{coordinator: coordinator}
}

// UpsertAgent PUT /v1/admin/agents/:id.
func (h *AdminHandler) UpsertAgent(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpsertAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.coordinator.UpsertAgent(c.UserContext(), principal.Actor(), req.ToAgent(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// Sweep POST /v1/ops/sweep runs one reaper pass and drains the audit backlog.
func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	ctx := c.UserContext()
	report, err := h.coordinator.Sweep(ctx, service.SweepTriggerManual)
	if err != nil {
		return err
	}
	reconciled, err := h.coordinator.ReconcileAudit(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"sweep":            report,
		"audit_reconciled": reconciled,
	}})
}
