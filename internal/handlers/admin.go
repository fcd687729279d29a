package handlers

import (
	"casa/internal/config"
	"casa/internal/repositories"
	"casa/internal/services/escrow"
	"casa/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	feeSource repositories.FeeConfigSource
	escrow    escrow.Service
}

func NewAdminHandler(feeSource repositories.FeeConfigSource, esc escrow.Service) *AdminHandler {
	return &AdminHandler{feeSource: feeSource, escrow: esc}
}

// GetFeeSchedule returns the active fee configuration snapshot.
func (h *AdminHandler) GetFeeSchedule(c *fiber.Ctx) error {
	cfg, err := h.feeSource.Load(c.Context())
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Fee schedule retrieved", cfg)
}

// PublishFeeSchedule activates a new fee configuration version. In-flight
// holds keep the version they were authorized under.
func (h *AdminHandler) PublishFeeSchedule(c *fiber.Ctx) error {
	var cfg config.FeeConfig
	if err := c.BodyParser(&cfg); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	if err := cfg.Validate(); err != nil {
		return response.BadRequest(c, err.Error())
	}
	if err := h.feeSource.Publish(c.Context(), cfg); err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Fee schedule published", fiber.Map{"version": cfg.Version})
}

// Reconcile runs a repair pass over invoices with unknown capture outcomes.
func (h *AdminHandler) Reconcile(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	examined, err := h.escrow.Reconcile(c.Context(), limit)
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Reconciliation pass complete", fiber.Map{"examined": examined})
}
