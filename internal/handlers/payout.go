package handlers

import (
	"casa/internal/models"
	"casa/internal/services/escrow"
	"casa/internal/services/payout"
	"casa/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type PayoutHandler struct {
	payouts payout.Service
}

func NewPayoutHandler(payouts payout.Service) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// Pay triggers the transfer for one captured invoice ahead of the sweep,
// e.g. a provider requesting an instant payout.
func (h *PayoutHandler) Pay(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid invoice ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	actor := escrow.Actor{Kind: escrow.ActorProvider, ID: claims.UserID}
	if claims.Role == models.RoleAdmin {
		actor.Kind = escrow.ActorAdmin
	}
	entry, err := h.payouts.PayInvoice(c.Context(), id, actor)
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Payout transferred", entry)
}

// Reverse claws back a completed payout. Admin only, wired in routes.
func (h *PayoutHandler) Reverse(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid invoice ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	entry, err := h.payouts.ReverseTransfer(c.Context(), id, escrow.Actor{Kind: escrow.ActorAdmin, ID: claims.UserID})
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Transfer reversed", entry)
}
