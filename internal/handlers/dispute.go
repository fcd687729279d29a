package handlers

import (
	"casa/internal/models"
	"casa/internal/services/dispute"
	"casa/internal/utils/response"
	"casa/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type DisputeHandler struct {
	disputes dispute.Service
}

func NewDisputeHandler(disputes dispute.Service) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

func (h *DisputeHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}
	d, err := h.disputes.Get(c.Context(), id)
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Dispute retrieved", d)
}

// Resolve is the admin decision endpoint. The refund amount is only read
// for split resolutions; notes are always required.
func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	var input struct {
		Resolution  string `json:"resolution"`
		RefundCents int64  `json:"refund_cents"`
		Notes       string `json:"notes"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}

	v := validation.New()
	v.Resolution("resolution", input.Resolution)
	v.Required("notes", input.Notes)
	v.MaxLength("notes", input.Notes, validation.MaxNotesLength)
	if !v.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": v.Errors})
	}

	claims := c.Locals("claims").(*models.UserClaims)
	entry, err := h.disputes.Resolve(c.Context(), dispute.ResolveInput{
		DisputeID:   id,
		Resolution:  input.Resolution,
		RefundCents: input.RefundCents,
		Notes:       input.Notes,
		ResolvedBy:  claims.UserID,
	})
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Dispute resolved", entry)
}

// AttachAdvisory stores AI analysis on the dispute for the admin console.
// Advisory only; resolution still requires the explicit decision above.
func (h *DisputeHandler) AttachAdvisory(c *fiber.Ctx) error {
	var input struct {
		Advisory models.JSON `json:"advisory"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid dispute ID")
	}
	if err := h.disputes.AttachAdvisory(c.Context(), id, input.Advisory); err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Advisory attached", nil)
}
