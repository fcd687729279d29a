package handlers

import (
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/escrow"
	"casa/internal/services/invoice"
	"casa/internal/utils/response"
	"casa/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type InvoiceHandler struct {
	invoices invoice.Service
	escrow   escrow.Service
}

func NewInvoiceHandler(invoices invoice.Service, esc escrow.Service) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, escrow: esc}
}

func (h *InvoiceHandler) Submit(c *fiber.Ctx) error {
	var input struct {
		EstimateID       uint             `json:"estimate_id"`
		LineItems        models.LineItems `json:"line_items"`
		CompletionPhotos []string         `json:"completion_photos"`
		InstantPayout    bool             `json:"instant_payout"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	v := validation.New()
	v.Required("estimate_id", input.EstimateID)
	v.LineItems("line_items", input.LineItems)
	if !v.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": v.Errors})
	}

	claims := c.Locals("claims").(*models.UserClaims)
	inv, err := h.invoices.Submit(c.Context(), invoice.SubmitInput{
		EstimateID:       input.EstimateID,
		ProviderID:       claims.UserID,
		LineItems:        input.LineItems,
		CompletionPhotos: input.CompletionPhotos,
		InstantPayout:    input.InstantPayout,
	})
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Invoice submitted", inv)
}

func (h *InvoiceHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid invoice ID")
	}

	// Display read; guarded transitions always go to the database.
	if cache := repositories.CacheService; cache != nil {
		if cached, err := cache.GetInvoice(c.Context(), id); err == nil && cached != nil {
			return response.Success(c, "Invoice retrieved", cached)
		}
	}

	inv, err := h.invoices.Get(c.Context(), id)
	if err != nil {
		return response.Domain(c, err)
	}
	if cache := repositories.CacheService; cache != nil {
		_ = cache.CacheInvoice(c.Context(), inv)
	}
	return response.Success(c, "Invoice retrieved", inv)
}

// Approve is the customer's explicit approval: capture now, before the
// auto-approval timer gets there.
func (h *InvoiceHandler) Approve(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid invoice ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	res, err := h.escrow.CaptureInvoice(c.Context(), id, escrow.Actor{Kind: escrow.ActorCustomer, ID: claims.UserID})
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Invoice approved", res)
}

func (h *InvoiceHandler) Dispute(c *fiber.Ctx) error {
	var input struct {
		Reason      string `json:"reason"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid invoice ID")
	}

	v := validation.New()
	v.DisputeReason("reason", input.Reason)
	v.MaxLength("description", input.Description, validation.MaxNotesLength)
	if !v.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": v.Errors})
	}

	claims := c.Locals("claims").(*models.UserClaims)
	dispute, err := h.escrow.OpenDispute(c.Context(), id, claims.UserID, input.Reason, input.Description)
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Dispute opened", dispute)
}

// History returns the invoice's money movements from the ledger.
func (h *InvoiceHandler) History(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid invoice ID")
	}
	entries, err := h.invoices.History(c.Context(), id)
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Ledger history retrieved", entries)
}
