package handlers

import (
	"strconv"

	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/escrow"
	"casa/internal/services/estimate"
	"casa/internal/utils/response"
	"casa/internal/validation"

	"github.com/gofiber/fiber/v2"
)

type EstimateHandler struct {
	estimates estimate.Service
	escrow    escrow.Service
}

func NewEstimateHandler(estimates estimate.Service, esc escrow.Service) *EstimateHandler {
	return &EstimateHandler{estimates: estimates, escrow: esc}
}

func (h *EstimateHandler) Create(c *fiber.Ctx) error {
	var input struct {
		ServiceRequestID uint             `json:"service_request_id"`
		PropertyID       uint             `json:"property_id"`
		CustomerID       uint             `json:"customer_id"`
		LineItems        models.LineItems `json:"line_items"`
		LaborCents       int64            `json:"labor_cents"`
		MaterialsCents   int64            `json:"materials_cents"`
		TaxCents         int64            `json:"tax_cents"`
		Category         string           `json:"category"`
		ValidDays        int              `json:"valid_days"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	v := validation.New()
	v.Required("service_request_id", input.ServiceRequestID)
	v.Required("customer_id", input.CustomerID)
	v.LineItems("line_items", input.LineItems)
	if !v.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": v.Errors})
	}

	claims := c.Locals("claims").(*models.UserClaims)
	est, err := h.estimates.Create(c.Context(), estimate.CreateInput{
		ServiceRequestID: input.ServiceRequestID,
		PropertyID:       input.PropertyID,
		ProviderID:       claims.UserID,
		CustomerID:       input.CustomerID,
		LineItems:        input.LineItems,
		LaborCents:       input.LaborCents,
		MaterialsCents:   input.MaterialsCents,
		TaxCents:         input.TaxCents,
		Category:         input.Category,
		ValidDays:        input.ValidDays,
	})
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Estimate created", est)
}

func (h *EstimateHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid estimate ID")
	}

	if cache := repositories.CacheService; cache != nil {
		if cached, err := cache.GetEstimate(c.Context(), id); err == nil && cached != nil {
			return response.Success(c, "Estimate retrieved", cached)
		}
	}

	est, err := h.estimates.Get(c.Context(), id)
	if err != nil {
		return response.Domain(c, err)
	}
	if cache := repositories.CacheService; cache != nil {
		_ = cache.CacheEstimate(c.Context(), est)
	}
	return response.Success(c, "Estimate retrieved", est)
}

func (h *EstimateHandler) Send(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid estimate ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	if err := h.estimates.Send(c.Context(), id, claims.UserID); err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Estimate sent", nil)
}

func (h *EstimateHandler) MarkViewed(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid estimate ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	if err := h.estimates.MarkViewed(c.Context(), id, claims.UserID); err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Estimate viewed", nil)
}

// Approve locks the terms and places the payment hold. The response carries
// the authorization breakdown so the client can show the customer what was
// committed.
func (h *EstimateHandler) Approve(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid estimate ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	hold, err := h.estimates.Approve(c.Context(), id, claims.UserID)
	if err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Estimate approved", fiber.Map{
		"estimate_id":             hold.EstimateID,
		"authorized_amount_cents": hold.AuthorizedAmountCents,
		"original_amount_cents":   hold.OriginalAmountCents,
		"buffer_amount_cents":     hold.BufferAmountCents,
		"max_platform_fee_cents":  hold.MaxPlatformFeeCents,
	})
}

func (h *EstimateHandler) Decline(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid estimate ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	if err := h.estimates.Decline(c.Context(), id, claims.UserID); err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Estimate declined", nil)
}

// ReleaseHold cancels the hold on an approved estimate whose job was
// canceled before invoicing.
func (h *EstimateHandler) ReleaseHold(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid estimate ID")
	}
	claims := c.Locals("claims").(*models.UserClaims)
	actor := escrow.Actor{Kind: escrow.ActorCustomer, ID: claims.UserID}
	if claims.Role == models.RoleAdmin {
		actor.Kind = escrow.ActorAdmin
	}
	if err := h.escrow.ReleaseHold(c.Context(), id, actor); err != nil {
		return response.Domain(c, err)
	}
	return response.Success(c, "Hold released", nil)
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
