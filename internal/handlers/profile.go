package handlers

import (
	"errors"

	apperrors "casa/internal/errors"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ProfileHandler manages the caller's payment profile: the processor-side
// refs used to charge and pay out, plus payout preferences.
type ProfileHandler struct {
	profiles repositories.PaymentProfileRepository
}

func NewProfileHandler(profiles repositories.PaymentProfileRepository) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*models.UserClaims)
	profile, err := h.profiles.FindByUserID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Domain(c, apperrors.ErrNotFound.WithDetail("no payment profile on file"))
		}
		return response.ServerError(c, "Failed to load payment profile")
	}
	return response.Success(c, "Payment profile retrieved", profile)
}

// Upsert stores the refs the client obtained from the processor. Empty string
// fields leave the stored value untouched; the opt-in flag is always written.
func (h *ProfileHandler) Upsert(c *fiber.Ctx) error {
	var input struct {
		CustomerRef             string `json:"customer_ref"`
		DefaultPaymentMethodRef string `json:"default_payment_method_ref"`
		AccountRef              string `json:"account_ref"`
		InstantPayoutOptIn      bool   `json:"instant_payout_opt_in"`
	}
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request format")
	}

	claims := c.Locals("claims").(*models.UserClaims)
	profile, err := h.profiles.FindByUserID(claims.UserID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return response.ServerError(c, "Failed to load payment profile")
		}
		profile = &models.PaymentProfile{UserID: claims.UserID}
	}

	if input.CustomerRef != "" {
		profile.CustomerRef = input.CustomerRef
	}
	if input.DefaultPaymentMethodRef != "" {
		profile.DefaultPaymentMethodRef = input.DefaultPaymentMethodRef
	}
	if input.AccountRef != "" {
		profile.AccountRef = input.AccountRef
	}
	profile.InstantPayoutOptIn = input.InstantPayoutOptIn

	if err := h.profiles.Upsert(profile); err != nil {
		return response.ServerError(c, "Failed to save payment profile")
	}
	return response.Success(c, "Payment profile saved", profile)
}
