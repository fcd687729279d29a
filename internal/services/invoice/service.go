// Package invoice handles the provider's final bill: submission against an
// approved estimate, reads, and the per-invoice ledger history. Status
// transitions after submission belong to the escrow state machine.
package invoice

import (
	"context"
	"errors"
	"log"

	apperrors "casa/internal/errors"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/ledger"

	"gorm.io/gorm"
)

// SubmitInput is what a provider files when the work is done.
type SubmitInput struct {
	EstimateID       uint
	ProviderID       uint
	LineItems        models.LineItems
	CompletionPhotos []string
	InstantPayout    bool
}

type Service interface {
	// Submit files the final invoice against an approved estimate. The
	// total may differ from the estimate; capture is capped later by the
	// hold, not here.
	Submit(ctx context.Context, in SubmitInput) (*models.Invoice, error)
	Get(ctx context.Context, id uint) (*models.Invoice, error)
	History(ctx context.Context, id uint) ([]models.LedgerEntry, error)
}

type service struct {
	invoices  repositories.InvoiceRepository
	estimates repositories.EstimateRepository
	holds     repositories.HoldRepository
	profiles  repositories.PaymentProfileRepository
	ledger    ledger.Service
}

func NewService(
	invoices repositories.InvoiceRepository,
	estimates repositories.EstimateRepository,
	holds repositories.HoldRepository,
	profiles repositories.PaymentProfileRepository,
	led ledger.Service,
) Service {
	if invoices == nil || estimates == nil || holds == nil || profiles == nil {
		panic("invoice: repositories are required")
	}
	return &service{invoices: invoices, estimates: estimates, holds: holds, profiles: profiles, ledger: led}
}

func (s *service) Submit(ctx context.Context, in SubmitInput) (*models.Invoice, error) {
	if len(in.LineItems) == 0 {
		return nil, apperrors.ErrValidation.WithDetail("invoice needs at least one line item")
	}
	for i, item := range in.LineItems {
		if item.Description == "" || item.TotalCents <= 0 {
			return nil, apperrors.ErrValidation.WithDetail("line item %d is incomplete", i)
		}
	}

	estimate, err := s.estimates.FindByID(in.EstimateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("estimate %d", in.EstimateID)
		}
		return nil, err
	}
	if estimate.ProviderID != in.ProviderID {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d does not belong to provider %d", in.EstimateID, in.ProviderID)
	}
	if estimate.Status != models.EstimateStatusApproved {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d is %s, not approved", in.EstimateID, estimate.Status)
	}

	hold, err := s.holds.FindByEstimateID(in.EstimateID)
	if err != nil {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d has no payment hold", in.EstimateID)
	}
	if hold.Status != models.HoldStatusAuthorized {
		return nil, apperrors.ErrValidation.WithDetail("hold for estimate %d is %s", in.EstimateID, hold.Status)
	}

	total := in.LineItems.Sum()
	if total <= 0 {
		return nil, apperrors.ErrValidation.WithDetail("invoice total must be positive")
	}
	if total > hold.AuthorizedAmountCents {
		// An invoice above the hold ceiling could never be captured; reject
		// at submission so the provider can split the overage into a
		// supplemental charge the customer approves separately.
		log.Printf("invoice: estimate %d submission of %d exceeds authorization %d",
			in.EstimateID, total, hold.AuthorizedAmountCents)
		return nil, apperrors.ErrInsufficientAuthorization.WithDetail(
			"invoice total %d exceeds authorized %d", total, hold.AuthorizedAmountCents)
	}

	// A provider who opted in to instant payouts gets them without asking
	// per invoice; an explicit request on the submission also works.
	instant := in.InstantPayout
	if !instant {
		if profile, err := s.profiles.FindByUserID(in.ProviderID); err == nil {
			instant = profile.InstantPayoutOptIn
		}
	}

	inv := &models.Invoice{
		EstimateID:         estimate.ID,
		ProviderID:         estimate.ProviderID,
		CustomerID:         estimate.CustomerID,
		LineItems:          in.LineItems,
		TotalCents:         total,
		EstimateTotalCents: estimate.TotalCents,
		VarianceCents:      total - estimate.TotalCents,
		CompletionPhotos:   in.CompletionPhotos,
		Status:             models.InvoiceStatusPendingApproval,
		InstantPayout:      instant,
	}
	if err := s.invoices.Create(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *service) Get(ctx context.Context, id uint) (*models.Invoice, error) {
	inv, err := s.invoices.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("invoice %d", id)
		}
		return nil, err
	}
	return inv, nil
}

func (s *service) History(ctx context.Context, id uint) ([]models.LedgerEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, id)
}
