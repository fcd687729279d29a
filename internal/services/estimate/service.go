// Package estimate manages the estimate lifecycle up to the point escrow
// takes over: draft -> sent -> viewed -> approved, with declined and expired
// as the dead ends. Approval locks the financial terms and places the
// payment hold.
package estimate

import (
	"context"
	"errors"
	"log"
	"time"

	"casa/internal/config"
	apperrors "casa/internal/errors"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/escrow"

	"gorm.io/gorm"
)

// CreateInput is a provider's new estimate for a service request.
type CreateInput struct {
	ServiceRequestID uint
	PropertyID       uint
	ProviderID       uint
	CustomerID       uint
	LineItems        models.LineItems
	LaborCents       int64
	MaterialsCents   int64
	TaxCents         int64
	Category         string
	ValidDays        int
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*models.Estimate, error)
	Get(ctx context.Context, id uint) (*models.Estimate, error)
	Send(ctx context.Context, id uint, providerID uint) error
	MarkViewed(ctx context.Context, id uint, customerID uint) error
	// Approve locks the terms and authorizes the payment hold. The returned
	// hold is what the customer's funds are committed against.
	Approve(ctx context.Context, id uint, customerID uint) (*models.PaymentHold, error)
	Decline(ctx context.Context, id uint, customerID uint) error
	// ExpireStale moves sent/viewed estimates past their validity date to
	// expired. Called by the background sweep.
	ExpireStale(ctx context.Context, limit int) (int, error)
}

type service struct {
	repo   repositories.EstimateRepository
	escrow escrow.Service
	cache  escrow.InvoiceCache
	now    func() time.Time
}

func NewService(repo repositories.EstimateRepository, esc escrow.Service, cache escrow.InvoiceCache) Service {
	if repo == nil || esc == nil {
		panic("estimate: repository and escrow service are required")
	}
	return &service{repo: repo, escrow: esc, cache: cache, now: time.Now}
}

func (s *service) Create(ctx context.Context, in CreateInput) (*models.Estimate, error) {
	if in.ServiceRequestID == 0 || in.ProviderID == 0 || in.CustomerID == 0 {
		return nil, apperrors.ErrValidation.WithDetail("service request, provider and customer are required")
	}
	if len(in.LineItems) == 0 {
		return nil, apperrors.ErrValidation.WithDetail("estimate needs at least one line item")
	}
	for i, item := range in.LineItems {
		if item.Description == "" || item.TotalCents <= 0 {
			return nil, apperrors.ErrValidation.WithDetail("line item %d is incomplete", i)
		}
	}

	subtotal := in.LineItems.Sum()
	total := subtotal + in.TaxCents
	if total <= 0 {
		return nil, apperrors.ErrValidation.WithDetail("estimate total must be positive")
	}

	validDays := in.ValidDays
	if validDays <= 0 {
		validDays = config.GetIntEnv("ESTIMATE_VALID_DAYS", 14)
	}
	expires := s.now().AddDate(0, 0, validDays)

	estimate := &models.Estimate{
		ServiceRequestID: in.ServiceRequestID,
		PropertyID:       in.PropertyID,
		ProviderID:       in.ProviderID,
		CustomerID:       in.CustomerID,
		LineItems:        in.LineItems,
		LaborCents:       in.LaborCents,
		MaterialsCents:   in.MaterialsCents,
		SubtotalCents:    subtotal,
		TaxCents:         in.TaxCents,
		TotalCents:       total,
		Category:         in.Category,
		Status:           models.EstimateStatusDraft,
		ExpiresAt:        &expires,
	}
	if err := s.repo.Create(estimate); err != nil {
		return nil, err
	}
	return estimate, nil
}

func (s *service) Get(ctx context.Context, id uint) (*models.Estimate, error) {
	estimate, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("estimate %d", id)
		}
		return nil, err
	}
	return estimate, nil
}

func (s *service) Send(ctx context.Context, id uint, providerID uint) error {
	estimate, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if estimate.ProviderID != providerID {
		return apperrors.ErrValidation.WithDetail("estimate %d does not belong to provider %d", id, providerID)
	}
	ok, err := s.repo.TransitionStatus(id, models.EstimateStatusDraft, models.EstimateStatusSent)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrValidation.WithDetail("estimate %d is not a draft", id)
	}
	return nil
}

func (s *service) MarkViewed(ctx context.Context, id uint, customerID uint) error {
	estimate, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if estimate.CustomerID != customerID {
		return apperrors.ErrValidation.WithDetail("estimate %d does not belong to customer %d", id, customerID)
	}
	// Viewed is informational; a repeat view or a view after approval is
	// not an error, just not a transition.
	if _, err := s.repo.TransitionStatus(id, models.EstimateStatusSent, models.EstimateStatusViewed); err != nil {
		return err
	}
	return nil
}

func (s *service) Approve(ctx context.Context, id uint, customerID uint) (*models.PaymentHold, error) {
	estimate, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if estimate.CustomerID != customerID {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d does not belong to customer %d", id, customerID)
	}
	if estimate.IsTerminal() {
		if estimate.Status == models.EstimateStatusApproved {
			// Re-approval is idempotent through the hold.
			return s.escrow.CreateHold(ctx, id)
		}
		return nil, apperrors.ErrValidation.WithDetail("estimate %d is %s", id, estimate.Status)
	}
	if estimate.ExpiresAt != nil && s.now().After(*estimate.ExpiresAt) {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d expired on %s", id, estimate.ExpiresAt.Format(time.RFC3339))
	}

	from := estimate.Status
	if from != models.EstimateStatusSent && from != models.EstimateStatusViewed {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d is %s, not approvable", id, from)
	}
	ok, err := s.repo.MarkApproved(id, from, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d changed concurrently", id)
	}
	s.invalidate(ctx, id)

	hold, err := s.escrow.CreateHold(ctx, id)
	if err != nil {
		// The estimate stays approved: the customer said yes, only the
		// authorization failed. They can retry from a different payment
		// method without re-approving.
		log.Printf("estimate: approved %d but hold placement failed: %v", id, err)
		return nil, err
	}
	return hold, nil
}

func (s *service) Decline(ctx context.Context, id uint, customerID uint) error {
	estimate, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if estimate.CustomerID != customerID {
		return apperrors.ErrValidation.WithDetail("estimate %d does not belong to customer %d", id, customerID)
	}

	for _, from := range []string{models.EstimateStatusSent, models.EstimateStatusViewed} {
		ok, err := s.repo.TransitionStatus(id, from, models.EstimateStatusDeclined)
		if err != nil {
			return err
		}
		if ok {
			s.invalidate(ctx, id)
			return nil
		}
	}
	return apperrors.ErrValidation.WithDetail("estimate %d is %s, not declinable", id, estimate.Status)
}

func (s *service) ExpireStale(ctx context.Context, limit int) (int, error) {
	stale, err := s.repo.ListExpirable(s.now(), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range stale {
		ok, err := s.repo.TransitionStatus(stale[i].ID, stale[i].Status, models.EstimateStatusExpired)
		if err != nil {
			log.Printf("estimate: expiring %d failed: %v", stale[i].ID, err)
			continue
		}
		if ok {
			expired++
			s.invalidate(ctx, stale[i].ID)
		}
	}
	return expired, nil
}

func (s *service) invalidate(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateEstimate(ctx, id); err != nil {
		log.Printf("estimate: cache invalidation for %d failed: %v", id, err)
	}
}
