// Package dispute is the admin-facing resolver. It finalizes the dispute
// record and hands the money movement to the escrow state machine. The
// dispute row is claimed first with a conditional update so two admins
// resolving simultaneously produce exactly one resolution.
package dispute

import (
	"context"
	"errors"
	"log"
	"time"

	apperrors "casa/internal/errors"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/escrow"

	"gorm.io/gorm"
)

// ResolveInput is the admin's decision. Notes are mandatory: every
// resolution must be explainable after the fact.
type ResolveInput struct {
	DisputeID   uint
	Resolution  string
	RefundCents int64
	Notes       string
	ResolvedBy  uint
}

type Service interface {
	Get(ctx context.Context, id uint) (*models.Dispute, error)
	ListForInvoice(ctx context.Context, invoiceID uint) ([]models.Dispute, error)
	// Resolve finalizes the dispute and moves the money. Returns the ledger
	// entry the resolution produced.
	Resolve(ctx context.Context, in ResolveInput) (*models.LedgerEntry, error)
	// AttachAdvisory stores AI-generated analysis on the dispute. Display
	// only; it never influences the resolution path.
	AttachAdvisory(ctx context.Context, id uint, advisory models.JSON) error
}

type service struct {
	disputes repositories.DisputeRepository
	escrow   escrow.Service
	now      func() time.Time
}

func NewService(disputes repositories.DisputeRepository, esc escrow.Service) Service {
	if disputes == nil || esc == nil {
		panic("dispute: repository and escrow service are required")
	}
	return &service{disputes: disputes, escrow: esc, now: time.Now}
}

func (s *service) Get(ctx context.Context, id uint) (*models.Dispute, error) {
	dispute, err := s.disputes.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("dispute %d", id)
		}
		return nil, err
	}
	return dispute, nil
}

func (s *service) ListForInvoice(ctx context.Context, invoiceID uint) ([]models.Dispute, error) {
	return s.disputes.FindByInvoiceID(invoiceID)
}

func (s *service) Resolve(ctx context.Context, in ResolveInput) (*models.LedgerEntry, error) {
	if in.Notes == "" {
		return nil, apperrors.ErrValidation.WithDetail("resolution notes are required")
	}
	if in.ResolvedBy == 0 {
		return nil, apperrors.ErrValidation.WithDetail("resolver identity is required")
	}
	switch in.Resolution {
	case models.ResolutionCustomerFavor, models.ResolutionProviderFavor:
		if in.RefundCents != 0 {
			return nil, apperrors.ErrValidation.WithDetail("refund amount applies only to split resolutions")
		}
	case models.ResolutionSplit:
		if in.RefundCents <= 0 {
			return nil, apperrors.ErrValidation.WithDetail("split resolution requires a positive refund amount")
		}
	default:
		return nil, apperrors.ErrValidation.WithDetail("unknown resolution %q", in.Resolution)
	}

	dispute, err := s.Get(ctx, in.DisputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Resolved() {
		return nil, apperrors.ErrValidation.WithDetail("dispute %d is already %s", dispute.ID, dispute.Resolution)
	}

	// Claim the dispute row before moving money. If the escrow side fails
	// afterwards the dispute is finalized but the invoice still shows
	// disputed; that pairing is surfaced loudly below rather than undone,
	// because the gateway may already have acted.
	ok, err := s.disputes.Resolve(dispute.ID, in.Resolution, in.RefundCents, in.Notes, in.ResolvedBy, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrValidation.WithDetail("dispute %d was resolved concurrently", dispute.ID)
	}

	entry, err := s.escrow.ResolveDisputed(ctx, dispute.InvoiceID, in.Resolution,
		in.RefundCents, escrow.Actor{Kind: escrow.ActorAdmin, ID: in.ResolvedBy})
	if err != nil {
		log.Printf("ALERT: dispute %d recorded as %s but settlement of invoice %d failed: %v",
			dispute.ID, in.Resolution, dispute.InvoiceID, err)
		return nil, err
	}
	return entry, nil
}

func (s *service) AttachAdvisory(ctx context.Context, id uint, advisory models.JSON) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.disputes.AttachAdvisory(id, advisory)
}
