// Package payout moves the provider's share of captured funds to their
// connected account. Transfers reference the original charge so the
// processor ties the payout to the money that funded it, and the invoice's
// transfer ref is claimed conditionally so a double-fired job pays at most
// once.
package payout

import (
	"context"
	"errors"
	"log"
	"time"

	apperrors "casa/internal/errors"
	"casa/internal/gateway"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/escrow"
	"casa/internal/services/ledger"
)

const defaultBatchSize = 50

type Service interface {
	// PayInvoice transfers the provider amount for one captured invoice.
	PayInvoice(ctx context.Context, invoiceID uint, actor escrow.Actor) (*models.LedgerEntry, error)
	// ReverseTransfer claws back a completed payout, e.g. after an
	// escalated dispute lands in the customer's favor post-payout.
	ReverseTransfer(ctx context.Context, invoiceID uint, actor escrow.Actor) (*models.LedgerEntry, error)
	// RunOnce pays every invoice that is captured but not yet transferred.
	RunOnce(ctx context.Context) (int, error)
	// Run sweeps on the interval until the context is canceled.
	Run(ctx context.Context, interval time.Duration)
}

type service struct {
	invoices  repositories.InvoiceRepository
	profiles  repositories.PaymentProfileRepository
	gw        gateway.Gateway
	ledger    ledger.Service
	batchSize int
}

func NewService(
	invoices repositories.InvoiceRepository,
	profiles repositories.PaymentProfileRepository,
	gw gateway.Gateway,
	led ledger.Service,
) Service {
	if invoices == nil || profiles == nil || gw == nil || led == nil {
		panic("payout: all dependencies are required")
	}
	return &service{
		invoices:  invoices,
		profiles:  profiles,
		gw:        gw,
		ledger:    led,
		batchSize: defaultBatchSize,
	}
}

func (s *service) PayInvoice(ctx context.Context, invoiceID uint, actor escrow.Actor) (*models.LedgerEntry, error) {
	invoice, err := s.invoices.FindByID(invoiceID)
	if err != nil {
		return nil, apperrors.ErrNotFound.WithDetail("invoice %d", invoiceID)
	}
	return s.pay(ctx, invoice, actor)
}

func (s *service) pay(ctx context.Context, invoice *models.Invoice, actor escrow.Actor) (*models.LedgerEntry, error) {
	switch invoice.Status {
	case models.InvoiceStatusPaid, models.InvoiceStatusAutoApproved:
		// payable
	default:
		return nil, apperrors.ErrValidation.WithDetail("invoice %d is %s, not payable", invoice.ID, invoice.Status)
	}
	if !invoice.Captured() {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d has no captured charge", invoice.ID)
	}
	if invoice.ProviderTransferRef != "" {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d is already paid out as %s", invoice.ID, invoice.ProviderTransferRef)
	}
	if invoice.ProviderAmountCents <= 0 {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d has no provider amount", invoice.ID)
	}

	profile, err := s.profiles.FindByUserID(invoice.ProviderID)
	if err != nil || profile.AccountRef == "" {
		return nil, apperrors.ErrValidation.WithDetail("provider %d has no connected account", invoice.ProviderID)
	}

	transfer, err := s.gw.Transfer(ctx, invoice.ChargeRef, profile.AccountRef,
		invoice.ProviderAmountCents, ledger.IdempotencyKey(invoice.ID, models.LedgerOpTransfer, ""))
	if err != nil {
		if errors.Is(err, gateway.ErrOutcomeUnknown) {
			if ferr := s.invoices.SetNeedsReconciliation(invoice.ID, true); ferr != nil {
				log.Printf("ALERT: cannot flag invoice %d after unknown transfer outcome: %v", invoice.ID, ferr)
			}
			return nil, apperrors.ErrReconciliationRequired
		}
		return nil, apperrors.ErrGateway.WithDetail("transfer: %v", err)
	}

	claimed, err := s.invoices.ClaimTransferRef(invoice.ID, transfer.TransferRef)
	if err != nil {
		log.Printf("ALERT: transfer %s completed but could not be recorded on invoice %d: %v",
			transfer.TransferRef, invoice.ID, err)
		return nil, err
	}
	if !claimed {
		// Another worker paid this invoice. The idempotency key means the
		// gateway replayed its transfer, so no double payout occurred.
		return nil, apperrors.ErrValidation.WithDetail("invoice %d was paid out concurrently", invoice.ID)
	}

	entry, err := s.ledger.Record(ctx, ledger.Entry{
		InvoiceID:   invoice.ID,
		Operation:   models.LedgerOpTransfer,
		AmountCents: invoice.ProviderAmountCents,
		GatewayRef:  transfer.TransferRef,
		Actor:       actor.String(),
		Metadata: map[string]interface{}{
			"destination":    profile.AccountRef,
			"instant_payout": invoice.InstantPayout,
		},
	})
	if err != nil {
		log.Printf("ALERT: transfer %s recorded on invoice %d but ledger write failed: %v",
			transfer.TransferRef, invoice.ID, err)
		return nil, err
	}
	return entry, nil
}

func (s *service) ReverseTransfer(ctx context.Context, invoiceID uint, actor escrow.Actor) (*models.LedgerEntry, error) {
	invoice, err := s.invoices.FindByID(invoiceID)
	if err != nil {
		return nil, apperrors.ErrNotFound.WithDetail("invoice %d", invoiceID)
	}
	if invoice.ProviderTransferRef == "" {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d has no transfer to reverse", invoiceID)
	}

	reversal, err := s.gw.ReverseTransfer(ctx, invoice.ProviderTransferRef,
		invoice.ProviderAmountCents, ledger.IdempotencyKey(invoiceID, models.LedgerOpReversal, ""))
	if err != nil {
		return nil, apperrors.ErrGateway.WithDetail("reversal: %v", err)
	}

	entry, err := s.ledger.Record(ctx, ledger.Entry{
		InvoiceID:   invoiceID,
		Operation:   models.LedgerOpReversal,
		AmountCents: reversal.AmountCents,
		GatewayRef:  reversal.ReversalRef,
		Actor:       actor.String(),
		Metadata:    map[string]interface{}{"transfer_ref": invoice.ProviderTransferRef},
	})
	if err != nil {
		log.Printf("ALERT: reversal %s succeeded but ledger write failed for invoice %d: %v",
			reversal.ReversalRef, invoiceID, err)
		return nil, err
	}
	return entry, nil
}

func (s *service) RunOnce(ctx context.Context) (int, error) {
	invoices, err := s.invoices.ListPayable(s.batchSize)
	if err != nil {
		return 0, err
	}
	paid := 0
	for i := range invoices {
		if _, err := s.pay(ctx, &invoices[i], escrow.SystemActor); err != nil {
			log.Printf("payout: invoice %d skipped: %v", invoices[i].ID, err)
			continue
		}
		paid++
	}
	return paid, nil
}

func (s *service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	log.Printf("payout: sweeping every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("payout: stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("payout: sweep failed: %v", err)
			}
		}
	}
}
