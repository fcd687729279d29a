// Package escrow implements the invoice lifecycle:
//
//	pending_approval -> paid | auto_approved | disputed
//	disputed         -> paid | refunded
//
// Transitions are guarded by conditional database updates on the status
// column, so concurrent actors (customer approval, the auto-approval timer,
// dispute filing) race safely: the first conditional update wins and every
// loser gets a typed error instead of a second side effect.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	apperrors "casa/internal/errors"
	"casa/internal/gateway"
	"casa/internal/models"
	"casa/internal/repositories"
	"casa/internal/services/fees"
	"casa/internal/services/ledger"

	"gorm.io/gorm"
)

// Config wires the state machine's dependencies.
type Config struct {
	Estimates repositories.EstimateRepository
	Holds     repositories.HoldRepository
	Invoices  repositories.InvoiceRepository
	Disputes  repositories.DisputeRepository
	Profiles  repositories.PaymentProfileRepository
	Ledger    ledger.Service
	Gateway   gateway.Gateway
	FeeSource repositories.FeeConfigSource
	Cache     InvoiceCache
}

type service struct {
	estimates repositories.EstimateRepository
	holds     repositories.HoldRepository
	invoices  repositories.InvoiceRepository
	disputes  repositories.DisputeRepository
	profiles  repositories.PaymentProfileRepository
	ledger    ledger.Service
	gw        gateway.Gateway
	feeSource repositories.FeeConfigSource
	cache     InvoiceCache
	calc      *fees.Calculator
	now       func() time.Time
}

func NewService(cfg Config) Service {
	if cfg.Invoices == nil || cfg.Holds == nil || cfg.Estimates == nil {
		panic("escrow: repositories are required")
	}
	if cfg.Gateway == nil {
		panic("escrow: gateway is required")
	}
	if cfg.Ledger == nil {
		panic("escrow: ledger is required")
	}
	return &service{
		estimates: cfg.Estimates,
		holds:     cfg.Holds,
		invoices:  cfg.Invoices,
		disputes:  cfg.Disputes,
		profiles:  cfg.Profiles,
		ledger:    cfg.Ledger,
		gw:        cfg.Gateway,
		feeSource: cfg.FeeSource,
		cache:     cfg.Cache,
		calc:      fees.NewCalculator(),
		now:       time.Now,
	}
}

func (s *service) CreateHold(ctx context.Context, estimateID uint) (*models.PaymentHold, error) {
	estimate, err := s.estimates.FindByID(estimateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("estimate %d", estimateID)
		}
		return nil, err
	}
	if estimate.Status != models.EstimateStatusApproved {
		return nil, apperrors.ErrValidation.WithDetail("estimate %d is %s, not approved", estimateID, estimate.Status)
	}

	// Holds are one-to-one with estimates; a repeat call is a no-op.
	if existing, err := s.holds.FindByEstimateID(estimateID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cfg, err := s.feeSource.Load(ctx)
	if err != nil {
		return nil, apperrors.ErrConfig.WithDetail("%v", err)
	}
	auth, err := s.calc.AuthorizationAmount(cfg, estimate.TotalCents)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.FindByUserID(estimate.CustomerID)
	if err != nil || profile.CustomerRef == "" || profile.DefaultPaymentMethodRef == "" {
		return nil, apperrors.ErrValidation.WithDetail("customer %d has no payment method on file", estimate.CustomerID)
	}

	authz, err := s.gw.Authorize(ctx, gateway.AuthorizeRequest{
		CustomerRef:      profile.CustomerRef,
		PaymentMethodRef: profile.DefaultPaymentMethodRef,
		AmountCents:      auth.AuthorizedCents,
		IdempotencyKey:   fmt.Sprintf("est:%d:authorize", estimateID),
		Metadata: map[string]string{
			"estimate_id":        strconv.FormatUint(uint64(estimate.ID), 10),
			"service_request_id": strconv.FormatUint(uint64(estimate.ServiceRequestID), 10),
			"property_id":        strconv.FormatUint(uint64(estimate.PropertyID), 10),
			"provider_id":        strconv.FormatUint(uint64(estimate.ProviderID), 10),
			"customer_id":        strconv.FormatUint(uint64(estimate.CustomerID), 10),
		},
	})
	if err != nil {
		if errors.Is(err, gateway.ErrDeclined) {
			return nil, apperrors.ErrGateway.WithDetail("payment could not be authorized")
		}
		if errors.Is(err, gateway.ErrOutcomeUnknown) {
			return nil, apperrors.ErrReconciliationRequired.WithDetail("authorization for estimate %d", estimateID)
		}
		return nil, apperrors.ErrGateway.WithDetail("%v", err)
	}

	hold := &models.PaymentHold{
		EstimateID:            estimate.ID,
		PaymentIntentRef:      authz.HoldRef,
		AuthorizedAmountCents: auth.AuthorizedCents,
		OriginalAmountCents:   auth.OriginalCents,
		BufferAmountCents:     auth.BufferCents,
		MaxPlatformFeeCents:   auth.MaxPlatformFeeCents,
		FeeConfigVersion:      cfg.Version,
		Status:                models.HoldStatusAuthorized,
	}
	if err := s.holds.Create(hold); err != nil {
		// The processor holds funds we have no local record of. This must
		// page someone; the authorization idempotency key makes the repair
		// safe to re-run.
		log.Printf("ALERT: hold persisted at gateway (%s) but not locally for estimate %d: %v",
			authz.HoldRef, estimateID, err)
		return nil, err
	}
	return hold, nil
}

func (s *service) ReleaseHold(ctx context.Context, estimateID uint, actor Actor) error {
	hold, err := s.holds.FindByEstimateID(estimateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound.WithDetail("hold for estimate %d", estimateID)
		}
		return err
	}
	if hold.Status != models.HoldStatusAuthorized {
		return apperrors.ErrValidation.WithDetail("hold %d is %s, not authorized", hold.ID, hold.Status)
	}
	if err := s.gw.Cancel(ctx, hold.PaymentIntentRef); err != nil {
		return apperrors.ErrGateway.WithDetail("cancel hold: %v", err)
	}
	ok, err := s.holds.TransitionStatus(hold.ID, models.HoldStatusAuthorized, models.HoldStatusCanceled)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("escrow: hold %d moved concurrently during release by %s", hold.ID, actor)
	}
	return nil
}

func (s *service) CaptureInvoice(ctx context.Context, invoiceID uint, actor Actor) (*CaptureResult, error) {
	to := models.InvoiceStatusPaid
	if actor.Kind == ActorSystem {
		to = models.InvoiceStatusAutoApproved
	}
	return s.capture(ctx, invoiceID, models.InvoiceStatusPendingApproval, to, actor)
}

// capture is the single path every capture goes through, whatever the
// trigger. Order matters: gateway first, ledger second, local transition
// last. The gateway call is idempotent by key, the ledger append is
// idempotent by token, and the conditional update is what decides the one
// winner, so a concurrent double call produces one charge, one ledger row
// and one winner, with the loser receiving ErrDuplicateCapture.
func (s *service) capture(ctx context.Context, invoiceID uint, from, to string, actor Actor) (*CaptureResult, error) {
	invoice, err := s.invoices.FindByID(invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("invoice %d", invoiceID)
		}
		return nil, err
	}

	switch invoice.Status {
	case from:
		// proceed
	case models.InvoiceStatusPaid, models.InvoiceStatusAutoApproved:
		return nil, apperrors.ErrDuplicateCapture
	case models.InvoiceStatusDisputed:
		return nil, apperrors.ErrInvoiceDisputed
	default:
		return nil, apperrors.ErrValidation.WithDetail("invoice %d is %s", invoiceID, invoice.Status)
	}
	if invoice.NeedsReconciliation {
		return nil, apperrors.ErrReconciliationRequired
	}

	hold, err := s.holds.FindByEstimateID(invoice.EstimateID)
	if err != nil {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d has no payment hold", invoiceID)
	}

	cfg, err := s.feeSource.Load(ctx)
	if err != nil {
		return nil, apperrors.ErrConfig.WithDetail("%v", err)
	}
	split, err := s.calc.Split(cfg, invoice.TotalCents, invoice.InstantPayout)
	if err != nil {
		return nil, err
	}

	// Variance beyond the authorized ceiling is a hard stop: the remainder
	// needs a supplemental charge the customer explicitly approves. Never
	// silently clamp.
	if split.TotalCapturedCents > hold.AuthorizedAmountCents {
		return nil, apperrors.ErrInsufficientAuthorization.WithDetail(
			"capture %d exceeds authorized %d", split.TotalCapturedCents, hold.AuthorizedAmountCents)
	}

	charge, err := s.gw.Capture(ctx, hold.PaymentIntentRef, split.TotalCapturedCents,
		ledger.IdempotencyKey(invoice.ID, models.LedgerOpCapture, ""))
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrOutcomeUnknown):
			if ferr := s.invoices.SetNeedsReconciliation(invoice.ID, true); ferr != nil {
				log.Printf("ALERT: cannot flag invoice %d for reconciliation: %v", invoice.ID, ferr)
			}
			return nil, apperrors.ErrReconciliationRequired
		case errors.Is(err, gateway.ErrDeclined):
			// Hard decline: invoice stays pending_approval, nothing to undo.
			return nil, apperrors.ErrGateway.WithDetail("payment was declined")
		default:
			return nil, apperrors.ErrGateway.WithDetail("%v", err)
		}
	}

	if _, err := s.ledger.Record(ctx, ledger.Entry{
		InvoiceID:   invoice.ID,
		Operation:   models.LedgerOpCapture,
		AmountCents: split.TotalCapturedCents,
		GatewayRef:  charge.ChargeRef,
		Actor:       actor.String(),
		Metadata: map[string]interface{}{
			"provider_amount_cents": split.ProviderAmountCents,
			"provider_fee_cents":    split.ProviderFeeCents,
			"platform_fee_cents":    split.PlatformFeeCents,
		},
	}); err != nil {
		// Money moved but the ledger did not record it. The charge ref on
		// the gateway side lets the reconciliation pass re-derive the entry
		// idempotently; re-capturing is never the answer.
		log.Printf("ALERT: captured %s for invoice %d but ledger write failed: %v",
			charge.ChargeRef, invoice.ID, err)
		if ferr := s.invoices.SetNeedsReconciliation(invoice.ID, true); ferr != nil {
			log.Printf("ALERT: cannot flag invoice %d for reconciliation: %v", invoice.ID, ferr)
		}
		return nil, apperrors.ErrReconciliationRequired
	}

	ok, err := s.invoices.MarkCaptured(invoice.ID, from, to, repositories.CaptureUpdate{
		ChargeRef:           charge.ChargeRef,
		CapturedAmountCents: split.TotalCapturedCents,
		ProviderAmountCents: split.ProviderAmountCents,
		ProviderFeeCents:    split.ProviderFeeCents,
		PlatformFeeCents:    split.PlatformFeeCents,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Another actor completed the same capture first. The charge and
		// ledger entry are shared (same idempotency keys), so nothing was
		// duplicated; this caller simply lost the race.
		return nil, apperrors.ErrDuplicateCapture
	}

	if ok, err := s.holds.TransitionStatus(hold.ID, models.HoldStatusAuthorized, models.HoldStatusCaptured); err != nil || !ok {
		log.Printf("escrow: hold %d not transitioned to captured (ok=%v err=%v)", hold.ID, ok, err)
	}
	s.invalidate(ctx, invoice)

	return &CaptureResult{
		InvoiceID:                 invoice.ID,
		ChargeID:                  charge.ChargeRef,
		TotalCapturedCents:        split.TotalCapturedCents,
		ProviderAmountCents:       split.ProviderAmountCents,
		ProviderFeeCents:          split.ProviderFeeCents,
		HomeownerPlatformFeeCents: split.PlatformFeeCents,
		Status:                    to,
	}, nil
}

func (s *service) OpenDispute(ctx context.Context, invoiceID uint, openedBy uint, reason, description string) (*models.Dispute, error) {
	if reason == "" {
		return nil, apperrors.ErrValidation.WithDetail("dispute reason is required")
	}

	invoice, err := s.invoices.FindByID(invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("invoice %d", invoiceID)
		}
		return nil, err
	}
	if invoice.CustomerID != openedBy {
		return nil, apperrors.ErrValidation.WithDetail("user %d is not the customer on invoice %d", openedBy, invoiceID)
	}

	cfg, err := s.feeSource.Load(ctx)
	if err != nil {
		return nil, apperrors.ErrConfig.WithDetail("%v", err)
	}

	// The window closes on the clock, not on the timer having run. An
	// invoice one minute past the window is undisputable even if the
	// auto-approval sweep has not reached it yet.
	window := time.Duration(cfg.DisputeWindowHours) * time.Hour
	if s.now().Sub(invoice.CreatedAt) >= window {
		return nil, apperrors.ErrDisputeWindowClosed
	}

	switch invoice.Status {
	case models.InvoiceStatusPendingApproval:
		// proceed
	case models.InvoiceStatusPaid, models.InvoiceStatusAutoApproved:
		return nil, apperrors.ErrDisputeWindowClosed
	case models.InvoiceStatusDisputed:
		return nil, apperrors.ErrValidation.WithDetail("invoice %d is already disputed", invoiceID)
	default:
		return nil, apperrors.ErrValidation.WithDetail("invoice %d is %s", invoiceID, invoice.Status)
	}

	if open, err := s.disputes.ExistsOpenByInvoiceID(invoiceID); err != nil {
		return nil, err
	} else if open {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d already has an open dispute", invoiceID)
	}

	// The race against the timer is decided here, at the database, not by
	// anything this process observed above.
	ok, err := s.invoices.TransitionStatus(invoiceID, models.InvoiceStatusPendingApproval, models.InvoiceStatusDisputed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrDisputeWindowClosed
	}

	dispute := &models.Dispute{
		InvoiceID:   invoiceID,
		OpenedByID:  openedBy,
		Reason:      reason,
		Description: description,
		OpenedAt:    s.now(),
		Resolution:  models.ResolutionPending,
	}
	if err := s.disputes.Create(dispute); err != nil {
		// The invoice is disputed but the dispute row is missing; surface
		// loudly rather than leaving the invoice stuck silently.
		log.Printf("ALERT: invoice %d transitioned to disputed but dispute row failed: %v", invoiceID, err)
		return nil, err
	}
	s.invalidate(ctx, invoice)
	return dispute, nil
}

func (s *service) ResolveDisputed(ctx context.Context, invoiceID uint, resolution string, refundCents int64, actor Actor) (*models.LedgerEntry, error) {
	invoice, err := s.invoices.FindByID(invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithDetail("invoice %d", invoiceID)
		}
		return nil, err
	}
	if invoice.Status != models.InvoiceStatusDisputed {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d is %s, not disputed", invoiceID, invoice.Status)
	}

	switch resolution {
	case models.ResolutionProviderFavor:
		res, err := s.capture(ctx, invoiceID, models.InvoiceStatusDisputed, models.InvoiceStatusPaid, actor)
		if err != nil {
			return nil, err
		}
		return s.ledger.Record(ctx, ledger.Entry{
			InvoiceID:   invoiceID,
			Operation:   models.LedgerOpCapture,
			AmountCents: res.TotalCapturedCents,
			GatewayRef:  res.ChargeID,
			Actor:       actor.String(),
		})
	case models.ResolutionCustomerFavor:
		return s.refundDisputed(ctx, invoice, 0, actor)
	case models.ResolutionSplit:
		if refundCents <= 0 {
			return nil, apperrors.ErrValidation.WithDetail("split resolution requires a positive refund amount")
		}
		return s.settleSplit(ctx, invoice, refundCents, actor)
	default:
		return nil, apperrors.ErrValidation.WithDetail("unknown resolution %q", resolution)
	}
}

// refundDisputed unwinds a disputed invoice fully in the customer's favor.
// If funds were captured they are refunded; otherwise the hold is released.
func (s *service) refundDisputed(ctx context.Context, invoice *models.Invoice, _ int64, actor Actor) (*models.LedgerEntry, error) {
	hold, err := s.holds.FindByEstimateID(invoice.EstimateID)
	if err != nil {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d has no payment hold", invoice.ID)
	}

	var gatewayRef string
	var amount int64
	meta := map[string]interface{}{}

	if invoice.Captured() {
		refund, err := s.gw.Refund(ctx, invoice.ChargeRef, invoice.CapturedAmountCents,
			ledger.IdempotencyKey(invoice.ID, models.LedgerOpRefund, ""))
		if err != nil {
			return nil, s.refundError(invoice.ID, err)
		}
		gatewayRef = refund.RefundRef
		amount = invoice.CapturedAmountCents
	} else {
		if err := s.gw.Cancel(ctx, hold.PaymentIntentRef); err != nil {
			return nil, s.refundError(invoice.ID, err)
		}
		if ok, err := s.holds.TransitionStatus(hold.ID, models.HoldStatusAuthorized, models.HoldStatusCanceled); err != nil || !ok {
			log.Printf("escrow: hold %d not transitioned to canceled (ok=%v err=%v)", hold.ID, ok, err)
		}
		gatewayRef = hold.PaymentIntentRef
		amount = invoice.TotalCents
		meta["hold_canceled"] = true
	}

	entry, err := s.ledger.Record(ctx, ledger.Entry{
		InvoiceID:   invoice.ID,
		Operation:   models.LedgerOpRefund,
		AmountCents: amount,
		GatewayRef:  gatewayRef,
		Actor:       actor.String(),
		Metadata:    meta,
	})
	if err != nil {
		log.Printf("ALERT: refund succeeded at gateway (%s) but ledger write failed for invoice %d: %v",
			gatewayRef, invoice.ID, err)
		return nil, apperrors.ErrReconciliationRequired
	}

	ok, err := s.invoices.TransitionStatus(invoice.ID, models.InvoiceStatusDisputed, models.InvoiceStatusRefunded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d moved concurrently during resolution", invoice.ID)
	}
	s.invalidate(ctx, invoice)
	return entry, nil
}

// settleSplit captures the invoice in full, then refunds the decided share
// back to the customer. The refund is capped by the captured total and the
// cap is enforced before any gateway call.
func (s *service) settleSplit(ctx context.Context, invoice *models.Invoice, refundCents int64, actor Actor) (*models.LedgerEntry, error) {
	capturedTotal := invoice.CapturedAmountCents
	if !invoice.Captured() {
		cfg, err := s.feeSource.Load(ctx)
		if err != nil {
			return nil, apperrors.ErrConfig.WithDetail("%v", err)
		}
		split, err := s.calc.Split(cfg, invoice.TotalCents, invoice.InstantPayout)
		if err != nil {
			return nil, err
		}
		capturedTotal = split.TotalCapturedCents
	}
	if refundCents > capturedTotal {
		return nil, apperrors.ErrValidation.WithDetail(
			"refund %d exceeds captured total %d", refundCents, capturedTotal)
	}

	chargeRef := invoice.ChargeRef
	if !invoice.Captured() {
		res, err := s.capture(ctx, invoice.ID, models.InvoiceStatusDisputed, models.InvoiceStatusDisputed, actor)
		if err != nil && !errors.Is(err, apperrors.ErrDuplicateCapture) {
			return nil, err
		}
		if res != nil {
			chargeRef = res.ChargeID
		} else {
			refreshed, rerr := s.invoices.FindByID(invoice.ID)
			if rerr != nil {
				return nil, rerr
			}
			chargeRef = refreshed.ChargeRef
		}
	}

	refund, err := s.gw.Refund(ctx, chargeRef, refundCents,
		ledger.IdempotencyKey(invoice.ID, models.LedgerOpRefund, ""))
	if err != nil {
		return nil, s.refundError(invoice.ID, err)
	}

	entry, err := s.ledger.Record(ctx, ledger.Entry{
		InvoiceID:   invoice.ID,
		Operation:   models.LedgerOpRefund,
		AmountCents: refundCents,
		GatewayRef:  refund.RefundRef,
		Actor:       actor.String(),
		Metadata:    map[string]interface{}{"split": true, "captured_total_cents": capturedTotal},
	})
	if err != nil {
		log.Printf("ALERT: split refund succeeded at gateway (%s) but ledger write failed for invoice %d: %v",
			refund.RefundRef, invoice.ID, err)
		return nil, apperrors.ErrReconciliationRequired
	}

	ok, err := s.invoices.TransitionStatus(invoice.ID, models.InvoiceStatusDisputed, models.InvoiceStatusRefunded)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrValidation.WithDetail("invoice %d moved concurrently during resolution", invoice.ID)
	}
	s.invalidate(ctx, invoice)
	return entry, nil
}

// Reconcile asks the gateway what actually happened to flagged invoices and
// repairs local state idempotently. It never re-captures: the gateway's
// answer is authoritative.
func (s *service) Reconcile(ctx context.Context, limit int) (int, error) {
	invoices, err := s.invoices.ListNeedingReconciliation(limit)
	if err != nil {
		return 0, err
	}

	for i := range invoices {
		invoice := &invoices[i]
		if err := s.reconcileOne(ctx, invoice); err != nil {
			log.Printf("escrow: reconciliation of invoice %d failed, will retry: %v", invoice.ID, err)
		}
	}
	return len(invoices), nil
}

func (s *service) reconcileOne(ctx context.Context, invoice *models.Invoice) error {
	hold, err := s.holds.FindByEstimateID(invoice.EstimateID)
	if err != nil {
		return fmt.Errorf("no hold for invoice %d: %w", invoice.ID, err)
	}

	state, err := s.gw.RetrieveHold(ctx, hold.PaymentIntentRef)
	if err != nil {
		return err
	}

	switch state.Status {
	case gateway.HoldStateCaptured:
		// The capture went through; re-derive the accounting from the
		// charge the gateway reports. Ledger append is idempotent.
		cfg, err := s.feeSource.Load(ctx)
		if err != nil {
			return err
		}
		split, err := s.calc.Split(cfg, invoice.TotalCents, invoice.InstantPayout)
		if err != nil {
			return err
		}
		if split.TotalCapturedCents != state.CapturedCents {
			log.Printf("ALERT: invoice %d captured %d at gateway but fee schedule computes %d",
				invoice.ID, state.CapturedCents, split.TotalCapturedCents)
		}
		if _, err := s.ledger.Record(ctx, ledger.Entry{
			InvoiceID:   invoice.ID,
			Operation:   models.LedgerOpCapture,
			AmountCents: state.CapturedCents,
			GatewayRef:  state.ChargeRef,
			Actor:       SystemActor.String(),
			Metadata:    map[string]interface{}{"reconciled": true},
		}); err != nil {
			return err
		}
		// A capture that timed out mid-resolution leaves the invoice
		// disputed. Record the accounting but keep the state: the refund
		// half of the resolution still has to run.
		to := models.InvoiceStatusAutoApproved
		if invoice.Status == models.InvoiceStatusDisputed {
			to = models.InvoiceStatusDisputed
		}
		ok, err := s.invoices.MarkCaptured(invoice.ID, invoice.Status, to,
			repositories.CaptureUpdate{
				ChargeRef:           state.ChargeRef,
				CapturedAmountCents: state.CapturedCents,
				ProviderAmountCents: split.ProviderAmountCents,
				ProviderFeeCents:    split.ProviderFeeCents,
				PlatformFeeCents:    split.PlatformFeeCents,
			})
		if err != nil {
			return err
		}
		if ok {
			if hok, herr := s.holds.TransitionStatus(hold.ID, models.HoldStatusAuthorized, models.HoldStatusCaptured); herr != nil || !hok {
				log.Printf("escrow: hold %d not transitioned during reconciliation (ok=%v err=%v)", hold.ID, hok, herr)
			}
		}
		s.invalidate(ctx, invoice)
		return nil
	case gateway.HoldStateAuthorized:
		// The capture never happened; the invoice can resume its normal
		// life.
		return s.invoices.SetNeedsReconciliation(invoice.ID, false)
	case gateway.HoldStateCanceled:
		log.Printf("escrow: hold for invoice %d was canceled at the gateway", invoice.ID)
		return s.invoices.SetNeedsReconciliation(invoice.ID, false)
	default:
		return fmt.Errorf("hold %s in indeterminate state %s", hold.PaymentIntentRef, state.Status)
	}
}

func (s *service) refundError(invoiceID uint, err error) error {
	if errors.Is(err, gateway.ErrOutcomeUnknown) {
		if ferr := s.invoices.SetNeedsReconciliation(invoiceID, true); ferr != nil {
			log.Printf("ALERT: cannot flag invoice %d for reconciliation: %v", invoiceID, ferr)
		}
		return apperrors.ErrReconciliationRequired
	}
	return apperrors.ErrGateway.WithDetail("%v", err)
}

func (s *service) invalidate(ctx context.Context, invoice *models.Invoice) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateInvoice(ctx, invoice.ID); err != nil {
		log.Printf("escrow: invoice %d cache invalidation failed: %v", invoice.ID, err)
	}
	if err := s.cache.InvalidateEstimate(ctx, invoice.EstimateID); err != nil {
		log.Printf("escrow: estimate %d cache invalidation failed: %v", invoice.EstimateID, err)
	}
}
