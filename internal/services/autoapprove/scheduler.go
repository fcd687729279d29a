// Package autoapprove is the background timer that captures invoices the
// customer never acted on. It only selects candidates; the escrow state
// machine's conditional transition is what decides the race against a
// late-arriving dispute or manual approval.
package autoapprove

import (
	"context"
	"errors"
	"log"
	"time"

	apperrors "casa/internal/errors"
	"casa/internal/repositories"
	"casa/internal/services/escrow"
)

const defaultBatchSize = 100

type Scheduler struct {
	invoices  repositories.InvoiceRepository
	escrow    escrow.Service
	feeSource repositories.FeeConfigSource
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewScheduler(invoices repositories.InvoiceRepository, esc escrow.Service, feeSource repositories.FeeConfigSource, interval time.Duration) *Scheduler {
	if invoices == nil || esc == nil || feeSource == nil {
		panic("autoapprove: invoices, escrow and fee source are required")
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		invoices:  invoices,
		escrow:    esc,
		feeSource: feeSource,
		interval:  interval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until the context is canceled. One
// failing invoice never stops the sweep; it is logged and retried on the
// next tick.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("autoapprove: sweeping every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("autoapprove: stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("autoapprove: sweep failed: %v", err)
			}
		}
	}
}

// RunOnce captures every invoice whose auto-approval deadline has passed.
// Returns how many captures succeeded.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	cfg, err := s.feeSource.Load(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-time.Duration(cfg.AutoApproveHours) * time.Hour)

	candidates, err := s.invoices.ListAutoApprovable(cutoff, s.batchSize)
	if err != nil {
		return 0, err
	}

	captured := 0
	for i := range candidates {
		id := candidates[i].ID
		res, err := s.escrow.CaptureInvoice(ctx, id, escrow.SystemActor)
		switch {
		case err == nil:
			captured++
			log.Printf("autoapprove: invoice %d captured %d cents as %s", id, res.TotalCapturedCents, res.Status)
		case errors.Is(err, apperrors.ErrDuplicateCapture),
			errors.Is(err, apperrors.ErrInvoiceDisputed):
			// Someone got there between the listing and the capture. Working
			// as intended.
		case errors.Is(err, apperrors.ErrReconciliationRequired):
			log.Printf("autoapprove: invoice %d deferred to reconciliation", id)
		default:
			log.Printf("autoapprove: invoice %d capture failed: %v", id, err)
		}
	}
	return captured, nil
}
