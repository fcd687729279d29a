package escrow

import (
	"context"

	"casa/internal/models"
)

// Service is the escrow state machine. It is the only writer of PaymentHold
// and Invoice status fields; every other component requests transitions
// through this API and gets a typed error when a guard rejects the request.
type Service interface {
	// CreateHold authorizes the worst-case amount for an approved estimate.
	// Idempotent: a second call returns the existing hold.
	CreateHold(ctx context.Context, estimateID uint) (*models.PaymentHold, error)

	// ReleaseHold cancels an authorized hold that will never be captured
	// (estimate declined after authorization, job canceled).
	ReleaseHold(ctx context.Context, estimateID uint, actor Actor) error

	// CaptureInvoice captures the invoice total plus the homeowner platform
	// fee. Permitted from pending_approval only, at most once; the system
	// actor lands the invoice in auto_approved, everyone else in paid.
	CaptureInvoice(ctx context.Context, invoiceID uint, actor Actor) (*CaptureResult, error)

	// OpenDispute moves a pending invoice into disputed, provided the
	// dispute window is still open and the timer has not approved it first.
	OpenDispute(ctx context.Context, invoiceID uint, openedBy uint, reason, description string) (*models.Dispute, error)

	// ResolveDisputed drives the money side of a dispute decision and
	// returns the single ledger entry the resolution produced.
	ResolveDisputed(ctx context.Context, invoiceID uint, resolution string, refundCents int64, actor Actor) (*models.LedgerEntry, error)

	// Reconcile repairs invoices whose capture outcome was unknown by
	// asking the gateway what actually happened. Returns how many invoices
	// were examined.
	Reconcile(ctx context.Context, limit int) (int, error)
}

// InvoiceCache invalidates cached invoice reads after a transition. Display
// caching only; guards always go to the database.
type InvoiceCache interface {
	InvalidateInvoice(ctx context.Context, invoiceID uint) error
	InvalidateEstimate(ctx context.Context, estimateID uint) error
}
