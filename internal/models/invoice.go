package models

import (
	"time"

	"github.com/lib/pq"
)

// Invoice statuses
const (
	InvoiceStatusPendingApproval = "pending_approval"
	InvoiceStatusPaid            = "paid"
	InvoiceStatusAutoApproved    = "auto_approved"
	InvoiceStatusDisputed        = "disputed"
	InvoiceStatusRefunded        = "refunded"
)

// Invoice is the provider's final bill after work is done. The total may
// exceed the estimate (variance) but capture is capped by the payment hold's
// authorized amount.
type Invoice struct {
	ID                 uint `gorm:"primarykey"`
	EstimateID         uint `gorm:"not null;index"`
	ProviderID         uint `gorm:"not null;index"`
	CustomerID         uint `gorm:"not null;index"`
	LineItems          LineItems `gorm:"type:jsonb"`
	TotalCents         int64     `gorm:"not null"`
	EstimateTotalCents int64     `gorm:"not null"`
	VarianceCents      int64     `gorm:"not null;default:0"`
	CompletionPhotos   pq.StringArray `gorm:"type:text[]"`
	Status             string         `gorm:"not null;default:'pending_approval';index"`
	InstantPayout      bool           `gorm:"not null;default:false"`

	// Capture accounting, populated when the invoice transitions to
	// paid or auto_approved.
	ChargeRef          string
	ProviderTransferRef string
	CapturedAmountCents int64
	ProviderAmountCents int64
	ProviderFeeCents    int64
	PlatformFeeCents    int64

	// Set when a capture attempt ended with an unknown gateway outcome and
	// the invoice is waiting for a reconciliation pass.
	NeedsReconciliation bool `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// Captured reports whether funds have been captured for this invoice.
func (i *Invoice) Captured() bool {
	return i.ChargeRef != ""
}
