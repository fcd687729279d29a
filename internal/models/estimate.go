package models

import (
	"time"
)

// Estimate statuses
const (
	EstimateStatusDraft    = "draft"
	EstimateStatusSent     = "sent"
	EstimateStatusViewed   = "viewed"
	EstimateStatusApproved = "approved"
	EstimateStatusDeclined = "declined"
	EstimateStatusExpired  = "expired"
)

// Estimate is a provider's priced proposal for a service request.
// Financial terms are locked once the estimate is approved; after that the
// only writes allowed are status transitions driven by the escrow engine.
type Estimate struct {
	ID               uint `gorm:"primarykey"`
	ServiceRequestID uint `gorm:"not null;index"`
	PropertyID       uint
	ProviderID       uint      `gorm:"not null;index"`
	CustomerID       uint      `gorm:"not null;index"`
	LineItems        LineItems `gorm:"type:jsonb"`
	LaborCents       int64     `gorm:"not null;default:0"`
	MaterialsCents   int64     `gorm:"not null;default:0"`
	SubtotalCents    int64     `gorm:"not null"`
	TaxCents         int64     `gorm:"not null;default:0"`
	TotalCents       int64     `gorm:"not null"`
	BufferPercentage float64   `gorm:"not null;default:0"`
	Category         string
	Status           string `gorm:"not null;default:'draft'"`
	ApprovedAt       *time.Time
	ExpiresAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether the estimate can no longer change.
func (e *Estimate) IsTerminal() bool {
	switch e.Status {
	case EstimateStatusApproved, EstimateStatusDeclined, EstimateStatusExpired:
		return true
	}
	return false
}
