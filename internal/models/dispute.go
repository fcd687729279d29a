package models

import "time"

// Dispute reasons a customer may file under
const (
	DisputeReasonWorkIncomplete = "work_incomplete"
	DisputeReasonQuality        = "quality_issue"
	DisputeReasonOvercharge     = "overcharge"
	DisputeReasonNotPerformed   = "work_not_performed"
	DisputeReasonOther          = "other"
)

// Dispute resolutions
const (
	ResolutionPending       = "pending"
	ResolutionCustomerFavor = "customer_favor"
	ResolutionProviderFavor = "provider_favor"
	ResolutionSplit         = "split"
	ResolutionEscalated     = "escalated"
)

// Dispute is a customer's contest of an invoice, opened inside the dispute
// window. Resolution is final; once set the record never changes again.
//
// Advisory holds any AI-generated analysis (root-cause classification,
// suggested refund). It is display-only metadata: the resolution API requires
// an explicit human decision and never reads a default from this field.
type Dispute struct {
	ID          uint   `gorm:"primarykey"`
	InvoiceID   uint   `gorm:"not null;index"`
	OpenedByID  uint   `gorm:"not null"`
	Reason      string `gorm:"not null"`
	Description string
	OpenedAt    time.Time `gorm:"not null"`

	Resolution        string `gorm:"not null;default:'pending'"`
	RefundAmountCents int64  `gorm:"not null;default:0"`
	ResolvedByID      *uint
	Notes             string
	ResolvedAt        *time.Time

	Advisory JSON `gorm:"type:jsonb"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resolved reports whether the dispute has reached its terminal state.
func (d *Dispute) Resolved() bool {
	return d.Resolution != ResolutionPending
}
