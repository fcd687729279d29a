package models

import "time"

// PaymentHold statuses
const (
	HoldStatusAuthorized = "authorized"
	HoldStatusCaptured   = "captured"
	HoldStatusCanceled   = "canceled"
	HoldStatusExpired    = "expired"
)

// PaymentHold is the processor-side authorization backing an approved
// estimate. One-to-one with the estimate. The authorized amount must cover
// the estimate total, the change-order buffer, and the worst-case homeowner
// platform fee; capture can never exceed it.
type PaymentHold struct {
	ID                    uint   `gorm:"primarykey"`
	EstimateID            uint   `gorm:"not null;uniqueIndex"`
	PaymentIntentRef      string `gorm:"not null"`
	AuthorizedAmountCents int64  `gorm:"not null"`
	OriginalAmountCents   int64  `gorm:"not null"`
	BufferAmountCents     int64  `gorm:"not null"`
	MaxPlatformFeeCents   int64  `gorm:"not null"`
	FeeConfigVersion      int    `gorm:"not null"`
	Status                string `gorm:"not null;default:'authorized'"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
