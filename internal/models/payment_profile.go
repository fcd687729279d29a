package models

import "time"

// PaymentProfile links a platform user to their processor-side identities.
// CustomerRef is used when charging the user (homeowner side), AccountRef
// when paying them out (provider side). The surrounding user directory is an
// external collaborator; this is the only slice of it the escrow engine reads.
type PaymentProfile struct {
	ID                      uint   `gorm:"primarykey"`
	UserID                  uint   `gorm:"not null;uniqueIndex"`
	CustomerRef             string
	DefaultPaymentMethodRef string
	AccountRef              string
	InstantPayoutOptIn      bool `gorm:"not null;default:false"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
