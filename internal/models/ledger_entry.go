package models

import "time"

// Ledger operation types, one per kind of money movement.
const (
	LedgerOpCapture  = "capture"
	LedgerOpRefund   = "refund"
	LedgerOpTransfer = "transfer"
	LedgerOpReversal = "reversal"
)

// LedgerEntry is one row per money movement. Rows are append-only and
// immutable: corrections are new offsetting entries, never updates. The
// idempotency key is derived from (invoice, operation) so a retried
// operation lands on the existing row instead of creating a second one.
type LedgerEntry struct {
	ID             string `gorm:"primarykey"`
	InvoiceID      uint   `gorm:"not null;index"`
	OperationType  string `gorm:"not null"`
	AmountCents    int64  `gorm:"not null"`
	IdempotencyKey string `gorm:"not null;uniqueIndex"`
	GatewayRef     string
	Actor          string `gorm:"not null"`
	Metadata       JSON   `gorm:"type:jsonb"`
	CreatedAt      time.Time
}
