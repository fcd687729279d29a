// Package ledger records every money movement exactly once. The ledger is
// the reconciliation source of truth: duplicate captures and refunds are
// prevented by the idempotency key, not by callers being careful.
package ledger

import (
	"context"
	"fmt"
	"log"

	"casa/internal/models"
	"casa/internal/repositories"

	"github.com/google/uuid"
)

// Entry describes one money movement to record.
type Entry struct {
	InvoiceID   uint
	Operation   string
	AmountCents int64
	GatewayRef  string
	Actor       string
	Metadata    map[string]interface{}
	// KeySuffix distinguishes deliberate repeats of the same operation on
	// an invoice, e.g. an offsetting correction. Empty for the common case.
	KeySuffix string
}

type Service interface {
	// Record appends the entry. Replaying the same (invoice, operation)
	// returns the original row without writing a second one.
	Record(ctx context.Context, e Entry) (*models.LedgerEntry, error)
	History(ctx context.Context, invoiceID uint) ([]models.LedgerEntry, error)
}

type service struct {
	repo repositories.LedgerRepository
}

func NewService(repo repositories.LedgerRepository) Service {
	return &service{repo: repo}
}

// IdempotencyKey derives the token that makes an operation at-most-once.
func IdempotencyKey(invoiceID uint, operation, suffix string) string {
	key := fmt.Sprintf("inv:%d:%s", invoiceID, operation)
	if suffix != "" {
		key += ":" + suffix
	}
	return key
}

func (s *service) Record(ctx context.Context, e Entry) (*models.LedgerEntry, error) {
	if e.InvoiceID == 0 || e.Operation == "" || e.Actor == "" {
		return nil, fmt.Errorf("ledger entry missing invoice, operation or actor")
	}

	entry := &models.LedgerEntry{
		ID:             uuid.NewString(),
		InvoiceID:      e.InvoiceID,
		OperationType:  e.Operation,
		AmountCents:    e.AmountCents,
		IdempotencyKey: IdempotencyKey(e.InvoiceID, e.Operation, e.KeySuffix),
		GatewayRef:     e.GatewayRef,
		Actor:          e.Actor,
		Metadata:       models.JSON(e.Metadata),
	}

	created, existing, err := s.repo.Append(entry)
	if err != nil {
		return nil, fmt.Errorf("ledger append failed for %s: %w", entry.IdempotencyKey, err)
	}
	if !created {
		log.Printf("ledger: %s already recorded as %s, skipping duplicate", entry.IdempotencyKey, existing.ID)
		return existing, nil
	}
	return entry, nil
}

func (s *service) History(ctx context.Context, invoiceID uint) ([]models.LedgerEntry, error) {
	return s.repo.ListByInvoiceID(invoiceID)
}
