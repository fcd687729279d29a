package repositories

import (
	"errors"

	"casa/internal/models"

	"gorm.io/gorm"
)

type LedgerRepository interface {
	// Append inserts a new entry. When an entry with the same idempotency
	// key already exists, the existing row is returned with created=false
	// and nothing is written: at most one effect per operation.
	Append(entry *models.LedgerEntry) (created bool, existing *models.LedgerEntry, err error)
	FindByIdempotencyKey(key string) (*models.LedgerEntry, error)
	ListByInvoiceID(invoiceID uint) ([]models.LedgerEntry, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Append(entry *models.LedgerEntry) (bool, *models.LedgerEntry, error) {
	err := r.db.Create(entry).Error
	if err == nil {
		return true, entry, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, findErr := r.FindByIdempotencyKey(entry.IdempotencyKey)
		if findErr != nil {
			return false, nil, findErr
		}
		return false, existing, nil
	}
	return false, nil, err
}

func (r *ledgerRepository) FindByIdempotencyKey(key string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.Where("idempotency_key = ?", key).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *ledgerRepository) ListByInvoiceID(invoiceID uint) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.Where("invoice_id = ?", invoiceID).Order("created_at ASC").Find(&entries).Error
	return entries, err
}
