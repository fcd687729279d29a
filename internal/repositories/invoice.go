package repositories

import (
	"time"

	"casa/internal/models"

	"gorm.io/gorm"
)

// CaptureUpdate carries the accounting fields written alongside a capture
// transition.
type CaptureUpdate struct {
	ChargeRef           string
	CapturedAmountCents int64
	ProviderAmountCents int64
	ProviderFeeCents    int64
	PlatformFeeCents    int64
}

type InvoiceRepository interface {
	Create(invoice *models.Invoice) error
	FindByID(id uint) (*models.Invoice, error)
	// TransitionStatus is the optimistic-concurrency guard every status
	// change goes through: UPDATE ... WHERE status = from. A false return
	// means another actor already moved the row.
	TransitionStatus(id uint, from, to string) (bool, error)
	// MarkCaptured performs the capture transition and writes the
	// accounting fields in the same conditional update.
	MarkCaptured(id uint, from, to string, upd CaptureUpdate) (bool, error)
	SetNeedsReconciliation(id uint, flag bool) error
	// ClaimTransferRef fills the provider transfer ref only if none is set,
	// so a double-fired payout job transfers at most once.
	ClaimTransferRef(id uint, ref string) (bool, error)
	ListAutoApprovable(before time.Time, limit int) ([]models.Invoice, error)
	ListNeedingReconciliation(limit int) ([]models.Invoice, error)
	ListPayable(limit int) ([]models.Invoice, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(invoice *models.Invoice) error {
	return r.db.Create(invoice).Error
}

func (r *invoiceRepository) FindByID(id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.First(&invoice, id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) TransitionStatus(id uint, from, to string) (bool, error) {
	res := r.db.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (r *invoiceRepository) MarkCaptured(id uint, from, to string, upd CaptureUpdate) (bool, error) {
	res := r.db.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":                to,
			"charge_ref":            upd.ChargeRef,
			"captured_amount_cents": upd.CapturedAmountCents,
			"provider_amount_cents": upd.ProviderAmountCents,
			"provider_fee_cents":    upd.ProviderFeeCents,
			"platform_fee_cents":    upd.PlatformFeeCents,
			"needs_reconciliation":  false,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *invoiceRepository) SetNeedsReconciliation(id uint, flag bool) error {
	return r.db.Model(&models.Invoice{}).
		Where("id = ?", id).
		Update("needs_reconciliation", flag).Error
}

func (r *invoiceRepository) ClaimTransferRef(id uint, ref string) (bool, error) {
	res := r.db.Model(&models.Invoice{}).
		Where("id = ? AND (provider_transfer_ref = '' OR provider_transfer_ref IS NULL)", id).
		Update("provider_transfer_ref", ref)
	return res.RowsAffected > 0, res.Error
}

func (r *invoiceRepository) ListAutoApprovable(before time.Time, limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.
		Where("status = ? AND created_at < ? AND needs_reconciliation = false",
			models.InvoiceStatusPendingApproval, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) ListNeedingReconciliation(limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.
		Where("needs_reconciliation = true").
		Order("updated_at ASC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}

func (r *invoiceRepository) ListPayable(limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.
		Where("status IN ? AND charge_ref != '' AND (provider_transfer_ref = '' OR provider_transfer_ref IS NULL)",
			[]string{models.InvoiceStatusPaid, models.InvoiceStatusAutoApproved}).
		Order("updated_at ASC").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}
