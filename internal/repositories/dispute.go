package repositories

import (
	"time"

	"casa/internal/models"

	"gorm.io/gorm"
)

type DisputeRepository interface {
	Create(dispute *models.Dispute) error
	FindByID(id uint) (*models.Dispute, error)
	FindByInvoiceID(invoiceID uint) ([]models.Dispute, error)
	ExistsOpenByInvoiceID(invoiceID uint) (bool, error)
	// Resolve finalizes the dispute only while it is still pending; a false
	// return means it was already resolved.
	Resolve(id uint, resolution string, refundCents int64, notes string, resolvedBy uint, at time.Time) (bool, error)
	AttachAdvisory(id uint, advisory models.JSON) error
}

type disputeRepository struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) DisputeRepository {
	return &disputeRepository{db: db}
}

func (r *disputeRepository) Create(dispute *models.Dispute) error {
	return r.db.Create(dispute).Error
}

func (r *disputeRepository) FindByID(id uint) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.First(&dispute, id).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

func (r *disputeRepository) FindByInvoiceID(invoiceID uint) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.Where("invoice_id = ?", invoiceID).Find(&disputes).Error
	return disputes, err
}

func (r *disputeRepository) ExistsOpenByInvoiceID(invoiceID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Dispute{}).
		Where("invoice_id = ? AND resolution = ?", invoiceID, models.ResolutionPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *disputeRepository) Resolve(id uint, resolution string, refundCents int64, notes string, resolvedBy uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.Dispute{}).
		Where("id = ? AND resolution = ?", id, models.ResolutionPending).
		Updates(map[string]interface{}{
			"resolution":          resolution,
			"refund_amount_cents": refundCents,
			"notes":               notes,
			"resolved_by_id":      resolvedBy,
			"resolved_at":         at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *disputeRepository) AttachAdvisory(id uint, advisory models.JSON) error {
	return r.db.Model(&models.Dispute{}).
		Where("id = ?", id).
		Update("advisory", advisory).Error
}
