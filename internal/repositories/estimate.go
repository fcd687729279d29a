package repositories

import (
	"time"

	"casa/internal/models"

	"gorm.io/gorm"
)

type EstimateRepository interface {
	Create(estimate *models.Estimate) error
	FindByID(id uint) (*models.Estimate, error)
	// TransitionStatus flips status only when the row is still in the
	// expected state. Returns false when another actor got there first.
	TransitionStatus(id uint, from, to string) (bool, error)
	MarkApproved(id uint, from string, approvedAt time.Time) (bool, error)
	ListExpirable(before time.Time, limit int) ([]models.Estimate, error)
}

type estimateRepository struct {
	db *gorm.DB
}

func NewEstimateRepository(db *gorm.DB) EstimateRepository {
	return &estimateRepository{db: db}
}

func (r *estimateRepository) Create(estimate *models.Estimate) error {
	return r.db.Create(estimate).Error
}

func (r *estimateRepository) FindByID(id uint) (*models.Estimate, error) {
	var estimate models.Estimate
	err := r.db.First(&estimate, id).Error
	if err != nil {
		return nil, err
	}
	return &estimate, nil
}

func (r *estimateRepository) TransitionStatus(id uint, from, to string) (bool, error) {
	res := r.db.Model(&models.Estimate{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

func (r *estimateRepository) MarkApproved(id uint, from string, approvedAt time.Time) (bool, error) {
	res := r.db.Model(&models.Estimate{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":      models.EstimateStatusApproved,
			"approved_at": approvedAt,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *estimateRepository) ListExpirable(before time.Time, limit int) ([]models.Estimate, error) {
	var estimates []models.Estimate
	err := r.db.
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]string{models.EstimateStatusSent, models.EstimateStatusViewed}, before).
		Limit(limit).
		Find(&estimates).Error
	return estimates, err
}
