package repositories

import (
	"casa/internal/models"

	"gorm.io/gorm"
)

type HoldRepository interface {
	Create(hold *models.PaymentHold) error
	FindByEstimateID(estimateID uint) (*models.PaymentHold, error)
	TransitionStatus(id uint, from, to string) (bool, error)
}

type holdRepository struct {
	db *gorm.DB
}

func NewHoldRepository(db *gorm.DB) HoldRepository {
	return &holdRepository{db: db}
}

func (r *holdRepository) Create(hold *models.PaymentHold) error {
	return r.db.Create(hold).Error
}

func (r *holdRepository) FindByEstimateID(estimateID uint) (*models.PaymentHold, error) {
	var hold models.PaymentHold
	err := r.db.Where("estimate_id = ?", estimateID).First(&hold).Error
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

func (r *holdRepository) TransitionStatus(id uint, from, to string) (bool, error) {
	res := r.db.Model(&models.PaymentHold{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}
