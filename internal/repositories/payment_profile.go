package repositories

import (
	"casa/internal/models"

	"gorm.io/gorm"
)

type PaymentProfileRepository interface {
	FindByUserID(userID uint) (*models.PaymentProfile, error)
	Upsert(profile *models.PaymentProfile) error
}

type paymentProfileRepository struct {
	db *gorm.DB
}

func NewPaymentProfileRepository(db *gorm.DB) PaymentProfileRepository {
	return &paymentProfileRepository{db: db}
}

func (r *paymentProfileRepository) FindByUserID(userID uint) (*models.PaymentProfile, error) {
	var profile models.PaymentProfile
	err := r.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *paymentProfileRepository) Upsert(profile *models.PaymentProfile) error {
	return r.db.Save(profile).Error
}
