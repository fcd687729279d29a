package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"casa/internal/config"
	"casa/internal/models"
	"casa/internal/repositories/cache"

	"gorm.io/gorm"
)

// FeeConfigSource loads the currently active fee schedule. Implementations
// must return a fresh snapshot per call; callers never cache across a
// request, per the versioned-snapshot rule.
type FeeConfigSource interface {
	Load(ctx context.Context) (config.FeeConfig, error)
	Publish(ctx context.Context, cfg config.FeeConfig) error
}

type feeScheduleRepository struct {
	db    *gorm.DB
	cache *cache.CacheService
}

func NewFeeConfigSource(db *gorm.DB, cacheSvc *cache.CacheService) FeeConfigSource {
	return &feeScheduleRepository{db: db, cache: cacheSvc}
}

// Load reads the active version pointer from the database on every call,
// then resolves the immutable snapshot for that version (redis first, DB on
// miss). Seeds the default schedule when no version has been published yet.
func (r *feeScheduleRepository) Load(ctx context.Context) (config.FeeConfig, error) {
	var row models.FeeSchedule
	err := r.db.WithContext(ctx).
		Select("version").
		Where("active = true").
		Order("version DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		cfg := config.DefaultFeeConfig()
		if err := cfg.Validate(); err != nil {
			return config.FeeConfig{}, fmt.Errorf("default fee config invalid: %w", err)
		}
		if err := r.Publish(ctx, cfg); err != nil {
			return config.FeeConfig{}, err
		}
		return cfg, nil
	}
	if err != nil {
		return config.FeeConfig{}, fmt.Errorf("load active fee schedule: %w", err)
	}

	if r.cache != nil {
		if data, err := r.cache.GetFeeSnapshot(ctx, row.Version); err == nil && data != nil {
			var cfg config.FeeConfig
			if err := json.Unmarshal(data, &cfg); err == nil {
				return cfg, nil
			}
		}
	}

	var full models.FeeSchedule
	if err := r.db.WithContext(ctx).Where("version = ?", row.Version).First(&full).Error; err != nil {
		return config.FeeConfig{}, fmt.Errorf("load fee schedule v%d: %w", row.Version, err)
	}
	var cfg config.FeeConfig
	if err := json.Unmarshal(full.Snapshot, &cfg); err != nil {
		return config.FeeConfig{}, fmt.Errorf("decode fee schedule v%d: %w", row.Version, err)
	}
	if err := cfg.Validate(); err != nil {
		return config.FeeConfig{}, fmt.Errorf("fee schedule v%d invalid: %w", row.Version, err)
	}

	if r.cache != nil {
		_ = r.cache.CacheFeeSnapshot(ctx, cfg.Version, full.Snapshot)
	}
	return cfg, nil
}

// Publish validates and stores a new schedule version, deactivating the old
// pointer in the same transaction.
func (r *feeScheduleRepository) Publish(ctx context.Context, cfg config.FeeConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("fee config rejected: %w", err)
	}
	snapshot, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode fee config: %w", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.FeeSchedule{}).
			Where("active = true").
			Update("active", false).Error; err != nil {
			return err
		}
		return tx.Create(&models.FeeSchedule{
			Version:  cfg.Version,
			Snapshot: snapshot,
			Active:   true,
		}).Error
	})
}
