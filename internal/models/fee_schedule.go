package models

import "time"

// FeeSchedule persists one version of the fee configuration. Rows are never
// updated in place; admins publish a new version and flip Active. Snapshot is
// the serialized config.FeeConfig for that version.
type FeeSchedule struct {
	ID        uint   `gorm:"primarykey"`
	Version   int    `gorm:"not null;uniqueIndex"`
	Snapshot  []byte `gorm:"type:jsonb;not null"`
	Active    bool   `gorm:"not null;default:false;index"`
	CreatedAt time.Time
}
