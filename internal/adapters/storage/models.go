package storage

import "time"

// FlashRecordModel is the GORM model for the flash history table
type FlashRecordModel struct {
	BuildConfig    string    `gorm:"not null;default:''"`
	CreatedAt      time.Time `gorm:"not null;index:idx_created_at"`
	EnvName        string    `gorm:"not null;default:''"`
	FinishedAt     time.Time
	ID             string `gorm:"primaryKey"`
	Message        string `gorm:"default:''"`
	Status         string `gorm:"not null;check:status IN ('completed','failed','cancelled','expired')"`
	TargetDeviceID string `gorm:"default:''"`
	TargetPort     string `gorm:"default:''"`
	UpdatedAt      time.Time
}

// TableName specifies the table name for GORM
func (FlashRecordModel) TableName() string { return "flash_history" }
