package models

import "time"

// Account is a platform trading account the pipeline ingests on behalf of.
// Accounts are provisioned out of band; the pipeline only reads them.
type Account struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Username string `gorm:"type:varchar(100);not null"`
	Platform string `gorm:"type:varchar(20);not null;index"`

	// Credentials never leave the process in API responses.
	APIKey    string `gorm:"type:text;not null" json:"-"`
	APISecret string `gorm:"type:text;not null" json:"-"`

	Status string `gorm:"type:varchar(20);not null;default:'active';index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}

// Account status values.
const (
	AccountStatusActive    = "active"
	AccountStatusInactive  = "inactive"
	AccountStatusSuspended = "suspended"
)

// Supported platform tags.
const (
	PlatformPaxful = "paxful"
	PlatformNoones = "noones"
)
