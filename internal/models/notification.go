package models

import "time"

// Notification is an in-app message for a user, written by the pipeline when
// it assigns work.
type Notification struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	UserID      uint64 `gorm:"not null;index"`
	Title       string `gorm:"type:varchar(200);not null"`
	Description string `gorm:"type:text"`
	Priority    string `gorm:"type:varchar(10);not null;default:'normal'"`

	RelatedAccountID *uint64 `gorm:"index"`
	Read             bool    `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)
