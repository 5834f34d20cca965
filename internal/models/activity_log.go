package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog is the global audit table. Trades additionally carry their own
// embedded per-trade log; rows here are the cross-cutting feed.
type ActivityLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	UserID      *uint64 `gorm:"index"`
	Activity    string  `gorm:"type:varchar(100);not null;index"`
	Description string  `gorm:"type:text"`

	Details           datatypes.JSON `gorm:"type:jsonb"`
	IsSystemGenerated bool           `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
