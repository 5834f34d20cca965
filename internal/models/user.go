package models

import "time"

// User is a desk operator. The pipeline only ever queries active payers;
// admins and agents exist for the escalation surface.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Username string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name     string `gorm:"type:varchar(200)"`
	Role     string `gorm:"type:varchar(20);not null;index"`
	Status   string `gorm:"type:varchar(20);not null;default:'active';index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// User roles and states.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
	RolePayer = "payer"

	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)
