package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscalatedTrade is the escalation record for a disputed trade. The unique
// index on trade_id is load-bearing: concurrent escalation attempts for the
// same trade resolve to exactly one row, losers get a duplicate-key error.
type EscalatedTrade struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TradeID  uint64 `gorm:"not null;uniqueIndex"`
	Platform string `gorm:"type:varchar(20);not null"`
	Status   string `gorm:"type:varchar(20);not null;default:'pending';index"`

	Complaint string          `gorm:"type:text"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`

	AssignedAgentID *uint64 `gorm:"index"`
	AssignedPayerID *uint64 `gorm:"index"`
	EscalatedBy     string  `gorm:"type:varchar(100)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (EscalatedTrade) TableName() string {
	return "escalated_trades"
}

// Escalation states.
const (
	EscalationStatusPending  = "pending"
	EscalationStatusAssigned = "assigned"
	EscalationStatusResolved = "resolved"
)
