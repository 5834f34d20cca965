package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rates is an append-only snapshot of the desk's reference prices. Readers
// take the newest row; history is kept for auditing.
type Rates struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	SellingPrice decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	BuyingPrice  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	Source       string          `gorm:"type:varchar(50)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Rates) TableName() string {
	return "rates"
}
