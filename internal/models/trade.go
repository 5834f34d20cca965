package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Trade is one P2P trade mirrored from a platform account. trade_hash is the
// natural key: re-ingesting the same hash updates the existing row in place.
type Trade struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	TradeHash string `gorm:"type:varchar(100);not null;uniqueIndex"`
	AccountID uint64 `gorm:"not null;index"`
	Platform  string `gorm:"type:varchar(20);not null;index"`

	// Status is the internal lifecycle state; TradeStatus is the platform's
	// free-form state string ("Active funded", "Dispute open", ...).
	Status      string `gorm:"type:varchar(20);not null;default:'pending';index"`
	TradeStatus string `gorm:"type:varchar(50)"`

	Amount                 decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CryptoAmountRequested  int64           `gorm:"not null;default:0"`
	CryptoAmountTotal      int64           `gorm:"not null;default:0"`
	FeeCryptoAmount        int64           `gorm:"not null;default:0"`
	FeePercentage          decimal.Decimal `gorm:"type:numeric(10,4);not null;default:0"`
	Margin                 decimal.Decimal `gorm:"type:numeric(10,4);not null;default:0"`

	SourceID          string `gorm:"type:varchar(50)"`
	ResponderUsername string `gorm:"type:varchar(100);index"`
	OwnerUsername     string `gorm:"type:varchar(100)"`
	PaymentMethod     string `gorm:"type:varchar(100)"`
	LocationISO       string `gorm:"type:varchar(10)"`
	FiatCurrency      string `gorm:"type:varchar(10)"`
	CryptoCurrency    string `gorm:"type:varchar(10)"`
	OfferHash         string `gorm:"type:varchar(100)"`
	IsActiveOffer     bool   `gorm:"not null;default:false"`

	// Rate fields are carried as strings to preserve the platform's exact
	// representation; BtcAmount is derived from CryptoAmountTotal (1e8 minor
	// units per whole coin).
	BtcRate    string `gorm:"type:varchar(50)"`
	DollarRate string `gorm:"type:varchar(50)"`
	BtcAmount  string `gorm:"type:varchar(50)"`

	Flagged bool `gorm:"not null;default:false;index"`

	AssignedPayerID *uint64    `gorm:"index"`
	AssignedAt      *time.Time `gorm:"type:timestamptz"`
	CompletedAt     *time.Time `gorm:"type:timestamptz"`
	Notes           string     `gorm:"type:text"`

	PlatformMetadata datatypes.JSON `gorm:"type:jsonb"`
	ActivityLog      datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Trade) TableName() string {
	return "trades"
}

// Trade lifecycle states.
const (
	TradeStatusPending   = "pending"
	TradeStatusAssigned  = "assigned"
	TradeStatusCompleted = "completed"
	TradeStatusCancelled = "cancelled"
	TradeStatusDisputed  = "disputed"
)

// ActivityEntry is one element of a trade's embedded activity log.
type ActivityEntry struct {
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	PerformedAt time.Time      `json:"performed_at"`
	Details     map[string]any `json:"details,omitempty"`
}

// EncodeActivityLog marshals entries into the jsonb column representation.
// A nil or empty slice encodes as an empty array, never null.
func EncodeActivityLog(entries []ActivityEntry) (datatypes.JSON, error) {
	if len(entries) == 0 {
		return datatypes.JSON([]byte("[]")), nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeActivityLog unmarshals the jsonb column back into entries. Empty or
// null columns decode as an empty slice.
func DecodeActivityLog(raw datatypes.JSON) ([]ActivityEntry, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []ActivityEntry{}, nil
	}
	var entries []ActivityEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
