package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"peerdesk/internal/models"
	"peerdesk/internal/platform"
)

// Trade activity-log actions.
const (
	ActionTradeCreated  = "TRADE_CREATED"
	ActionTradeAssigned = "TRADE_ASSIGNED"
	ActionTradeUpdated  = "TRADE_UPDATED"
)

// NormalizeTrade maps one platform payload into the storage model. Rate
// fields keep the platform's string representation; BtcAmount is derived
// from the minor-unit total (1e8 units per whole coin).
func NormalizeTrade(raw platform.RawTrade, account models.Account, now time.Time) models.Trade {
	trade := models.Trade{
		TradeHash:             raw.TradeHash,
		AccountID:             account.ID,
		Platform:              account.Platform,
		Status:                models.TradeStatusPending,
		TradeStatus:           raw.TradeStatus,
		Amount:                parseDecimal(raw.Amount),
		CryptoAmountRequested: raw.CryptoAmountRequested,
		CryptoAmountTotal:     raw.CryptoAmountTotal,
		FeeCryptoAmount:       raw.FeeCryptoAmount,
		FeePercentage:         parseDecimal(raw.FeePercentage),
		Margin:                parseDecimal(raw.Margin),
		SourceID:              raw.SourceID,
		ResponderUsername:     raw.ResponderUsername,
		OwnerUsername:         raw.OwnerUsername,
		PaymentMethod:         raw.PaymentMethod,
		LocationISO:           raw.LocationISO,
		FiatCurrency:          raw.FiatCurrency,
		CryptoCurrency:        raw.CryptoCurrency,
		OfferHash:             raw.OfferHash,
		IsActiveOffer:         raw.IsActiveOffer,
		BtcRate:               strings.TrimSpace(raw.FiatPricePerCrypto),
		DollarRate:            dollarRate(raw),
		BtcAmount:             decimal.New(raw.CryptoAmountTotal, -8).String(),
	}

	if len(raw.Raw) > 0 {
		trade.PlatformMetadata = datatypes.JSON(raw.Raw)
	} else {
		trade.PlatformMetadata = datatypes.JSON([]byte("{}"))
	}

	seed := []models.ActivityEntry{{
		Action:      ActionTradeCreated,
		PerformedBy: "system",
		PerformedAt: now,
		Details: map[string]any{
			"platform":         account.Platform,
			"trade_hash":       raw.TradeHash,
			"account_id":       account.ID,
			"account_username": account.Username,
		},
	}}
	trade.ActivityLog, _ = models.EncodeActivityLog(seed)

	return trade
}

// dollarRate resolves the USD rate with the platform's fallback chain: the
// live rate when present, the per-trade snapshot otherwise, "0" when the
// payload carries neither.
func dollarRate(raw platform.RawTrade) string {
	if v := strings.TrimSpace(raw.CryptoCurrentRateUSD); v != "" {
		return v
	}
	if v := strings.TrimSpace(raw.CryptoRateUSD); v != "" {
		return v
	}
	return "0"
}

func parseDecimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return v
}
