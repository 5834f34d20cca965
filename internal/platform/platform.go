package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Adapter is the capability surface every platform client exposes. The
// factory binds an account to exactly one adapter; nothing downstream
// switches on the platform tag again.
type Adapter interface {
	Platform() string
	Initialize(ctx context.Context) error
	ListActiveTrades(ctx context.Context) ([]RawTrade, error)
	GetTradeDetails(ctx context.Context, tradeHash string) (*RawTrade, error)
	MarkTradeAsPaid(ctx context.Context, tradeHash string) (bool, error)
	SendTradeMessage(ctx context.Context, tradeHash, text string) (*DeliveryResult, error)
	GetTradeChat(ctx context.Context, tradeHash string) (*TradeChat, error)
}

// RawTrade is the platform-agnostic projection of one wire-format trade.
// String fields preserve the platform's exact decimal representation; crypto
// amounts are in minor units (1e8 per whole coin).
type RawTrade struct {
	TradeHash             string
	OfferHash             string
	TradeStatus           string
	Amount                string
	CryptoAmountRequested int64
	CryptoAmountTotal     int64
	FeeCryptoAmount       int64
	FeePercentage         string
	Margin                string
	SourceID              string
	ResponderUsername     string
	OwnerUsername         string
	PaymentMethod         string
	LocationISO           string
	FiatCurrency          string
	CryptoCurrency        string
	IsActiveOffer         bool
	FiatPricePerCrypto    string
	CryptoCurrentRateUSD  string
	CryptoRateUSD         string
	StartedAt             time.Time

	// Raw is the verbatim payload, kept for the trade's platform_metadata.
	Raw json.RawMessage
}

// DeliveryResult reports the outcome of sending a chat message.
type DeliveryResult struct {
	Success bool
	Message string
}

// TradeChat is a trade's conversation thread plus any shared attachments.
type TradeChat struct {
	Messages    []ChatMessage
	Attachments []ChatAttachment
}

type ChatMessage struct {
	ID        string
	Author    string
	Text      string
	Type      string
	Timestamp time.Time
}

type ChatAttachment struct {
	ID       string
	FullURL  string
	MimeType string
}

// APIError is a non-2xx platform response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API error (%d): %s", e.Status, e.Body)
}

// Credentials are an account's API key pair, passed to the platform clients
// without dragging the storage model into this package.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Config carries per-platform endpoint overrides, used by tests and
// self-hosted mocks. Empty fields fall back to each client's production URLs.
type Config struct {
	PaxfulBaseURL  string
	PaxfulTokenURL string
	NoonesBaseURL  string
	NoonesTokenURL string
	Timeout        time.Duration
}
