package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	noonesDefaultBaseURL  = "https://api.noones.com/noones/v1"
	noonesDefaultTokenURL = "https://auth.noones.com/oauth2/token"
)

// noonesClient talks to the Noones trade API. The API is a close relative of
// Paxful's but takes JSON request bodies and names some rate fields
// differently, so it gets its own wire mapping.
type noonesClient struct {
	creds      Credentials
	baseURL    string
	tokenURL   string
	httpClient *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func newNoonesClient(creds Credentials, cfg Config) *noonesClient {
	base := strings.TrimRight(cfg.NoonesBaseURL, "/")
	if base == "" {
		base = noonesDefaultBaseURL
	}
	tokenURL := cfg.NoonesTokenURL
	if tokenURL == "" {
		tokenURL = noonesDefaultTokenURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &noonesClient{
		creds:      creds,
		baseURL:    base,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *noonesClient) Platform() string { return "noones" }

func (c *noonesClient) Initialize(ctx context.Context) error {
	return c.ensureToken(ctx)
}

func (c *noonesClient) login(ctx context.Context) error {
	if strings.TrimSpace(c.creds.APIKey) == "" || strings.TrimSpace(c.creds.APISecret) == "" {
		return fmt.Errorf("noones: missing api credentials")
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.creds.APIKey)
	form.Set("client_secret", c.creds.APISecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var tr oauthTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("noones: decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("noones: empty access token")
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return nil
}

func (c *noonesClient) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	tok := c.token
	exp := c.expiresAt
	c.mu.RUnlock()
	if tok == "" {
		return c.login(ctx)
	}
	if !exp.IsZero() && time.Until(exp) < 2*time.Minute {
		return c.login(ctx)
	}
	return nil
}

func (c *noonesClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *noonesClient) post(ctx context.Context, path string, body map[string]any) (json.RawMessage, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	data, status, err := c.doOnce(ctx, path, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
		data, status, err = c.doOnce(ctx, path, body)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, &APIError{Status: status, Body: strings.TrimSpace(string(data))}
	}
	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("noones: decode response: %w", err)
	}
	if env.Status != "success" {
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return nil, fmt.Errorf("noones: %s: %s", path, msg)
	}
	return env.Data, nil
}

func (c *noonesClient) doOnce(ctx context.Context, path string, body map[string]any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

type noonesTrade struct {
	TradeHash             string      `json:"trade_hash"`
	OfferHash             string      `json:"offer_hash"`
	TradeStatus           string      `json:"trade_status"`
	FiatAmountRequested   json.Number `json:"fiat_amount_requested"`
	CryptoAmountRequested int64       `json:"crypto_amount_requested"`
	CryptoAmountTotal     int64       `json:"crypto_amount_total"`
	FeeCryptoAmount       int64       `json:"fee_crypto_amount"`
	FeePercentage         json.Number `json:"fee_percentage"`
	Margin                json.Number `json:"margin"`
	SourceID              json.Number `json:"source_id"`
	ResponderUsername     string      `json:"responder_username"`
	OwnerUsername         string      `json:"owner_username"`
	PaymentMethodName     string      `json:"payment_method_name"`
	LocationISO           string      `json:"location_iso"`
	FiatCurrencyCode      string      `json:"fiat_currency_code"`
	CryptoCurrencyCode    string      `json:"crypto_currency_code"`
	IsActiveOffer         bool        `json:"is_active_offer"`
	FiatPricePerCrypto    json.Number `json:"fiat_price_per_crypto"`
	CryptoCurrentRateUSD  json.Number `json:"crypto_current_rate_usd"`
	CryptoRateUSD         json.Number `json:"crypto_rate_usd"`
	StartedAt             int64       `json:"started_at"`
}

func (t noonesTrade) toRaw(raw json.RawMessage) RawTrade {
	return RawTrade{
		TradeHash:             t.TradeHash,
		OfferHash:             t.OfferHash,
		TradeStatus:           t.TradeStatus,
		Amount:                t.FiatAmountRequested.String(),
		CryptoAmountRequested: t.CryptoAmountRequested,
		CryptoAmountTotal:     t.CryptoAmountTotal,
		FeeCryptoAmount:       t.FeeCryptoAmount,
		FeePercentage:         t.FeePercentage.String(),
		Margin:                t.Margin.String(),
		SourceID:              t.SourceID.String(),
		ResponderUsername:     t.ResponderUsername,
		OwnerUsername:         t.OwnerUsername,
		PaymentMethod:         t.PaymentMethodName,
		LocationISO:           t.LocationISO,
		FiatCurrency:          t.FiatCurrencyCode,
		CryptoCurrency:        t.CryptoCurrencyCode,
		IsActiveOffer:         t.IsActiveOffer,
		FiatPricePerCrypto:    t.FiatPricePerCrypto.String(),
		CryptoCurrentRateUSD:  t.CryptoCurrentRateUSD.String(),
		CryptoRateUSD:         t.CryptoRateUSD.String(),
		StartedAt:             time.Unix(t.StartedAt, 0).UTC(),
		Raw:                   raw,
	}
}

func (c *noonesClient) ListActiveTrades(ctx context.Context) ([]RawTrade, error) {
	data, err := c.post(ctx, "/trade/list", map[string]any{"active": true})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Trades []json.RawMessage `json:"trades"`
		Count  int               `json:"count"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("noones: decode trade list: %w", err)
	}
	trades := make([]RawTrade, 0, len(payload.Trades))
	for _, raw := range payload.Trades {
		var t noonesTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("noones: decode trade: %w", err)
		}
		trades = append(trades, t.toRaw(raw))
	}
	return trades, nil
}

func (c *noonesClient) GetTradeDetails(ctx context.Context, tradeHash string) (*RawTrade, error) {
	if tradeHash == "" {
		return nil, fmt.Errorf("noones: trade_hash is required")
	}
	data, err := c.post(ctx, "/trade/get", map[string]any{"trade_hash": tradeHash})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Trade json.RawMessage `json:"trade"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("noones: decode trade: %w", err)
	}
	var t noonesTrade
	if err := json.Unmarshal(payload.Trade, &t); err != nil {
		return nil, fmt.Errorf("noones: decode trade: %w", err)
	}
	raw := t.toRaw(payload.Trade)
	return &raw, nil
}

func (c *noonesClient) MarkTradeAsPaid(ctx context.Context, tradeHash string) (bool, error) {
	if tradeHash == "" {
		return false, fmt.Errorf("noones: trade_hash is required")
	}
	data, err := c.post(ctx, "/trade/paid", map[string]any{"trade_hash": tradeHash})
	if err != nil {
		return false, err
	}
	var payload struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("noones: decode paid response: %w", err)
	}
	return payload.Success, nil
}

func (c *noonesClient) SendTradeMessage(ctx context.Context, tradeHash, text string) (*DeliveryResult, error) {
	if tradeHash == "" {
		return nil, fmt.Errorf("noones: trade_hash is required")
	}
	data, err := c.post(ctx, "/trade-chat/post", map[string]any{"trade_hash": tradeHash, "message": text})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("noones: decode chat post response: %w", err)
	}
	return &DeliveryResult{Success: payload.Success, Message: payload.Message}, nil
}

func (c *noonesClient) GetTradeChat(ctx context.Context, tradeHash string) (*TradeChat, error) {
	if tradeHash == "" {
		return nil, fmt.Errorf("noones: trade_hash is required")
	}
	data, err := c.post(ctx, "/trade-chat/get", map[string]any{"trade_hash": tradeHash})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Messages    []paxfulChatMessage    `json:"messages"`
		Attachments []paxfulChatAttachment `json:"attachments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("noones: decode chat: %w", err)
	}
	chat := &TradeChat{
		Messages:    make([]ChatMessage, 0, len(payload.Messages)),
		Attachments: make([]ChatAttachment, 0, len(payload.Attachments)),
	}
	for _, m := range payload.Messages {
		chat.Messages = append(chat.Messages, ChatMessage{
			ID:        m.ID,
			Author:    m.Author,
			Text:      m.Text,
			Type:      m.Type,
			Timestamp: time.Unix(m.Timestamp, 0).UTC(),
		})
	}
	for _, a := range payload.Attachments {
		chat.Attachments = append(chat.Attachments, ChatAttachment{
			ID:       a.ID,
			FullURL:  a.FullURL,
			MimeType: a.MimeType,
		})
	}
	return chat, nil
}
