package platform

import (
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
	paxfulDefaultBaseURL  = "https://api.paxful.com/paxful/v1"
	paxfulDefaultTokenURL = "https://accounts.paxful.com/oauth2/token"
)

// paxfulClient talks to the Paxful trade API on behalf of one account.
// Tokens come from the OAuth2 client-credentials flow and are cached until
// close to expiry; a 401 mid-flight triggers one re-login and retry.
type paxfulClient struct {
	creds      Credentials
	baseURL    string
	tokenURL   string
	httpClient *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func newPaxfulClient(creds Credentials, cfg Config) *paxfulClient {
	base := strings.TrimRight(cfg.PaxfulBaseURL, "/")
	if base == "" {
		base = paxfulDefaultBaseURL
	}
	tokenURL := cfg.PaxfulTokenURL
	if tokenURL == "" {
		tokenURL = paxfulDefaultTokenURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &paxfulClient{
		creds:      creds,
		baseURL:    base,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *paxfulClient) Platform() string { return "paxful" }

func (c *paxfulClient) Initialize(ctx context.Context) error {
	return c.ensureToken(ctx)
}

type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *paxfulClient) login(ctx context.Context) error {
	if strings.TrimSpace(c.creds.APIKey) == "" || strings.TrimSpace(c.creds.APISecret) == "" {
		return fmt.Errorf("paxful: missing api credentials")
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
		return fmt.Errorf("paxful: decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("paxful: empty access token")
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return nil
}

func (c *paxfulClient) ensureToken(ctx context.Context) error {
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

func (c *paxfulClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// apiEnvelope is the standard Paxful response wrapper.
type apiEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *apiErrorBody   `json:"error,omitempty"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *paxfulClient) post(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}
	data, status, err := c.doOnce(ctx, path, form)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// Token revoked server-side; re-login once and retry.
		if err := c.login(ctx); err != nil {
			return nil, err
		}
		data, status, err = c.doOnce(ctx, path, form)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, &APIError{Status: status, Body: strings.TrimSpace(string(data))}
	}
	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("paxful: decode response: %w", err)
	}
	if env.Status != "success" {
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return nil, fmt.Errorf("paxful: %s: %s", path, msg)
	}
	return env.Data, nil
}

func (c *paxfulClient) doOnce(ctx context.Context, path string, form url.Values) ([]byte, int, error) {
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// paxfulTrade mirrors the wire shape of one trade object. Fiat and rate
// fields arrive as strings or numbers depending on endpoint version, so they
// stay json.Number until mapped.
type paxfulTrade struct {
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
	FiatPricePerBtc       json.Number `json:"fiat_price_per_btc"`
	CryptoCurrentRateUSD  json.Number `json:"crypto_current_rate_usd"`
	CryptoRateUSD         json.Number `json:"crypto_rate_usd"`
	StartedAt             int64       `json:"started_at"`
}

func (t paxfulTrade) toRaw(raw json.RawMessage) RawTrade {
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
		FiatPricePerCrypto:    t.FiatPricePerBtc.String(),
		CryptoCurrentRateUSD:  t.CryptoCurrentRateUSD.String(),
		CryptoRateUSD:         t.CryptoRateUSD.String(),
		StartedAt:             time.Unix(t.StartedAt, 0).UTC(),
		Raw:                   raw,
	}
}

func (c *paxfulClient) ListActiveTrades(ctx context.Context) ([]RawTrade, error) {
	data, err := c.post(ctx, "/trade/list", url.Values{"active": {"true"}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Trades []json.RawMessage `json:"trades"`
		Count  int               `json:"count"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("paxful: decode trade list: %w", err)
	}
	trades := make([]RawTrade, 0, len(payload.Trades))
	for _, raw := range payload.Trades {
		var t paxfulTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("paxful: decode trade: %w", err)
		}
		trades = append(trades, t.toRaw(raw))
	}
	return trades, nil
}

func (c *paxfulClient) GetTradeDetails(ctx context.Context, tradeHash string) (*RawTrade, error) {
	if tradeHash == "" {
		return nil, fmt.Errorf("paxful: trade_hash is required")
	}
	data, err := c.post(ctx, "/trade/get", url.Values{"trade_hash": {tradeHash}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Trade json.RawMessage `json:"trade"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("paxful: decode trade: %w", err)
	}
	var t paxfulTrade
	if err := json.Unmarshal(payload.Trade, &t); err != nil {
		return nil, fmt.Errorf("paxful: decode trade: %w", err)
	}
	raw := t.toRaw(payload.Trade)
	return &raw, nil
}

func (c *paxfulClient) MarkTradeAsPaid(ctx context.Context, tradeHash string) (bool, error) {
	if tradeHash == "" {
		return false, fmt.Errorf("paxful: trade_hash is required")
	}
	data, err := c.post(ctx, "/trade/paid", url.Values{"trade_hash": {tradeHash}})
	if err != nil {
		return false, err
	}
	var payload struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, fmt.Errorf("paxful: decode paid response: %w", err)
	}
	return payload.Success, nil
}

func (c *paxfulClient) SendTradeMessage(ctx context.Context, tradeHash, text string) (*DeliveryResult, error) {
	if tradeHash == "" {
		return nil, fmt.Errorf("paxful: trade_hash is required")
	}
	form := url.Values{"trade_hash": {tradeHash}, "message": {text}}
	data, err := c.post(ctx, "/trade-chat/post", form)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("paxful: decode chat post response: %w", err)
	}
	return &DeliveryResult{Success: payload.Success, Message: payload.Message}, nil
}

type paxfulChatMessage struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type paxfulChatAttachment struct {
	ID       string `json:"id"`
	FullURL  string `json:"full_url"`
	MimeType string `json:"mime_type"`
}

func (c *paxfulClient) GetTradeChat(ctx context.Context, tradeHash string) (*TradeChat, error) {
	if tradeHash == "" {
		return nil, fmt.Errorf("paxful: trade_hash is required")
	}
	data, err := c.post(ctx, "/trade-chat/get", url.Values{"trade_hash": {tradeHash}})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Messages    []paxfulChatMessage    `json:"messages"`
		Attachments []paxfulChatAttachment `json:"attachments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("paxful: decode chat: %w", err)
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
