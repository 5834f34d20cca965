package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"peerdesk/internal/models"
	"peerdesk/internal/platform"
)

type stubAdapter struct {
	tag     string
	trades  []platform.RawTrade
	listErr error
}

func (a *stubAdapter) Platform() string                       { return a.tag }
func (a *stubAdapter) Initialize(ctx context.Context) error   { return nil }
func (a *stubAdapter) ListActiveTrades(ctx context.Context) ([]platform.RawTrade, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.trades, nil
}
func (a *stubAdapter) GetTradeDetails(ctx context.Context, tradeHash string) (*platform.RawTrade, error) {
	return nil, nil
}
func (a *stubAdapter) MarkTradeAsPaid(ctx context.Context, tradeHash string) (bool, error) {
	return true, nil
}
func (a *stubAdapter) SendTradeMessage(ctx context.Context, tradeHash, text string) (*platform.DeliveryResult, error) {
	return &platform.DeliveryResult{Success: true}, nil
}
func (a *stubAdapter) GetTradeChat(ctx context.Context, tradeHash string) (*platform.TradeChat, error) {
	return &platform.TradeChat{}, nil
}

func newIngest(repo *stubRepo, adapters map[uint64]platform.Adapter) *IngestService {
	return &IngestService{
		Store: repo,
		NewAdapter: func(account models.Account) (platform.Adapter, error) {
			adapter, ok := adapters[account.ID]
			if !ok {
				return nil, errors.New("no adapter for account")
			}
			return adapter, nil
		},
	}
}

func rawTrade(hash string) platform.RawTrade {
	return platform.RawTrade{
		TradeHash:            hash,
		TradeStatus:          "Active funded",
		Amount:               "670.00",
		CryptoAmountTotal:    100000000,
		FiatPricePerCrypto:   "67000",
		CryptoCurrentRateUSD: "60000",
	}
}

func TestIngest_InsertThenUpdateInPlace(t *testing.T) {
	repo := &stubRepo{
		accounts: []models.Account{{ID: 1, Username: "desk", Platform: models.PlatformPaxful, Status: models.AccountStatusActive}},
		rates:    []models.Rates{{SellingPrice: decimal.NewFromInt(65000)}},
	}
	adapter := &stubAdapter{tag: models.PlatformPaxful, trades: []platform.RawTrade{rawTrade("h1")}}
	svc := newIngest(repo, map[uint64]platform.Adapter{1: adapter})

	stats := svc.RunCycle(context.Background())
	if stats.Inserted != 1 || stats.Updated != 0 || stats.Errors != 0 {
		t.Fatalf("first run stats=%+v", stats)
	}
	trade, _ := repo.GetTradeByHash(context.Background(), "h1")
	if trade == nil {
		t.Fatalf("trade not stored")
	}
	if trade.BtcAmount != "1" {
		t.Fatalf("btc amount=%q want 1", trade.BtcAmount)
	}
	firstID := trade.ID

	paid := rawTrade("h1")
	paid.TradeStatus = "Paid"
	adapter.trades = []platform.RawTrade{paid}

	stats = svc.RunCycle(context.Background())
	if stats.Inserted != 0 || stats.Updated != 1 || stats.Errors != 0 {
		t.Fatalf("second run stats=%+v", stats)
	}
	if len(repo.trades) != 1 {
		t.Fatalf("trades=%d want 1 (natural-key upsert)", len(repo.trades))
	}
	trade, _ = repo.GetTradeByHash(context.Background(), "h1")
	if trade.ID != firstID {
		t.Fatalf("id changed on re-sync: %d -> %d", firstID, trade.ID)
	}
	if trade.TradeStatus != "Paid" {
		t.Fatalf("platform status must refresh in place, got %q", trade.TradeStatus)
	}
	entries, err := models.DecodeActivityLog(trade.ActivityLog)
	if err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("activity entries=%d want 2 (old then new)", len(entries))
	}
}

func TestIngest_FlaggedAgainstReference(t *testing.T) {
	repo := &stubRepo{
		accounts: []models.Account{{ID: 1, Platform: models.PlatformPaxful, Status: models.AccountStatusActive}},
		rates:    []models.Rates{{SellingPrice: decimal.NewFromInt(65000)}},
	}
	high := rawTrade("high")
	high.CryptoCurrentRateUSD = "70000"
	low := rawTrade("low")
	low.CryptoCurrentRateUSD = "60000"
	svc := newIngest(repo, map[uint64]platform.Adapter{
		1: &stubAdapter{tag: models.PlatformPaxful, trades: []platform.RawTrade{high, low}},
	})

	svc.RunCycle(context.Background())

	flagged, _ := repo.GetTradeByHash(context.Background(), "high")
	if flagged == nil || !flagged.Flagged {
		t.Fatalf("rate above reference must be flagged")
	}
	ok, _ := repo.GetTradeByHash(context.Background(), "low")
	if ok == nil || ok.Flagged {
		t.Fatalf("rate below reference must not be flagged")
	}
}

func TestIngest_AccountFailureIsolated(t *testing.T) {
	repo := &stubRepo{
		accounts: []models.Account{
			{ID: 1, Platform: models.PlatformPaxful, Status: models.AccountStatusActive},
			{ID: 2, Platform: models.PlatformNoones, Status: models.AccountStatusActive},
		},
	}
	svc := newIngest(repo, map[uint64]platform.Adapter{
		1: &stubAdapter{tag: models.PlatformPaxful, listErr: errors.New("rate limited")},
		2: &stubAdapter{tag: models.PlatformNoones, trades: []platform.RawTrade{rawTrade("h2")}},
	})

	stats := svc.RunCycle(context.Background())
	if stats.Errors != 1 {
		t.Fatalf("errors=%d want 1", stats.Errors)
	}
	if stats.Inserted != 1 {
		t.Fatalf("inserted=%d want 1 (healthy account unaffected)", stats.Inserted)
	}
}

func TestIngest_UnknownPlatformIsPerAccountFailure(t *testing.T) {
	repo := &stubRepo{
		accounts: []models.Account{
			{ID: 1, Platform: "bitfinex", Status: models.AccountStatusActive},
			{ID: 2, Platform: models.PlatformPaxful, Status: models.AccountStatusActive},
		},
	}
	svc := &IngestService{Store: repo}
	svc.NewAdapter = func(account models.Account) (platform.Adapter, error) {
		if account.Platform == models.PlatformPaxful {
			return &stubAdapter{tag: models.PlatformPaxful, trades: []platform.RawTrade{rawTrade("h3")}}, nil
		}
		return platform.New(account.Platform, platform.Credentials{}, platform.Config{})
	}

	stats := svc.RunCycle(context.Background())
	if stats.Errors != 1 || stats.Inserted != 1 {
		t.Fatalf("stats=%+v want 1 error, 1 insert", stats)
	}
}

func TestIngest_PerTradeFailureIsolated(t *testing.T) {
	repo := &stubRepo{
		accounts:            []models.Account{{ID: 1, Platform: models.PlatformPaxful, Status: models.AccountStatusActive}},
		failCreateTradeHash: "bad",
	}
	svc := newIngest(repo, map[uint64]platform.Adapter{
		1: &stubAdapter{tag: models.PlatformPaxful, trades: []platform.RawTrade{rawTrade("bad"), rawTrade("good")}},
	})

	stats := svc.RunCycle(context.Background())
	if stats.Errors != 1 {
		t.Fatalf("errors=%d want 1", stats.Errors)
	}
	if stats.Inserted != 1 {
		t.Fatalf("inserted=%d want 1", stats.Inserted)
	}
	if trade, _ := repo.GetTradeByHash(context.Background(), "good"); trade == nil {
		t.Fatalf("healthy trade must commit despite sibling failure")
	}
}

func TestIngest_RefreshesAccountKeepsAssignment(t *testing.T) {
	payerID := uint64(42)
	repo := &stubRepo{
		accounts: []models.Account{{ID: 2, Platform: models.PlatformPaxful, Status: models.AccountStatusActive}},
	}
	seeded := NormalizeTrade(rawTrade("h1"), models.Account{ID: 1, Platform: models.PlatformPaxful}, nowForTest())
	seeded.ID = 1
	seeded.Status = models.TradeStatusAssigned
	seeded.AssignedPayerID = &payerID
	repo.trades = []models.Trade{seeded}
	repo.nextTradeID = 1

	svc := newIngest(repo, map[uint64]platform.Adapter{
		2: &stubAdapter{tag: models.PlatformPaxful, trades: []platform.RawTrade{rawTrade("h1")}},
	})
	stats := svc.RunCycle(context.Background())
	if stats.Updated != 1 {
		t.Fatalf("stats=%+v want 1 update", stats)
	}

	trade, _ := repo.GetTradeByHash(context.Background(), "h1")
	if trade.AccountID != 2 {
		t.Fatalf("account id=%d want 2 (always refreshed)", trade.AccountID)
	}
	if trade.Status != models.TradeStatusAssigned {
		t.Fatalf("status=%q; ingestion must not touch lifecycle state", trade.Status)
	}
	if trade.AssignedPayerID == nil || *trade.AssignedPayerID != payerID {
		t.Fatalf("assignment lost on re-sync")
	}
}

func TestIngest_AutoEscalateOffByDefault(t *testing.T) {
	repo := &stubRepo{
		accounts: []models.Account{{ID: 1, Platform: models.PlatformPaxful, Status: models.AccountStatusActive}},
	}
	disputed := rawTrade("d1")
	disputed.TradeStatus = tradeStatusDisputeOpen
	svc := newIngest(repo, map[uint64]platform.Adapter{
		1: &stubAdapter{tag: models.PlatformPaxful, trades: []platform.RawTrade{disputed}},
	})
	svc.Escalations = &EscalationService{Store: repo}

	svc.RunCycle(context.Background())
	if len(repo.escalations) != 0 {
		t.Fatalf("escalations=%d; auto escalation must stay off unless enabled", len(repo.escalations))
	}
}

func TestIngest_AutoEscalateDisputedOnce(t *testing.T) {
	repo := &stubRepo{
		accounts: []models.Account{{ID: 1, Platform: models.PlatformPaxful, Status: models.AccountStatusActive}},
	}
	disputed := rawTrade("d1")
	disputed.TradeStatus = tradeStatusDisputeOpen
	svc := newIngest(repo, map[uint64]platform.Adapter{
		1: &stubAdapter{tag: models.PlatformPaxful, trades: []platform.RawTrade{disputed}},
	})
	svc.AutoEscalate = true
	svc.Escalations = &EscalationService{Store: repo}

	svc.RunCycle(context.Background())
	svc.RunCycle(context.Background())

	if len(repo.escalations) != 1 {
		t.Fatalf("escalations=%d want exactly 1", len(repo.escalations))
	}
	if repo.escalations[0].EscalatedBy != "system" {
		t.Fatalf("escalated_by=%q want system", repo.escalations[0].EscalatedBy)
	}
}
