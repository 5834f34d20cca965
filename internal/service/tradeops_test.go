package service

import (
	"context"
	"errors"
	"testing"

	"peerdesk/internal/models"
	"peerdesk/internal/platform"
)

func TestTradeOps_MarkPaidAppendsLog(t *testing.T) {
	repo := &stubRepo{
		accounts: []models.Account{{ID: 1, Platform: models.PlatformPaxful, Status: models.AccountStatusActive}},
	}
	seeded := NormalizeTrade(rawTrade("h1"), models.Account{ID: 1, Platform: models.PlatformPaxful}, nowForTest())
	seeded.ID = 1
	repo.trades = []models.Trade{seeded}
	repo.nextTradeID = 1

	svc := &TradeOpsService{
		Store: repo,
		NewAdapter: func(account models.Account) (platform.Adapter, error) {
			return &stubAdapter{tag: account.Platform}, nil
		},
	}

	ok, err := svc.MarkPaid(context.Background(), "h1", "operator")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !ok {
		t.Fatalf("want success")
	}

	trade, _ := repo.GetTradeByHash(context.Background(), "h1")
	entries, err := models.DecodeActivityLog(trade.ActivityLog)
	if err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Action != ActionTradePaid || last.PerformedBy != "operator" {
		t.Fatalf("last entry=%+v", last)
	}
}

func TestTradeOps_UnknownTrade(t *testing.T) {
	svc := &TradeOpsService{Store: &stubRepo{}}
	_, err := svc.MarkPaid(context.Background(), "missing", "operator")
	if !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("err=%v want ErrTradeNotFound", err)
	}
	if _, err := svc.GetChat(context.Background(), "missing"); !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("err=%v want ErrTradeNotFound", err)
	}
}
