package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"peerdesk/internal/models"
	"peerdesk/internal/platform"
	"peerdesk/internal/repository"
)

// reconcileBatchSize bounds how many trades are written concurrently. It has
// no transactional meaning; every trade commits on its own.
const reconcileBatchSize = 5

// tradeStatusDisputeOpen is the platform status string that marks a trade as
// disputed on both supported platforms.
const tradeStatusDisputeOpen = "Dispute open"

type IngestService struct {
	Store          repository.Repository
	Logger         *zap.Logger
	PlatformConfig platform.Config
	AutoEscalate   bool
	Escalations    *EscalationService

	// NewAdapter overrides the platform client factory. Tests point this at
	// fakes; nil means the production factory.
	NewAdapter func(models.Account) (platform.Adapter, error)
}

type IngestStats struct {
	Accounts int `json:"accounts"`
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

func (s *IngestService) adapterFor(account models.Account) (platform.Adapter, error) {
	if s.NewAdapter != nil {
		return s.NewAdapter(account)
	}
	creds := platform.Credentials{APIKey: account.APIKey, APISecret: account.APISecret}
	return platform.New(account.Platform, creds, s.PlatformConfig)
}

// RunCycle pulls every active account's open trades and reconciles them into
// storage. It never returns an error: each failure is contained to its
// account or trade and counted in the stats.
func (s *IngestService) RunCycle(ctx context.Context) IngestStats {
	stats := IngestStats{}

	accounts, err := s.Store.ListActiveAccounts(ctx)
	if err != nil {
		s.logger().Error("ingest: list accounts failed", zap.Error(err))
		stats.Errors++
		return stats
	}
	stats.Accounts = len(accounts)
	if len(accounts) == 0 {
		return stats
	}

	type accountTrades struct {
		account models.Account
		raws    []platform.RawTrade
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []accountTrades
	)
	for _, account := range accounts {
		wg.Add(1)
		go func(account models.Account) {
			defer wg.Done()
			adapter, err := s.adapterFor(account)
			if err != nil {
				s.logger().Error("ingest: adapter init failed",
					zap.Uint64("account_id", account.ID),
					zap.String("platform", account.Platform),
					zap.Error(err))
				mu.Lock()
				stats.Errors++
				mu.Unlock()
				return
			}
			raws, err := adapter.ListActiveTrades(ctx)
			if err != nil {
				s.logger().Warn("ingest: trade fetch failed",
					zap.Uint64("account_id", account.ID),
					zap.String("platform", account.Platform),
					zap.Error(err))
				mu.Lock()
				stats.Errors++
				mu.Unlock()
				return
			}
			mu.Lock()
			results = append(results, accountTrades{account: account, raws: raws})
			mu.Unlock()
		}(account)
	}
	wg.Wait()

	reference := s.referenceSellingPrice(ctx)

	now := time.Now().UTC()
	var trades []models.Trade
	for _, r := range results {
		for _, raw := range r.raws {
			if strings.TrimSpace(raw.TradeHash) == "" {
				stats.Errors++
				continue
			}
			trade := NormalizeTrade(raw, r.account, now)
			trade.Flagged = ShouldFlag(trade.DollarRate, reference)
			trades = append(trades, trade)
		}
	}
	stats.Fetched = len(trades)

	s.reconcile(ctx, trades, &stats)

	s.logger().Info("ingest cycle done",
		zap.Int("accounts", stats.Accounts),
		zap.Int("fetched", stats.Fetched),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("errors", stats.Errors))
	return stats
}

func (s *IngestService) referenceSellingPrice(ctx context.Context) decimal.Decimal {
	rates, err := s.Store.LatestRates(ctx)
	if err != nil {
		s.logger().Warn("ingest: load rates failed", zap.Error(err))
		return decimal.Zero
	}
	if rates == nil {
		return decimal.Zero
	}
	return rates.SellingPrice
}

func (s *IngestService) reconcile(ctx context.Context, trades []models.Trade, stats *IngestStats) {
	var mu sync.Mutex
	for start := 0; start < len(trades); start += reconcileBatchSize {
		end := start + reconcileBatchSize
		if end > len(trades) {
			end = len(trades)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(incoming models.Trade) {
				defer wg.Done()
				inserted, stored, err := s.reconcileOne(ctx, incoming)
				mu.Lock()
				if err != nil {
					stats.Errors++
				} else if inserted {
					stats.Inserted++
				} else {
					stats.Updated++
				}
				mu.Unlock()
				if err != nil {
					s.logger().Warn("ingest: reconcile failed",
						zap.String("trade_hash", incoming.TradeHash),
						zap.Error(err))
					return
				}
				s.maybeEscalate(ctx, stored)
			}(trades[i])
		}
		wg.Wait()
	}
}

// reconcileOne upserts one normalized trade in its own transaction. A failure
// rolls back that trade only.
func (s *IngestService) reconcileOne(ctx context.Context, incoming models.Trade) (bool, *models.Trade, error) {
	var (
		inserted bool
		stored   *models.Trade
	)
	err := s.Store.InTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.Store.FindTradeByHashTx(ctx, tx, incoming.TradeHash)
		if err != nil {
			return err
		}
		if existing == nil {
			item := incoming
			if err := s.Store.CreateTradeTx(ctx, tx, &item); err != nil {
				return err
			}
			inserted = true
			stored = &item
			return nil
		}
		merged, err := mergeTrade(existing, incoming)
		if err != nil {
			return err
		}
		if err := s.Store.UpdateTradeTx(ctx, tx, merged); err != nil {
			return err
		}
		stored = merged
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return inserted, stored, nil
}

// mergeTrade folds a fresh platform snapshot into the stored row. Identity,
// lifecycle status and assignment fields stay untouched; the account link is
// always refreshed and activity logs concatenate old then new.
func mergeTrade(existing *models.Trade, incoming models.Trade) (*models.Trade, error) {
	oldLog, err := models.DecodeActivityLog(existing.ActivityLog)
	if err != nil {
		return nil, err
	}
	newLog, err := models.DecodeActivityLog(incoming.ActivityLog)
	if err != nil {
		return nil, err
	}
	combined, err := models.EncodeActivityLog(append(oldLog, newLog...))
	if err != nil {
		return nil, err
	}

	merged := *existing
	merged.AccountID = incoming.AccountID
	merged.Platform = incoming.Platform
	merged.TradeStatus = incoming.TradeStatus
	merged.Amount = incoming.Amount
	merged.CryptoAmountRequested = incoming.CryptoAmountRequested
	merged.CryptoAmountTotal = incoming.CryptoAmountTotal
	merged.FeeCryptoAmount = incoming.FeeCryptoAmount
	merged.FeePercentage = incoming.FeePercentage
	merged.Margin = incoming.Margin
	merged.SourceID = incoming.SourceID
	merged.ResponderUsername = incoming.ResponderUsername
	merged.OwnerUsername = incoming.OwnerUsername
	merged.PaymentMethod = incoming.PaymentMethod
	merged.LocationISO = incoming.LocationISO
	merged.FiatCurrency = incoming.FiatCurrency
	merged.CryptoCurrency = incoming.CryptoCurrency
	merged.OfferHash = incoming.OfferHash
	merged.IsActiveOffer = incoming.IsActiveOffer
	merged.BtcRate = incoming.BtcRate
	merged.DollarRate = incoming.DollarRate
	merged.BtcAmount = incoming.BtcAmount
	merged.Flagged = incoming.Flagged
	merged.PlatformMetadata = incoming.PlatformMetadata
	merged.ActivityLog = combined
	return &merged, nil
}

// maybeEscalate runs after a trade committed. Escalation writes its own
// transaction so a race with another escalator never poisons the upsert.
func (s *IngestService) maybeEscalate(ctx context.Context, stored *models.Trade) {
	if !s.AutoEscalate || s.Escalations == nil || stored == nil {
		return
	}
	if stored.TradeStatus != tradeStatusDisputeOpen {
		return
	}
	_, _, err := s.Escalations.EnsureEscalated(ctx, stored, EscalationInput{
		Complaint:   "Platform reported an open dispute",
		EscalatedBy: "system",
	})
	if err != nil {
		s.logger().Warn("ingest: auto escalation failed",
			zap.String("trade_hash", stored.TradeHash),
			zap.Error(err))
	}
}

func (s *IngestService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
