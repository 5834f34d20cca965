package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"peerdesk/internal/models"
	"peerdesk/internal/repository"
)

func nowForTest() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

// stubRepo is a test-only in-memory implementation of repository.Repository.
// InTx snapshots the mutable state and restores it when the callback errors,
// which is enough transaction semantics for the pipeline tests.
type stubRepo struct {
	mu sync.Mutex

	accounts    []models.Account
	payers      []models.User
	rates       []models.Rates
	trades      []models.Trade
	escalations []models.EscalatedTrade

	notifications []models.Notification
	activityLogs  []models.ActivityLog

	nextTradeID uint64
	nextEscID   uint64

	lockCalls int

	failCreateTradeHash string
	failNotifications   bool
	failAssignTrade     bool
	failCountAssigned   bool
}

type stubSnapshot struct {
	trades        []models.Trade
	escalations   []models.EscalatedTrade
	notifications []models.Notification
	activityLogs  []models.ActivityLog
	rates         []models.Rates
	nextTradeID   uint64
	nextEscID     uint64
}

func (s *stubRepo) snapshot() stubSnapshot {
	return stubSnapshot{
		trades:        append([]models.Trade(nil), s.trades...),
		escalations:   append([]models.EscalatedTrade(nil), s.escalations...),
		notifications: append([]models.Notification(nil), s.notifications...),
		activityLogs:  append([]models.ActivityLog(nil), s.activityLogs...),
		rates:         append([]models.Rates(nil), s.rates...),
		nextTradeID:   s.nextTradeID,
		nextEscID:     s.nextEscID,
	}
}

func (s *stubRepo) restore(snap stubSnapshot) {
	s.trades = snap.trades
	s.escalations = snap.escalations
	s.notifications = snap.notifications
	s.activityLogs = snap.activityLogs
	s.rates = snap.rates
	s.nextTradeID = snap.nextTradeID
	s.nextEscID = snap.nextEscID
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *stubRepo) AcquireAssignmentLockTx(ctx context.Context, tx *gorm.DB, key int64) error {
	s.lockCalls++
	return nil
}

func (s *stubRepo) ListAccounts(ctx context.Context, params repository.ListAccountsParams) ([]models.Account, error) {
	return append([]models.Account(nil), s.accounts...), nil
}

func (s *stubRepo) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	var out []models.Account
	for _, a := range s.accounts {
		if a.Status == models.AccountStatusActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubRepo) GetAccountByID(ctx context.Context, id uint64) (*models.Account, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			copy := a
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) LatestRates(ctx context.Context) (*models.Rates, error) {
	if len(s.rates) == 0 {
		return nil, nil
	}
	copy := s.rates[len(s.rates)-1]
	return &copy, nil
}

func (s *stubRepo) InsertRates(ctx context.Context, item *models.Rates) error {
	s.rates = append(s.rates, *item)
	return nil
}

func (s *stubRepo) FindTradeByHashTx(ctx context.Context, tx *gorm.DB, tradeHash string) (*models.Trade, error) {
	for i := range s.trades {
		if s.trades[i].TradeHash == tradeHash {
			copy := s.trades[i]
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) CreateTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if s.failCreateTradeHash != "" && item.TradeHash == s.failCreateTradeHash {
		return errors.New("stub: create trade failed")
	}
	s.nextTradeID++
	item.ID = s.nextTradeID
	s.trades = append(s.trades, *item)
	return nil
}

// UpdateTradeTx mirrors the store's column list: lifecycle status and
// assignment fields never change here.
func (s *stubRepo) UpdateTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	for i := range s.trades {
		if s.trades[i].ID == item.ID {
			t := &s.trades[i]
			t.AccountID = item.AccountID
			t.Platform = item.Platform
			t.TradeStatus = item.TradeStatus
			t.Amount = item.Amount
			t.CryptoAmountRequested = item.CryptoAmountRequested
			t.CryptoAmountTotal = item.CryptoAmountTotal
			t.FeeCryptoAmount = item.FeeCryptoAmount
			t.FeePercentage = item.FeePercentage
			t.Margin = item.Margin
			t.SourceID = item.SourceID
			t.ResponderUsername = item.ResponderUsername
			t.OwnerUsername = item.OwnerUsername
			t.PaymentMethod = item.PaymentMethod
			t.LocationISO = item.LocationISO
			t.FiatCurrency = item.FiatCurrency
			t.CryptoCurrency = item.CryptoCurrency
			t.OfferHash = item.OfferHash
			t.IsActiveOffer = item.IsActiveOffer
			t.BtcRate = item.BtcRate
			t.DollarRate = item.DollarRate
			t.BtcAmount = item.BtcAmount
			t.Flagged = item.Flagged
			t.PlatformMetadata = item.PlatformMetadata
			t.ActivityLog = item.ActivityLog
			return nil
		}
	}
	return nil
}

func (s *stubRepo) AssignTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if s.failAssignTrade {
		return errors.New("stub: assign trade failed")
	}
	for i := range s.trades {
		if s.trades[i].ID == item.ID {
			s.trades[i].AssignedPayerID = item.AssignedPayerID
			s.trades[i].AssignedAt = item.AssignedAt
			s.trades[i].Status = item.Status
			s.trades[i].ActivityLog = item.ActivityLog
			return nil
		}
	}
	return nil
}

func (s *stubRepo) GetTradeByHash(ctx context.Context, tradeHash string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FindTradeByHashTx(ctx, nil, tradeHash)
}

func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	return append([]models.Trade(nil), s.trades...), nil
}

func (s *stubRepo) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	return int64(len(s.trades)), nil
}

func (s *stubRepo) ListPendingTradesTx(ctx context.Context, tx *gorm.DB) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range s.trades {
		if t.Status == models.TradeStatusPending {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *stubRepo) ListAvailablePayersTx(ctx context.Context, tx *gorm.DB) ([]repository.PayerCandidate, error) {
	var out []repository.PayerCandidate
	for _, u := range s.payers {
		if u.Role != models.RolePayer || u.Status != models.UserStatusActive {
			continue
		}
		cand := repository.PayerCandidate{User: u}
		for _, t := range s.trades {
			if t.AssignedPayerID != nil && *t.AssignedPayerID == u.ID && t.AssignedAt != nil {
				if cand.LastAssignedAt == nil || t.AssignedAt.After(*cand.LastAssignedAt) {
					at := *t.AssignedAt
					cand.LastAssignedAt = &at
				}
			}
		}
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastAssignedAt, out[j].LastAssignedAt
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

func (s *stubRepo) CountAssignedTradesTx(ctx context.Context, tx *gorm.DB, payerID uint64) (int64, error) {
	if s.failCountAssigned {
		return 0, errors.New("count assigned trades failed")
	}
	var count int64
	for _, t := range s.trades {
		if t.AssignedPayerID != nil && *t.AssignedPayerID == payerID && t.Status == models.TradeStatusAssigned {
			count++
		}
	}
	return count, nil
}

func (s *stubRepo) ListPayersWithLoad(ctx context.Context) ([]repository.PayerCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ListAvailablePayersTx(ctx, nil)
}

func (s *stubRepo) CreateEscalationTx(ctx context.Context, tx *gorm.DB, item *models.EscalatedTrade) error {
	for _, e := range s.escalations {
		if e.TradeID == item.TradeID {
			return repository.ErrEscalationExists
		}
	}
	s.nextEscID++
	item.ID = s.nextEscID
	s.escalations = append(s.escalations, *item)
	return nil
}

func (s *stubRepo) FindEscalationByTradeIDTx(ctx context.Context, tx *gorm.DB, tradeID uint64) (*models.EscalatedTrade, error) {
	for i := range s.escalations {
		if s.escalations[i].TradeID == tradeID {
			copy := s.escalations[i]
			return &copy, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListEscalations(ctx context.Context, params repository.ListEscalationsParams) ([]models.EscalatedTrade, error) {
	return append([]models.EscalatedTrade(nil), s.escalations...), nil
}

func (s *stubRepo) CountEscalations(ctx context.Context, params repository.ListEscalationsParams) (int64, error) {
	return int64(len(s.escalations)), nil
}

func (s *stubRepo) CreateNotificationTx(ctx context.Context, tx *gorm.DB, item *models.Notification) error {
	if s.failNotifications {
		return errors.New("stub: create notification failed")
	}
	s.notifications = append(s.notifications, *item)
	return nil
}

func (s *stubRepo) CreateActivityLogTx(ctx context.Context, tx *gorm.DB, item *models.ActivityLog) error {
	s.activityLogs = append(s.activityLogs, *item)
	return nil
}
