package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"peerdesk/internal/models"
	"peerdesk/internal/platform"
	"peerdesk/internal/repository"
)

var (
	ErrTradeNotFound   = errors.New("trade not found")
	ErrAccountNotFound = errors.New("account not found")
)

const ActionTradePaid = "TRADE_PAID"

// TradeOpsService proxies per-trade actions to the platform through the
// account that owns the trade.
type TradeOpsService struct {
	Store          repository.Repository
	Logger         *zap.Logger
	PlatformConfig platform.Config

	// NewAdapter overrides the platform client factory for tests.
	NewAdapter func(models.Account) (platform.Adapter, error)
}

func (s *TradeOpsService) adapterForTrade(ctx context.Context, tradeHash string) (platform.Adapter, *models.Trade, error) {
	trade, err := s.Store.GetTradeByHash(ctx, tradeHash)
	if err != nil {
		return nil, nil, err
	}
	if trade == nil {
		return nil, nil, ErrTradeNotFound
	}
	account, err := s.Store.GetAccountByID(ctx, trade.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, ErrAccountNotFound
	}
	var adapter platform.Adapter
	if s.NewAdapter != nil {
		adapter, err = s.NewAdapter(*account)
	} else {
		creds := platform.Credentials{APIKey: account.APIKey, APISecret: account.APISecret}
		adapter, err = platform.New(account.Platform, creds, s.PlatformConfig)
	}
	if err != nil {
		return nil, nil, err
	}
	return adapter, trade, nil
}

// MarkPaid reports the fiat side as paid to the platform and records the
// action on the trade's activity log.
func (s *TradeOpsService) MarkPaid(ctx context.Context, tradeHash, performedBy string) (bool, error) {
	adapter, trade, err := s.adapterForTrade(ctx, tradeHash)
	if err != nil {
		return false, err
	}
	ok, err := adapter.MarkTradeAsPaid(ctx, tradeHash)
	if err != nil || !ok {
		return ok, err
	}

	err = s.Store.InTx(ctx, func(tx *gorm.DB) error {
		current, err := s.Store.FindTradeByHashTx(ctx, tx, tradeHash)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrTradeNotFound
		}
		entries, err := models.DecodeActivityLog(current.ActivityLog)
		if err != nil {
			return err
		}
		entries = append(entries, models.ActivityEntry{
			Action:      ActionTradePaid,
			PerformedBy: performedBy,
			PerformedAt: time.Now().UTC(),
			Details:     map[string]any{"platform": current.Platform},
		})
		current.ActivityLog, err = models.EncodeActivityLog(entries)
		if err != nil {
			return err
		}
		return s.Store.UpdateTradeTx(ctx, tx, current)
	})
	if err != nil {
		// The platform accepted the payment report; the local log write is
		// retried on the next sync, so surface success with a warning.
		if s.Logger != nil {
			s.Logger.Warn("mark paid: activity log write failed",
				zap.String("trade_hash", trade.TradeHash),
				zap.Error(err))
		}
	}
	return true, nil
}

func (s *TradeOpsService) GetChat(ctx context.Context, tradeHash string) (*platform.TradeChat, error) {
	adapter, _, err := s.adapterForTrade(ctx, tradeHash)
	if err != nil {
		return nil, err
	}
	return adapter.GetTradeChat(ctx, tradeHash)
}

func (s *TradeOpsService) SendMessage(ctx context.Context, tradeHash, text string) (*platform.DeliveryResult, error) {
	adapter, _, err := s.adapterForTrade(ctx, tradeHash)
	if err != nil {
		return nil, err
	}
	return adapter.SendTradeMessage(ctx, tradeHash, text)
}
