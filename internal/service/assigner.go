package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"peerdesk/internal/models"
	"peerdesk/internal/repository"
)

type AssignService struct {
	Store   repository.Repository
	Logger  *zap.Logger
	LockKey int64
}

type AssignResult struct {
	Pending  int `json:"pending"`
	Assigned int `json:"assigned"`
	Payers   int `json:"payers"`
}

// RunCycle matches pending trades to available payers, oldest trade first.
// The whole run is one transaction: any failure rolls back every claim made
// in the run and the error propagates to the trigger.
func (s *AssignService) RunCycle(ctx context.Context) (AssignResult, error) {
	var result AssignResult
	err := s.Store.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Store.AcquireAssignmentLockTx(ctx, tx, s.LockKey); err != nil {
			return fmt.Errorf("acquire assignment lock: %w", err)
		}

		pending, err := s.Store.ListPendingTradesTx(ctx, tx)
		if err != nil {
			return err
		}
		payers, err := s.Store.ListAvailablePayersTx(ctx, tx)
		if err != nil {
			return err
		}
		result.Pending = len(pending)
		result.Payers = len(payers)
		if len(pending) == 0 || len(payers) == 0 {
			return nil
		}

		now := time.Now().UTC()
		claimed := make(map[uint64]bool, len(payers))
		for i := range pending {
			payer, err := s.nextPayer(ctx, tx, payers, claimed)
			if err != nil {
				return err
			}
			if payer == nil {
				// Every payer is busy; later trades wait for the next run
				// so ordering stays first-come first-served.
				break
			}
			if err := s.claim(ctx, tx, &pending[i], payer, now); err != nil {
				return err
			}
			claimed[payer.ID] = true
			result.Assigned++
		}
		return nil
	})
	if err != nil {
		s.logger().Error("assignment cycle failed", zap.Error(err))
		return AssignResult{}, err
	}
	s.logger().Info("assignment cycle done",
		zap.Int("pending", result.Pending),
		zap.Int("payers", result.Payers),
		zap.Int("assigned", result.Assigned))
	return result, nil
}

// nextPayer returns the least-recently-assigned payer that is not claimed in
// this run and holds no assigned trade. The count re-check runs inside the
// transaction right before the claim, so a payer that picked up work since
// the candidate list was built is skipped, not misassigned. A storage error
// is not a busy payer: it aborts the run, and the caller's rollback undoes
// any claims already made.
func (s *AssignService) nextPayer(ctx context.Context, tx *gorm.DB, payers []repository.PayerCandidate, claimed map[uint64]bool) (*repository.PayerCandidate, error) {
	for i := range payers {
		if claimed[payers[i].ID] {
			continue
		}
		count, err := s.Store.CountAssignedTradesTx(ctx, tx, payers[i].ID)
		if err != nil {
			return nil, fmt.Errorf("payer %d load check: %w", payers[i].ID, err)
		}
		if count > 0 {
			claimed[payers[i].ID] = true
			continue
		}
		return &payers[i], nil
	}
	return nil, nil
}

func (s *AssignService) claim(ctx context.Context, tx *gorm.DB, trade *models.Trade, payer *repository.PayerCandidate, now time.Time) error {
	entries, err := models.DecodeActivityLog(trade.ActivityLog)
	if err != nil {
		return err
	}
	entries = append(entries, models.ActivityEntry{
		Action:      ActionTradeAssigned,
		PerformedBy: "system",
		PerformedAt: now,
		Details: map[string]any{
			"payer_id":       payer.ID,
			"payer_username": payer.Username,
		},
	})
	log, err := models.EncodeActivityLog(entries)
	if err != nil {
		return err
	}

	payerID := payer.ID
	assignedAt := now
	trade.AssignedPayerID = &payerID
	trade.AssignedAt = &assignedAt
	trade.Status = models.TradeStatusAssigned
	trade.ActivityLog = log
	if err := s.Store.AssignTradeTx(ctx, tx, trade); err != nil {
		return err
	}

	accountID := trade.AccountID
	notification := &models.Notification{
		UserID:           payer.ID,
		Title:            "New trade assigned",
		Description:      fmt.Sprintf("Trade %s on %s is waiting for payment", trade.TradeHash, trade.Platform),
		Priority:         models.PriorityHigh,
		RelatedAccountID: &accountID,
	}
	if err := s.Store.CreateNotificationTx(ctx, tx, notification); err != nil {
		return err
	}

	details, err := json.Marshal(map[string]any{
		"trade_hash": trade.TradeHash,
		"platform":   trade.Platform,
	})
	if err != nil {
		return err
	}
	userID := payer.ID
	audit := &models.ActivityLog{
		UserID:            &userID,
		Activity:          ActionTradeAssigned,
		Description:       fmt.Sprintf("Trade %s assigned to %s", trade.TradeHash, payer.Username),
		Details:           datatypes.JSON(details),
		IsSystemGenerated: true,
	}
	return s.Store.CreateActivityLogTx(ctx, tx, audit)
}

func (s *AssignService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
