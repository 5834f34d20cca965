package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"peerdesk/internal/models"
	"peerdesk/internal/repository"
)

type EscalationService struct {
	Store  repository.Repository
	Logger *zap.Logger
}

type EscalationInput struct {
	Complaint   string
	EscalatedBy string
}

// EnsureEscalated creates the escalation record for a trade if none exists
// yet. The bool reports whether this call created it. Losing a creation race
// is not an error: the winner's record is returned instead.
func (s *EscalationService) EnsureEscalated(ctx context.Context, trade *models.Trade, input EscalationInput) (*models.EscalatedTrade, bool, error) {
	if trade == nil || trade.ID == 0 {
		return nil, false, errors.New("escalation requires a stored trade")
	}

	var out *models.EscalatedTrade
	created := false
	err := s.Store.InTx(ctx, func(tx *gorm.DB) error {
		esc, didCreate, err := s.ensureTx(ctx, tx, trade, input)
		if err != nil {
			return err
		}
		out = esc
		created = didCreate
		return nil
	})
	if errors.Is(err, repository.ErrEscalationExists) {
		// Race loser: the insert aborted the transaction, so re-read the
		// winner's record in a fresh one.
		err = s.Store.InTx(ctx, func(tx *gorm.DB) error {
			esc, findErr := s.Store.FindEscalationByTradeIDTx(ctx, tx, trade.ID)
			if findErr != nil {
				return findErr
			}
			out = esc
			return nil
		})
		created = false
	}
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (s *EscalationService) ensureTx(ctx context.Context, tx *gorm.DB, trade *models.Trade, input EscalationInput) (*models.EscalatedTrade, bool, error) {
	existing, err := s.Store.FindEscalationByTradeIDTx(ctx, tx, trade.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	item := &models.EscalatedTrade{
		TradeID:         trade.ID,
		Platform:        trade.Platform,
		Status:          models.EscalationStatusPending,
		Complaint:       input.Complaint,
		Amount:          trade.Amount,
		AssignedPayerID: trade.AssignedPayerID,
		EscalatedBy:     input.EscalatedBy,
	}
	if err := s.Store.CreateEscalationTx(ctx, tx, item); err != nil {
		return nil, false, err
	}
	if s.Logger != nil {
		s.Logger.Info("trade escalated",
			zap.Uint64("trade_id", trade.ID),
			zap.String("trade_hash", trade.TradeHash),
			zap.String("escalated_by", input.EscalatedBy))
	}
	return item, true, nil
}
