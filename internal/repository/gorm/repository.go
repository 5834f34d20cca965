package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"peerdesk/internal/models"
	"peerdesk/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) AcquireAssignmentLockTx(ctx context.Context, tx *gorm.DB, key int64) error {
	if tx == nil {
		return nil
	}
	return tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", key).Error
}

// --- accounts ---------------------------------------------------------------

func (s *Store) ListAccounts(ctx context.Context, params repository.ListAccountsParams) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Account{})
	if params.Platform != nil && strings.TrimSpace(*params.Platform) != "" {
		query = query.Where("platform = ?", strings.TrimSpace(*params.Platform))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Account
	if err := query.Order("id asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveAccounts(ctx context.Context) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Account
	if err := s.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("status = ?", models.AccountStatusActive).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetAccountByID(ctx context.Context, id uint64) (*models.Account, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if id == 0 {
		return nil, nil
	}
	var item models.Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// --- rates -------------------------------------------------------------------

func (s *Store) LatestRates(ctx context.Context) (*models.Rates, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Rates
	err := s.db.WithContext(ctx).Order("created_at desc, id desc").First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertRates(ctx context.Context, item *models.Rates) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// --- trades ------------------------------------------------------------------

func (s *Store) FindTradeByHashTx(ctx context.Context, tx *gorm.DB, tradeHash string) (*models.Trade, error) {
	if tx == nil || strings.TrimSpace(tradeHash) == "" {
		return nil, nil
	}
	var item models.Trade
	err := tx.WithContext(ctx).Where("trade_hash = ?", tradeHash).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) CreateTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

// tradeMutableColumns are the fields ingestion may overwrite on re-sync.
// Status and assignment fields are deliberately absent: only the assigner
// writes those.
var tradeMutableColumns = []string{
	"account_id",
	"platform",
	"trade_status",
	"amount",
	"crypto_amount_requested",
	"crypto_amount_total",
	"fee_crypto_amount",
	"fee_percentage",
	"margin",
	"source_id",
	"responder_username",
	"owner_username",
	"payment_method",
	"location_iso",
	"fiat_currency",
	"crypto_currency",
	"offer_hash",
	"is_active_offer",
	"btc_rate",
	"dollar_rate",
	"btc_amount",
	"flagged",
	"platform_metadata",
	"activity_log",
	"updated_at",
}

func (s *Store) UpdateTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if tx == nil || item == nil || item.ID == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", item.ID).
		Select(tradeMutableColumns).
		Updates(item).Error
}

func (s *Store) AssignTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error {
	if tx == nil || item == nil || item.ID == 0 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", item.ID).
		Select("assigned_payer_id", "assigned_at", "status", "activity_log", "updated_at").
		Updates(item).Error
}

func (s *Store) GetTradeByHash(ctx context.Context, tradeHash string) (*models.Trade, error) {
	if s == nil || s.db == nil || strings.TrimSpace(tradeHash) == "" {
		return nil, nil
	}
	var item models.Trade
	err := s.db.WithContext(ctx).Where("trade_hash = ?", tradeHash).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) applyTradeFilters(query *gorm.DB, params repository.ListTradesParams) *gorm.DB {
	if params.Platform != nil && strings.TrimSpace(*params.Platform) != "" {
		query = query.Where("platform = ?", strings.TrimSpace(*params.Platform))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.AccountID != nil && *params.AccountID != 0 {
		query = query.Where("account_id = ?", *params.AccountID)
	}
	if params.PayerID != nil && *params.PayerID != 0 {
		query = query.Where("assigned_payer_id = ?", *params.PayerID)
	}
	if params.Flagged != nil {
		query = query.Where("flagged = ?", *params.Flagged)
	}
	return query
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.applyTradeFilters(s.db.WithContext(ctx).Model(&models.Trade{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Trade
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountTrades(ctx context.Context, params repository.ListTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.applyTradeFilters(s.db.WithContext(ctx).Model(&models.Trade{}), params)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListPendingTradesTx(ctx context.Context, tx *gorm.DB) ([]models.Trade, error) {
	if tx == nil {
		return nil, nil
	}
	var items []models.Trade
	if err := tx.WithContext(ctx).
		Model(&models.Trade{}).
		Where("status = ?", models.TradeStatusPending).
		Order("created_at asc, id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- payers ------------------------------------------------------------------

const payerLoadSelect = "users.*, MAX(trades.assigned_at) AS last_assigned_at, " +
	"COUNT(trades.id) FILTER (WHERE trades.status = 'assigned') AS assigned_count"

func (s *Store) ListAvailablePayersTx(ctx context.Context, tx *gorm.DB) ([]repository.PayerCandidate, error) {
	if tx == nil {
		return nil, nil
	}
	var items []repository.PayerCandidate
	err := tx.WithContext(ctx).
		Table("users").
		Select(payerLoadSelect).
		Joins("LEFT JOIN trades ON trades.assigned_payer_id = users.id").
		Where("users.role = ?", models.RolePayer).
		Where("users.status = ?", models.UserStatusActive).
		Group("users.id").
		Order("last_assigned_at ASC NULLS FIRST, users.created_at ASC").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountAssignedTradesTx(ctx context.Context, tx *gorm.DB, payerID uint64) (int64, error) {
	if tx == nil || payerID == 0 {
		return 0, nil
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.Trade{}).
		Where("assigned_payer_id = ?", payerID).
		Where("status = ?", models.TradeStatusAssigned).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListPayersWithLoad(ctx context.Context) ([]repository.PayerCandidate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []repository.PayerCandidate
	err := s.db.WithContext(ctx).
		Table("users").
		Select(payerLoadSelect).
		Joins("LEFT JOIN trades ON trades.assigned_payer_id = users.id").
		Where("users.role = ?", models.RolePayer).
		Group("users.id").
		Order("users.id ASC").
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- escalations -------------------------------------------------------------

func (s *Store) CreateEscalationTx(ctx context.Context, tx *gorm.DB, item *models.EscalatedTrade) error {
	if tx == nil || item == nil {
		return nil
	}
	err := tx.WithContext(ctx).Create(item).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrEscalationExists
	}
	return err
}

func (s *Store) FindEscalationByTradeIDTx(ctx context.Context, tx *gorm.DB, tradeID uint64) (*models.EscalatedTrade, error) {
	if tx == nil || tradeID == 0 {
		return nil, nil
	}
	var item models.EscalatedTrade
	err := tx.WithContext(ctx).Where("trade_id = ?", tradeID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListEscalations(ctx context.Context, params repository.ListEscalationsParams) ([]models.EscalatedTrade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.EscalatedTrade{})
	if params.Platform != nil && strings.TrimSpace(*params.Platform) != "" {
		query = query.Where("platform = ?", strings.TrimSpace(*params.Platform))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.EscalatedTrade
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountEscalations(ctx context.Context, params repository.ListEscalationsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.EscalatedTrade{})
	if params.Platform != nil && strings.TrimSpace(*params.Platform) != "" {
		query = query.Where("platform = ?", strings.TrimSpace(*params.Platform))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// --- sinks -------------------------------------------------------------------

func (s *Store) CreateNotificationTx(ctx context.Context, tx *gorm.DB, item *models.Notification) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (s *Store) CreateActivityLogTx(ctx context.Context, tx *gorm.DB, item *models.ActivityLog) error {
	if tx == nil || item == nil {
		return nil
	}
	return tx.WithContext(ctx).Create(item).Error
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
