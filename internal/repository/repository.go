package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"peerdesk/internal/models"
)

// ErrEscalationExists is returned when a trade already has an escalation
// record. The gorm store maps the unique-index violation on trade_id to this
// error so callers can treat concurrent escalation as idempotent.
var ErrEscalationExists = errors.New("escalation already exists for trade")

// Repository is the storage surface for the ingestion and assignment
// pipeline. Methods with a Tx suffix run inside a caller-provided
// transaction opened via InTx.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// AcquireAssignmentLockTx takes a transaction-scoped advisory lock so
	// only one assignment run is live at a time. Released at tx end.
	AcquireAssignmentLockTx(ctx context.Context, tx *gorm.DB, key int64) error

	// Accounts (provisioned externally; read-only here).
	ListAccounts(ctx context.Context, params ListAccountsParams) ([]models.Account, error)
	ListActiveAccounts(ctx context.Context) ([]models.Account, error)
	GetAccountByID(ctx context.Context, id uint64) (*models.Account, error)

	// Rates: append-only snapshots, reads take the newest row.
	LatestRates(ctx context.Context) (*models.Rates, error)
	InsertRates(ctx context.Context, item *models.Rates) error

	// Trades.
	FindTradeByHashTx(ctx context.Context, tx *gorm.DB, tradeHash string) (*models.Trade, error)
	CreateTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error
	UpdateTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error
	AssignTradeTx(ctx context.Context, tx *gorm.DB, item *models.Trade) error
	GetTradeByHash(ctx context.Context, tradeHash string) (*models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	CountTrades(ctx context.Context, params ListTradesParams) (int64, error)
	ListPendingTradesTx(ctx context.Context, tx *gorm.DB) ([]models.Trade, error)

	// Payers.
	ListAvailablePayersTx(ctx context.Context, tx *gorm.DB) ([]PayerCandidate, error)
	CountAssignedTradesTx(ctx context.Context, tx *gorm.DB, payerID uint64) (int64, error)
	ListPayersWithLoad(ctx context.Context) ([]PayerCandidate, error)

	// Escalations.
	CreateEscalationTx(ctx context.Context, tx *gorm.DB, item *models.EscalatedTrade) error
	FindEscalationByTradeIDTx(ctx context.Context, tx *gorm.DB, tradeID uint64) (*models.EscalatedTrade, error)
	ListEscalations(ctx context.Context, params ListEscalationsParams) ([]models.EscalatedTrade, error)
	CountEscalations(ctx context.Context, params ListEscalationsParams) (int64, error)

	// Assignment side effects, written in the same transaction as the claim.
	CreateNotificationTx(ctx context.Context, tx *gorm.DB, item *models.Notification) error
	CreateActivityLogTx(ctx context.Context, tx *gorm.DB, item *models.ActivityLog) error
}

// PayerCandidate is a payer annotated with the time of their most recent
// assignment, used for least-recently-assigned ordering and load display.
type PayerCandidate struct {
	models.User
	LastAssignedAt *time.Time
	AssignedCount  int64
}

type ListAccountsParams struct {
	Limit    int
	Offset   int
	Platform *string
	Status   *string
}

type ListTradesParams struct {
	Limit     int
	Offset    int
	Platform  *string
	Status    *string
	AccountID *uint64
	PayerID   *uint64
	Flagged   *bool
	OrderBy   string
	Asc       *bool
}

type ListEscalationsParams struct {
	Limit    int
	Offset   int
	Platform *string
	Status   *string
}
