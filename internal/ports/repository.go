package ports

import (
	"context"
	"time"

	"dexpilot/internal/domain"
)

// Update methods on all repositories use per-row optimistic concurrency: the
// write only succeeds if the in-memory Version matches the stored row, and
// bumps both on success. A stale version yields ErrAlreadyProcessed so that
// two execution attempts against the same row cannot both win.

// OrderRepository stores conditional orders.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.ConditionalOrder) error
	UpdateOrder(ctx context.Context, o *domain.ConditionalOrder) error
	// FindOrderByID returns nil, nil if not found.
	FindOrderByID(ctx context.Context, id string) (*domain.ConditionalOrder, error)
	FindPendingOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.ConditionalOrder, error)
	// FindArmableOrders returns persisted pending stop-loss/take-profit
	// orders that must be re-registered on startup.
	FindArmableOrders(ctx context.Context) ([]*domain.ConditionalOrder, error)
}

// PendingTradeRepository stores staged copy trades.
type PendingTradeRepository interface {
	// CreatePendingTradeIfAbsent atomically inserts the trade unless a row
	// with the same (OwnerID, MasterTxHash) already exists. Returns whether
	// a row was created.
	CreatePendingTradeIfAbsent(ctx context.Context, t *domain.PendingCopyTrade) (bool, error)
	UpdatePendingTrade(ctx context.Context, t *domain.PendingCopyTrade) error
	// FindPendingTradeByID returns nil, nil if not found.
	FindPendingTradeByID(ctx context.Context, id string) (*domain.PendingCopyTrade, error)
	// FindPendingTrades returns all trades still in status pending.
	FindPendingTrades(ctx context.Context) ([]*domain.PendingCopyTrade, error)
}

// ConfigRepository stores per-follower copy-trading configurations.
type ConfigRepository interface {
	CreateConfig(ctx context.Context, c *domain.CopyTradingConfig) error
	UpdateConfig(ctx context.Context, c *domain.CopyTradingConfig) error
	// FindConfigByID returns nil, nil if not found.
	FindConfigByID(ctx context.Context, id string) (*domain.CopyTradingConfig, error)
	FindActiveConfigs(ctx context.Context) ([]*domain.CopyTradingConfig, error)
}

// PositionRepository stores copy-trading positions.
type PositionRepository interface {
	CreatePosition(ctx context.Context, p *domain.Position) error
	UpdatePosition(ctx context.Context, p *domain.Position) error
	// FindPositionByID returns nil, nil if not found.
	FindPositionByID(ctx context.Context, id string) (*domain.Position, error)
	FindOpenPositions(ctx context.Context) ([]*domain.Position, error)
	// CountPositionsSince counts positions opened for a config at or after
	// the given instant. Callers pass a UTC day boundary for daily limits.
	CountPositionsSince(ctx context.Context, configID string, since time.Time) (int, error)
	// SumRealizedPNLSince sums realized P&L of positions closed for a config
	// at or after the given instant.
	SumRealizedPNLSince(ctx context.Context, configID string, since time.Time) (float64, error)
}

// ReceiptRepository stores swap receipts for the reconciliation sweep.
type ReceiptRepository interface {
	CreateReceipt(ctx context.Context, r *domain.SwapReceipt) error
	FindUnreconciledReceipts(ctx context.Context) ([]*domain.SwapReceipt, error)
	MarkReceiptReconciled(ctx context.Context, id string) error
}
