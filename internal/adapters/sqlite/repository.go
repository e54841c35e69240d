// Package sqlite implements the ledger repositories on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"dexpilot/internal/domain"
	"dexpilot/internal/ports"
)

// Repository implements ports.OrderRepository, ports.PendingTradeRepository,
// ports.ConfigRepository, ports.PositionRepository and ports.ReceiptRepository
// using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/dexpilot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the monitor loop and the
	// detector cycle.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite ledger ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		pair TEXT NOT NULL,
		token_in TEXT NOT NULL DEFAULT '',
		token_out TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		side TEXT NOT NULL,
		trigger_price REAL NOT NULL,
		amount REAL NOT NULL,
		condition TEXT NOT NULL DEFAULT '',
		execution_method TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL DEFAULT '',
		slippage_bps INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		transaction_hash TEXT NOT NULL DEFAULT '',
		filled_price REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS pending_trades (
		id TEXT PRIMARY KEY,
		master_wallet TEXT NOT NULL,
		master_tx_hash TEXT NOT NULL,
		token_in TEXT NOT NULL,
		token_out TEXT NOT NULL,
		suggested_amount_in REAL NOT NULL,
		config_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		UNIQUE(owner_id, master_tx_hash)
	);

	CREATE TABLE IF NOT EXISTS configs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		master_wallet TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		token_whitelist TEXT NOT NULL DEFAULT '',
		token_blacklist TEXT NOT NULL DEFAULT '',
		sizing_mode TEXT NOT NULL,
		fixed_position_size REAL NOT NULL DEFAULT 0,
		proportional_percentage REAL NOT NULL DEFAULT 0,
		max_position_size REAL NOT NULL DEFAULT 0,
		allocated_capital REAL NOT NULL DEFAULT 0,
		max_daily_trades INTEGER NOT NULL DEFAULT 0,
		max_daily_loss REAL NOT NULL DEFAULT 0,
		max_slippage_bps INTEGER NOT NULL DEFAULT 0,
		max_price_impact_pct REAL NOT NULL DEFAULT 0,
		auto_execute INTEGER NOT NULL DEFAULT 0,
		total_copied_trades INTEGER NOT NULL DEFAULT 0,
		successful_trades INTEGER NOT NULL DEFAULT 0,
		failed_trades INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		config_id TEXT NOT NULL DEFAULT '',
		pending_trade_id TEXT NOT NULL DEFAULT '',
		pair TEXT NOT NULL DEFAULT '',
		token_in TEXT NOT NULL,
		token_out TEXT NOT NULL,
		amount_in REAL NOT NULL,
		amount_out REAL NOT NULL DEFAULT 0,
		entry_price REAL NOT NULL DEFAULT 0,
		exit_price REAL NOT NULL DEFAULT 0,
		exit_amount REAL NOT NULL DEFAULT 0,
		pnl REAL NOT NULL DEFAULT 0,
		pnl_percentage REAL NOT NULL DEFAULT 0,
		stop_loss_price REAL NOT NULL DEFAULT 0,
		stop_loss_triggered INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		transaction_hash TEXT NOT NULL DEFAULT '',
		close_transaction_hash TEXT NOT NULL DEFAULT '',
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		reconciled INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_orders_owner_status ON orders (owner_id, status);
	CREATE INDEX IF NOT EXISTS idx_orders_status_kind ON orders (status, kind);
	CREATE INDEX IF NOT EXISTS idx_pending_trades_status ON pending_trades (status);
	CREATE INDEX IF NOT EXISTS idx_configs_active ON configs (active);
	CREATE INDEX IF NOT EXISTS idx_positions_config_opened ON positions (config_id, opened_at);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
	CREATE INDEX IF NOT EXISTS idx_receipts_reconciled ON receipts (reconciled);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// checkVersionedUpdate interprets the result of an optimistic update: zero
// rows affected means either the row is gone or someone else won the version
// race.
func (r *Repository) checkVersionedUpdate(ctx context.Context, result sql.Result, table, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for %s %s: %w", table, id, err)
	}
	if rows > 0 {
		return nil
	}
	var exists int
	probe := fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table)
	if err := r.db.QueryRowContext(ctx, probe, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", table, id, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to probe %s %s: %w", table, id, err)
	}
	return fmt.Errorf("%s %s has a newer version: %w", table, id, ports.ErrAlreadyProcessed)
}

// isUniqueViolation reports whether err is a unique or primary key constraint
// failure.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// --- OrderRepository ---

func (r *Repository) CreateOrder(ctx context.Context, o *domain.ConditionalOrder) error {
	const query = `
	INSERT INTO orders (id, pair, token_in, token_out, kind, side, trigger_price, amount,
	                    condition, execution_method, owner_id, wallet_address, slippage_bps,
	                    status, error_message, transaction_hash, filled_price, created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

	_, err := r.db.ExecContext(ctx, query,
		o.ID, o.Pair, o.TokenIn, o.TokenOut, o.Kind, o.Side, o.TriggerPrice, o.Amount,
		o.Condition, o.ExecutionMethod, o.OwnerID, o.WalletAddress, o.SlippageBps,
		o.Status, o.ErrorMessage, o.TransactionHash, o.FilledPrice, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s already exists: %w", o.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	o.Version = 1
	r.logger.Debug(ctx, "Order created", map[string]interface{}{"orderID": o.ID, "kind": string(o.Kind)})
	return nil
}

func (r *Repository) UpdateOrder(ctx context.Context, o *domain.ConditionalOrder) error {
	const query = `
	UPDATE orders
	SET pair = ?, token_in = ?, token_out = ?, kind = ?, side = ?, trigger_price = ?, amount = ?,
	    condition = ?, execution_method = ?, wallet_address = ?, slippage_bps = ?,
	    status = ?, error_message = ?, transaction_hash = ?, filled_price = ?, updated_at = ?,
	    version = version + 1
	WHERE id = ? AND version = ?`

	result, err := r.db.ExecContext(ctx, query,
		o.Pair, o.TokenIn, o.TokenOut, o.Kind, o.Side, o.TriggerPrice, o.Amount,
		o.Condition, o.ExecutionMethod, o.WalletAddress, o.SlippageBps,
		o.Status, o.ErrorMessage, o.TransactionHash, o.FilledPrice, o.UpdatedAt,
		o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", o.ID, err)
	}
	if err := r.checkVersionedUpdate(ctx, result, "orders", o.ID); err != nil {
		return err
	}
	o.Version++
	r.logger.Debug(ctx, "Order updated", map[string]interface{}{"orderID": o.ID, "status": string(o.Status)})
	return nil
}

const orderColumns = `id, pair, token_in, token_out, kind, side, trigger_price, amount,
       condition, execution_method, owner_id, wallet_address, slippage_bps,
       status, error_message, transaction_hash, filled_price, created_at, updated_at, version`

func (r *Repository) FindOrderByID(ctx context.Context, id string) (*domain.ConditionalOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order %s: %w", id, err)
	}
	return o, nil
}

func (r *Repository) FindPendingOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.ConditionalOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = ? AND status = ? ORDER BY created_at DESC`
	return r.queryOrders(ctx, query, ownerID, domain.OrderPending)
}

func (r *Repository) FindArmableOrders(ctx context.Context) ([]*domain.ConditionalOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = ? AND kind IN (?, ?)`
	return r.queryOrders(ctx, query, domain.OrderPending, domain.KindStopLoss, domain.KindTakeProfit)
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.ConditionalOrder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.ConditionalOrder, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// --- PendingTradeRepository ---

func (r *Repository) CreatePendingTradeIfAbsent(ctx context.Context, t *domain.PendingCopyTrade) (bool, error) {
	const query = `
	INSERT OR IGNORE INTO pending_trades (id, master_wallet, master_tx_hash, token_in, token_out,
	                                      suggested_amount_in, config_id, owner_id, status,
	                                      error_message, created_at, expires_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

	result, err := r.db.ExecContext(ctx, query,
		t.ID, t.MasterWallet, t.MasterTxHash, t.TokenIn, t.TokenOut,
		t.SuggestedAmountIn, t.ConfigID, t.OwnerID, t.Status,
		t.ErrorMessage, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert pending trade for master tx %s: %w", t.MasterTxHash, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for pending trade %s: %w", t.ID, err)
	}
	if rows == 0 {
		return false, nil // same owner already staged this master tx
	}
	t.Version = 1
	r.logger.Debug(ctx, "Pending trade staged", map[string]interface{}{"tradeID": t.ID, "masterTx": t.MasterTxHash})
	return true, nil
}

func (r *Repository) UpdatePendingTrade(ctx context.Context, t *domain.PendingCopyTrade) error {
	const query = `
	UPDATE pending_trades
	SET status = ?, error_message = ?, suggested_amount_in = ?, expires_at = ?,
	    version = version + 1
	WHERE id = ? AND version = ?`

	result, err := r.db.ExecContext(ctx, query,
		t.Status, t.ErrorMessage, t.SuggestedAmountIn, t.ExpiresAt,
		t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("failed to update pending trade %s: %w", t.ID, err)
	}
	if err := r.checkVersionedUpdate(ctx, result, "pending_trades", t.ID); err != nil {
		return err
	}
	t.Version++
	r.logger.Debug(ctx, "Pending trade updated", map[string]interface{}{"tradeID": t.ID, "status": string(t.Status)})
	return nil
}

const pendingTradeColumns = `id, master_wallet, master_tx_hash, token_in, token_out,
       suggested_amount_in, config_id, owner_id, status, error_message, created_at, expires_at, version`

func (r *Repository) FindPendingTradeByID(ctx context.Context, id string) (*domain.PendingCopyTrade, error) {
	query := `SELECT ` + pendingTradeColumns + ` FROM pending_trades WHERE id = ?`
	t, err := scanPendingTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query pending trade %s: %w", id, err)
	}
	return t, nil
}

func (r *Repository) FindPendingTrades(ctx context.Context) ([]*domain.PendingCopyTrade, error) {
	query := `SELECT ` + pendingTradeColumns + ` FROM pending_trades WHERE status = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, domain.TradePending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.PendingCopyTrade, 0)
	for rows.Next() {
		t, err := scanPendingTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending trade rows: %w", err)
	}
	return trades, nil
}

// --- ConfigRepository ---

func (r *Repository) CreateConfig(ctx context.Context, c *domain.CopyTradingConfig) error {
	const query = `
	INSERT INTO configs (id, owner_id, master_wallet, wallet_address, active,
	                     token_whitelist, token_blacklist, sizing_mode,
	                     fixed_position_size, proportional_percentage, max_position_size, allocated_capital,
	                     max_daily_trades, max_daily_loss, max_slippage_bps, max_price_impact_pct,
	                     auto_execute, total_copied_trades, successful_trades, failed_trades,
	                     created_at, updated_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.MasterWallet, c.WalletAddress, c.Active,
		joinTokens(c.TokenWhitelist), joinTokens(c.TokenBlacklist), c.SizingMode,
		c.FixedPositionSize, c.ProportionalPercentage, c.MaxPositionSize, c.AllocatedCapital,
		c.MaxDailyTrades, c.MaxDailyLoss, c.MaxSlippageBps, c.MaxPriceImpactPct,
		c.AutoExecute, c.TotalCopiedTrades, c.SuccessfulTrades, c.FailedTrades,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("config %s already exists: %w", c.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert config %s: %w", c.ID, err)
	}
	c.Version = 1
	r.logger.Debug(ctx, "Config created", map[string]interface{}{"configID": c.ID, "masterWallet": c.MasterWallet})
	return nil
}

func (r *Repository) UpdateConfig(ctx context.Context, c *domain.CopyTradingConfig) error {
	const query = `
	UPDATE configs
	SET master_wallet = ?, wallet_address = ?, active = ?,
	    token_whitelist = ?, token_blacklist = ?, sizing_mode = ?,
	    fixed_position_size = ?, proportional_percentage = ?, max_position_size = ?, allocated_capital = ?,
	    max_daily_trades = ?, max_daily_loss = ?, max_slippage_bps = ?, max_price_impact_pct = ?,
	    auto_execute = ?, total_copied_trades = ?, successful_trades = ?, failed_trades = ?,
	    updated_at = ?, version = version + 1
	WHERE id = ? AND version = ?`

	result, err := r.db.ExecContext(ctx, query,
		c.MasterWallet, c.WalletAddress, c.Active,
		joinTokens(c.TokenWhitelist), joinTokens(c.TokenBlacklist), c.SizingMode,
		c.FixedPositionSize, c.ProportionalPercentage, c.MaxPositionSize, c.AllocatedCapital,
		c.MaxDailyTrades, c.MaxDailyLoss, c.MaxSlippageBps, c.MaxPriceImpactPct,
		c.AutoExecute, c.TotalCopiedTrades, c.SuccessfulTrades, c.FailedTrades,
		c.UpdatedAt, c.ID, c.Version)
	if err != nil {
		return fmt.Errorf("failed to update config %s: %w", c.ID, err)
	}
	if err := r.checkVersionedUpdate(ctx, result, "configs", c.ID); err != nil {
		return err
	}
	c.Version++
	return nil
}

const configColumns = `id, owner_id, master_wallet, wallet_address, active,
       token_whitelist, token_blacklist, sizing_mode,
       fixed_position_size, proportional_percentage, max_position_size, allocated_capital,
       max_daily_trades, max_daily_loss, max_slippage_bps, max_price_impact_pct,
       auto_execute, total_copied_trades, successful_trades, failed_trades,
       created_at, updated_at, version`

func (r *Repository) FindConfigByID(ctx context.Context, id string) (*domain.CopyTradingConfig, error) {
	query := `SELECT ` + configColumns + ` FROM configs WHERE id = ?`
	c, err := scanConfig(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query config %s: %w", id, err)
	}
	return c, nil
}

func (r *Repository) FindActiveConfigs(ctx context.Context) ([]*domain.CopyTradingConfig, error) {
	query := `SELECT ` + configColumns + ` FROM configs WHERE active = 1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active configs: %w", err)
	}
	defer rows.Close()

	configs := make([]*domain.CopyTradingConfig, 0)
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		configs = append(configs, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating config rows: %w", err)
	}
	return configs, nil
}

// --- PositionRepository ---

func (r *Repository) CreatePosition(ctx context.Context, p *domain.Position) error {
	const query = `
	INSERT INTO positions (id, owner_id, config_id, pending_trade_id, pair, token_in, token_out,
	                       amount_in, amount_out, entry_price, exit_price, exit_amount,
	                       pnl, pnl_percentage, stop_loss_price, stop_loss_triggered,
	                       status, transaction_hash, close_transaction_hash, opened_at, closed_at, version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.OwnerID, p.ConfigID, p.PendingTradeID, p.Pair, p.TokenIn, p.TokenOut,
		p.AmountIn, p.AmountOut, p.EntryPrice, p.ExitPrice, p.ExitAmount,
		p.PNL, p.PNLPercentage, p.StopLossPrice, p.StopLossTriggered,
		p.Status, p.TransactionHash, p.CloseTransactionHash, p.OpenedAt, nullableTime(p.ClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("position %s already exists: %w", p.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert position %s: %w", p.ID, err)
	}
	p.Version = 1
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": p.ID, "tokenOut": p.TokenOut})
	return nil
}

func (r *Repository) UpdatePosition(ctx context.Context, p *domain.Position) error {
	const query = `
	UPDATE positions
	SET amount_out = ?, entry_price = ?, exit_price = ?, exit_amount = ?,
	    pnl = ?, pnl_percentage = ?, stop_loss_price = ?, stop_loss_triggered = ?,
	    status = ?, transaction_hash = ?, close_transaction_hash = ?, closed_at = ?,
	    version = version + 1
	WHERE id = ? AND version = ?`

	result, err := r.db.ExecContext(ctx, query,
		p.AmountOut, p.EntryPrice, p.ExitPrice, p.ExitAmount,
		p.PNL, p.PNLPercentage, p.StopLossPrice, p.StopLossTriggered,
		p.Status, p.TransactionHash, p.CloseTransactionHash, nullableTime(p.ClosedAt),
		p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", p.ID, err)
	}
	if err := r.checkVersionedUpdate(ctx, result, "positions", p.ID); err != nil {
		return err
	}
	p.Version++
	r.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": p.ID, "status": string(p.Status)})
	return nil
}

const positionColumns = `id, owner_id, config_id, pending_trade_id, pair, token_in, token_out,
       amount_in, amount_out, entry_price, exit_price, exit_amount,
       pnl, pnl_percentage, stop_loss_price, stop_loss_triggered,
       status, transaction_hash, close_transaction_hash, opened_at, closed_at, version`

func (r *Repository) FindPositionByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = ?`
	p, err := scanPosition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position %s: %w", id, err)
	}
	return p, nil
}

func (r *Repository) FindOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = ? ORDER BY opened_at`
	rows, err := r.db.QueryContext(ctx, query, domain.PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

func (r *Repository) CountPositionsSince(ctx context.Context, configID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM positions WHERE config_id = ? AND opened_at >= ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, configID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count positions for config %s: %w", configID, err)
	}
	return count, nil
}

func (r *Repository) SumRealizedPNLSince(ctx context.Context, configID string, since time.Time) (float64, error) {
	const query = `
	SELECT COALESCE(SUM(pnl), 0) FROM positions
	WHERE config_id = ? AND status = ? AND closed_at IS NOT NULL AND closed_at >= ?`
	var sum float64
	if err := r.db.QueryRowContext(ctx, query, configID, domain.PositionClosed, since).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl for config %s: %w", configID, err)
	}
	return sum, nil
}

// --- ReceiptRepository ---

func (r *Repository) CreateReceipt(ctx context.Context, rec *domain.SwapReceipt) error {
	const query = `
	INSERT INTO receipts (id, entity_kind, entity_id, tx_hash, reconciled, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.EntityKind, rec.EntityID, rec.TxHash, rec.Reconciled, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("receipt %s already exists: %w", rec.ID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert receipt %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Repository) FindUnreconciledReceipts(ctx context.Context) ([]*domain.SwapReceipt, error) {
	const query = `
	SELECT id, entity_kind, entity_id, tx_hash, reconciled, created_at
	FROM receipts WHERE reconciled = 0 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreconciled receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]*domain.SwapReceipt, 0)
	for rows.Next() {
		rec := &domain.SwapReceipt{}
		if err := rows.Scan(&rec.ID, &rec.EntityKind, &rec.EntityID, &rec.TxHash, &rec.Reconciled, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt rows: %w", err)
	}
	return receipts, nil
}

func (r *Repository) MarkReceiptReconciled(ctx context.Context, id string) error {
	const query = `UPDATE receipts SET reconciled = 1 WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark receipt %s reconciled: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for receipt %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("receipt %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// --- Helper scan functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*domain.ConditionalOrder, error) {
	o := &domain.ConditionalOrder{}
	var kind, side, condition, method, status string
	err := s.Scan(
		&o.ID, &o.Pair, &o.TokenIn, &o.TokenOut, &kind, &side, &o.TriggerPrice, &o.Amount,
		&condition, &method, &o.OwnerID, &o.WalletAddress, &o.SlippageBps,
		&status, &o.ErrorMessage, &o.TransactionHash, &o.FilledPrice, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return nil, err
	}
	o.Kind = domain.OrderKind(kind)
	o.Side = domain.OrderSide(side)
	o.Condition = domain.TriggerCondition(condition)
	o.ExecutionMethod = domain.ExecutionMethod(method)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanPendingTrade(s scanner) (*domain.PendingCopyTrade, error) {
	t := &domain.PendingCopyTrade{}
	var status string
	err := s.Scan(
		&t.ID, &t.MasterWallet, &t.MasterTxHash, &t.TokenIn, &t.TokenOut,
		&t.SuggestedAmountIn, &t.ConfigID, &t.OwnerID, &status, &t.ErrorMessage,
		&t.CreatedAt, &t.ExpiresAt, &t.Version)
	if err != nil {
		return nil, err
	}
	t.Status = domain.PendingTradeStatus(status)
	return t, nil
}

func scanConfig(s scanner) (*domain.CopyTradingConfig, error) {
	c := &domain.CopyTradingConfig{}
	var whitelist, blacklist, mode string
	err := s.Scan(
		&c.ID, &c.OwnerID, &c.MasterWallet, &c.WalletAddress, &c.Active,
		&whitelist, &blacklist, &mode,
		&c.FixedPositionSize, &c.ProportionalPercentage, &c.MaxPositionSize, &c.AllocatedCapital,
		&c.MaxDailyTrades, &c.MaxDailyLoss, &c.MaxSlippageBps, &c.MaxPriceImpactPct,
		&c.AutoExecute, &c.TotalCopiedTrades, &c.SuccessfulTrades, &c.FailedTrades,
		&c.CreatedAt, &c.UpdatedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.TokenWhitelist = splitTokens(whitelist)
	c.TokenBlacklist = splitTokens(blacklist)
	c.SizingMode = domain.SizingMode(mode)
	return c, nil
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var status string
	var closedAt sql.NullTime
	err := s.Scan(
		&p.ID, &p.OwnerID, &p.ConfigID, &p.PendingTradeID, &p.Pair, &p.TokenIn, &p.TokenOut,
		&p.AmountIn, &p.AmountOut, &p.EntryPrice, &p.ExitPrice, &p.ExitAmount,
		&p.PNL, &p.PNLPercentage, &p.StopLossPrice, &p.StopLossTriggered,
		&status, &p.TransactionHash, &p.CloseTransactionHash, &p.OpenedAt, &closedAt, &p.Version)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func joinTokens(tokens []string) string {
	return strings.Join(tokens, ",")
}

func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
