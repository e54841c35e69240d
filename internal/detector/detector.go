// Package detector watches master wallets for DEX trades and stages them as
// pending copy trades for the owners following those wallets.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dexpilot/internal/domain"
	"dexpilot/internal/execution"
	"dexpilot/internal/ports"
	"dexpilot/internal/sizing"
)

const (
	// DefaultTxWindow is how many recent transactions are fetched per master
	// wallet each scan.
	DefaultTxWindow = 20
	// DefaultFreshness discards master trades older than this; stale trades
	// would copy a price that no longer exists.
	DefaultFreshness = 5 * time.Minute
	// DefaultPendingTTL is how long a staged trade waits for approval.
	DefaultPendingTTL = 5 * time.Minute
	// DefaultAutoExecCutoff skips auto-execution when a trade is this close
	// to expiry; the swap could outlive the approval window.
	DefaultAutoExecCutoff = time.Minute
)

// TradeExecutor executes an approved pending trade. Satisfied by the
// execution pipeline.
type TradeExecutor interface {
	ExecutePendingTrade(ctx context.Context, trade *domain.PendingCopyTrade, cfg *domain.CopyTradingConfig) (*execution.Result, error)
}

// Config holds the detector's injected collaborators.
type Config struct {
	Logger    ports.Logger
	Feed      ports.WalletFeed
	Trades    ports.PendingTradeRepository
	Configs   ports.ConfigRepository
	Positions ports.PositionRepository
	Executor  TradeExecutor

	TxWindow       int
	Freshness      time.Duration
	PendingTTL     time.Duration
	AutoExecCutoff time.Duration
	Now            func() time.Time
}

// Detector stages and auto-executes copy trades. One master wallet failing
// to fetch never blocks the others.
type Detector struct {
	logger    ports.Logger
	feed      ports.WalletFeed
	trades    ports.PendingTradeRepository
	configs   ports.ConfigRepository
	positions ports.PositionRepository
	executor  TradeExecutor

	txWindow       int
	freshness      time.Duration
	pendingTTL     time.Duration
	autoExecCutoff time.Duration
	now            func() time.Time
}

// New creates a copy-trade detector.
func New(cfg Config) (*Detector, error) {
	if cfg.Logger == nil || cfg.Feed == nil || cfg.Trades == nil ||
		cfg.Configs == nil || cfg.Positions == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("missing required dependencies for detector")
	}
	d := &Detector{
		logger:         cfg.Logger,
		feed:           cfg.Feed,
		trades:         cfg.Trades,
		configs:        cfg.Configs,
		positions:      cfg.Positions,
		executor:       cfg.Executor,
		txWindow:       cfg.TxWindow,
		freshness:      cfg.Freshness,
		pendingTTL:     cfg.PendingTTL,
		autoExecCutoff: cfg.AutoExecCutoff,
		now:            cfg.Now,
	}
	if d.txWindow <= 0 {
		d.txWindow = DefaultTxWindow
	}
	if d.freshness <= 0 {
		d.freshness = DefaultFreshness
	}
	if d.pendingTTL <= 0 {
		d.pendingTTL = DefaultPendingTTL
	}
	if d.autoExecCutoff <= 0 {
		d.autoExecCutoff = DefaultAutoExecCutoff
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// Scan fetches recent activity for every followed master wallet and stages
// fresh DEX trades as pending copy trades. Duplicate master transactions are
// dropped by the ledger's uniqueness guarantee, so overlapping scan windows
// are harmless.
func (d *Detector) Scan(ctx context.Context) error {
	cfgs, err := d.configs.FindActiveConfigs(ctx)
	if err != nil {
		return fmt.Errorf("loading active configs: %w", err)
	}
	if len(cfgs) == 0 {
		return nil
	}

	followers := make(map[string][]*domain.CopyTradingConfig)
	for _, c := range cfgs {
		followers[c.MasterWallet] = append(followers[c.MasterWallet], c)
	}

	for wallet, wcfgs := range followers {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan interrupted: %w: %w", ports.ErrContextCanceled, err)
		}
		txs, err := d.feed.FetchRecentTransactions(ctx, wallet, d.txWindow)
		if err != nil {
			d.logger.Warn(ctx, "failed to fetch wallet activity", map[string]interface{}{
				"wallet": wallet, "error": err.Error(),
			})
			continue
		}
		for _, trade := range d.feed.ParseDexTrades(wallet, txs) {
			if d.now().Sub(trade.Timestamp) > d.freshness {
				continue
			}
			for _, cfg := range wcfgs {
				if err := d.stage(ctx, cfg, trade); err != nil {
					d.logger.Error(ctx, err, "failed to stage copy trade", map[string]interface{}{
						"configID": cfg.ID, "masterTx": trade.TxHash,
					})
				}
			}
		}
	}
	return nil
}

func (d *Detector) stage(ctx context.Context, cfg *domain.CopyTradingConfig, trade *domain.DexTrade) error {
	if !cfg.TokenAllowed(trade.TokenIn, trade.TokenOut) {
		d.logger.Debug(ctx, "master trade filtered by token list", map[string]interface{}{
			"configID": cfg.ID, "tokenIn": trade.TokenIn, "tokenOut": trade.TokenOut,
		})
		return nil
	}

	ok, reason, err := d.withinDailyLimits(ctx, cfg)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Info(ctx, "daily limit reached, skipping master trade", map[string]interface{}{
			"configID": cfg.ID, "reason": reason, "masterTx": trade.TxHash,
		})
		return nil
	}

	amount := sizing.Suggest(trade.AmountIn, cfg)
	if amount <= 0 {
		return nil
	}

	now := d.now()
	pending := &domain.PendingCopyTrade{
		ID:                uuid.NewString(),
		MasterWallet:      trade.Trader,
		MasterTxHash:      trade.TxHash,
		TokenIn:           trade.TokenIn,
		TokenOut:          trade.TokenOut,
		SuggestedAmountIn: amount,
		ConfigID:          cfg.ID,
		OwnerID:           cfg.OwnerID,
		Status:            domain.TradePending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(d.pendingTTL),
	}
	created, err := d.trades.CreatePendingTradeIfAbsent(ctx, pending)
	if err != nil {
		return fmt.Errorf("staging trade for master tx %s: %w", trade.TxHash, err)
	}
	if !created {
		return nil // already staged by an earlier scan
	}

	d.logger.Info(ctx, "copy trade staged", map[string]interface{}{
		"tradeID":  pending.ID,
		"configID": cfg.ID,
		"masterTx": trade.TxHash,
		"amountIn": amount,
	})
	return nil
}

// withinDailyLimits checks the config's trade-count and realized-loss limits
// for the current UTC day. A zero limit means unlimited.
func (d *Detector) withinDailyLimits(ctx context.Context, cfg *domain.CopyTradingConfig) (bool, string, error) {
	now := d.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if cfg.MaxDailyTrades > 0 {
		count, err := d.positions.CountPositionsSince(ctx, cfg.ID, dayStart)
		if err != nil {
			return false, "", fmt.Errorf("counting today's positions: %w", err)
		}
		if count >= cfg.MaxDailyTrades {
			return false, fmt.Sprintf("trade count %d at limit %d", count, cfg.MaxDailyTrades), nil
		}
	}
	if cfg.MaxDailyLoss > 0 {
		pnl, err := d.positions.SumRealizedPNLSince(ctx, cfg.ID, dayStart)
		if err != nil {
			return false, "", fmt.Errorf("summing today's realized pnl: %w", err)
		}
		if pnl <= -cfg.MaxDailyLoss {
			return false, fmt.Sprintf("realized loss %.2f at limit %.2f", -pnl, cfg.MaxDailyLoss), nil
		}
	}
	return true, "", nil
}

// AutoExecute expires stale pending trades and executes the remaining ones
// whose configs opted in to auto-execution. Each trade is handled in
// isolation.
func (d *Detector) AutoExecute(ctx context.Context) error {
	pendings, err := d.trades.FindPendingTrades(ctx)
	if err != nil {
		return fmt.Errorf("loading pending trades: %w", err)
	}

	for _, trade := range pendings {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("auto-execution interrupted: %w: %w", ports.ErrContextCanceled, err)
		}
		now := d.now()

		if trade.Expired(now) {
			trade.Status = domain.TradeExpired
			if err := d.trades.UpdatePendingTrade(ctx, trade); err != nil {
				d.logger.Error(ctx, err, "failed to expire pending trade", map[string]interface{}{"tradeID": trade.ID})
			}
			continue
		}

		cfg, err := d.configs.FindConfigByID(ctx, trade.ConfigID)
		if err != nil {
			d.logger.Error(ctx, err, "failed to load config for pending trade", map[string]interface{}{"tradeID": trade.ID})
			continue
		}
		if cfg == nil || !cfg.Active {
			continue
		}
		if !cfg.AutoExecute {
			continue // waits for manual approval until it expires
		}
		if trade.ExpiresAt.Sub(now) < d.autoExecCutoff {
			d.logger.Debug(ctx, "pending trade too close to expiry for auto-execution", map[string]interface{}{
				"tradeID": trade.ID,
			})
			continue
		}

		if _, err := d.executor.ExecutePendingTrade(ctx, trade, cfg); err != nil {
			d.logger.Error(ctx, err, "auto-execution failed", map[string]interface{}{"tradeID": trade.ID})
		}
	}
	return nil
}
