// Package app wires the engine's collaborators together and exposes its
// operations: placing and cancelling conditional orders, approving and
// rejecting copy trades, closing positions, and driving the periodic cycles.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"dexpilot/internal/detector"
	"dexpilot/internal/domain"
	"dexpilot/internal/execution"
	"dexpilot/internal/ports"
	"dexpilot/internal/registry"
)

// DefaultMonitorInterval is the monitor loop tick when none is configured.
const DefaultMonitorInterval = 3 * time.Second

// Config holds the engine's injected collaborators.
type Config struct {
	Logger    ports.Logger
	Registry  *registry.Registry
	Pipeline  *execution.Pipeline
	Detector  *detector.Detector
	Oracle    ports.PriceOracle
	Venue     ports.SwapVenue
	Orders    ports.OrderRepository
	Trades    ports.PendingTradeRepository
	Configs   ports.ConfigRepository
	Positions ports.PositionRepository
	Receipts  ports.ReceiptRepository

	MonitorInterval time.Duration
	Now             func() time.Time
}

// Engine is the conditional-execution and copy-trading engine. All state
// lives in the ledger and in the order registry; the engine itself holds no
// trading state.
type Engine struct {
	logger    ports.Logger
	registry  *registry.Registry
	pipeline  *execution.Pipeline
	detector  *detector.Detector
	oracle    ports.PriceOracle
	venue     ports.SwapVenue
	orders    ports.OrderRepository
	trades    ports.PendingTradeRepository
	configs   ports.ConfigRepository
	positions ports.PositionRepository
	receipts  ports.ReceiptRepository

	monitorInterval time.Duration
	now             func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewEngine creates the engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Logger == nil || cfg.Registry == nil || cfg.Pipeline == nil ||
		cfg.Detector == nil || cfg.Oracle == nil || cfg.Venue == nil ||
		cfg.Orders == nil || cfg.Trades == nil || cfg.Configs == nil ||
		cfg.Positions == nil || cfg.Receipts == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	interval := cfg.MonitorInterval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		logger:          cfg.Logger,
		registry:        cfg.Registry,
		pipeline:        cfg.Pipeline,
		detector:        cfg.Detector,
		oracle:          cfg.Oracle,
		venue:           cfg.Venue,
		orders:          cfg.Orders,
		trades:          cfg.Trades,
		configs:         cfg.Configs,
		positions:       cfg.Positions,
		receipts:        cfg.Receipts,
		monitorInterval: interval,
		now:             now,
	}, nil
}

// Start re-arms persisted stop-loss and take-profit orders and launches the
// monitor loop. Limit orders placed in a previous run stay dormant in the
// ledger until re-placed.
func (e *Engine) Start(ctx context.Context) error {
	armable, err := e.orders.FindArmableOrders(ctx)
	if err != nil {
		return fmt.Errorf("loading armable orders: %w", err)
	}
	for _, o := range armable {
		if err := e.registry.Register(o); err != nil {
			e.logger.Warn(ctx, "skipping order during startup registration", map[string]interface{}{
				"orderID": o.ID, "error": err.Error(),
			})
		}
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("monitor loop already running: %w", ports.ErrInvalidRequest)
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	go e.runMonitorLoop(ctx, stopCh)
	e.logger.Info(ctx, "engine started", map[string]interface{}{
		"rearmedOrders":   len(armable),
		"monitorInterval": e.monitorInterval.String(),
	})
	return nil
}

func (e *Engine) runMonitorLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(e.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "monitor loop stopped: context cancelled")
			return
		case <-stopCh:
			e.logger.Info(ctx, "monitor loop stopped")
			return
		case <-ticker.C:
			e.RunMonitorCycle(ctx)
		}
	}
}

// Stop halts the monitor loop. In-flight executions run to completion and
// armed orders remain registered for the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		close(e.stopCh)
		e.running = false
	}
}

// PlaceConditionalOrder validates, persists and arms a conditional order.
// The returned order carries the generated ID.
func (e *Engine) PlaceConditionalOrder(ctx context.Context, o *domain.ConditionalOrder) (*domain.ConditionalOrder, error) {
	if err := validateOrder(o); err != nil {
		return nil, err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := e.now()
	o.Status = domain.OrderPending
	o.CreatedAt = now
	o.UpdatedAt = now

	if err := e.orders.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persisting order: %w", err)
	}
	if err := e.registry.Register(o); err != nil {
		return nil, fmt.Errorf("arming order %s: %w", o.ID, err)
	}

	e.logger.Info(ctx, "conditional order placed", map[string]interface{}{
		"orderID": o.ID, "kind": string(o.Kind), "side": string(o.Side), "trigger": o.TriggerPrice,
	})
	return o, nil
}

func validateOrder(o *domain.ConditionalOrder) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf(format+": %w", append(args, ports.ErrInvalidRequest)...)
	}
	if o == nil {
		return invalid("order is nil")
	}
	if o.OwnerID == "" {
		return invalid("order owner is required")
	}
	switch o.Kind {
	case domain.KindStopLoss, domain.KindTakeProfit, domain.KindLimit:
	default:
		return invalid("unknown order kind %q", o.Kind)
	}
	switch o.Side {
	case domain.Buy, domain.Sell:
	default:
		return invalid("unknown order side %q", o.Side)
	}
	if o.ExecutionMethod == "" {
		o.ExecutionMethod = domain.ExecuteOnChain
	}
	switch o.ExecutionMethod {
	case domain.ExecuteOnChain:
		if o.TokenIn == "" || o.TokenOut == "" {
			return invalid("on-chain orders need tokenIn and tokenOut")
		}
		if o.WalletAddress == "" {
			return invalid("on-chain orders need a wallet address")
		}
	case domain.ExecuteExchange:
	default:
		return invalid("unknown execution method %q", o.ExecutionMethod)
	}
	if o.Pair == "" {
		return invalid("order pair is required")
	}
	if o.Amount <= 0 {
		return invalid("order amount must be positive, got %v", o.Amount)
	}
	if o.TriggerPrice <= 0 {
		return invalid("trigger price must be positive, got %v", o.TriggerPrice)
	}
	return nil
}

// CancelOrder unregisters the order from the monitor loop and marks it
// cancelled. Unregistration comes first so the next tick cannot fire it.
func (e *Engine) CancelOrder(ctx context.Context, id string) error {
	o, err := e.orders.FindOrderByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading order %s: %w", id, err)
	}
	if o == nil {
		return fmt.Errorf("order %s: %w", id, ports.ErrNotFound)
	}
	if o.Status != domain.OrderPending {
		return fmt.Errorf("order %s is %s: %w", id, o.Status, ports.ErrAlreadyProcessed)
	}

	e.registry.Unregister(id)

	o.Status = domain.OrderCancelled
	o.UpdatedAt = e.now()
	if err := e.orders.UpdateOrder(ctx, o); err != nil {
		return fmt.Errorf("cancelling order %s: %w", id, err)
	}
	e.logger.Info(ctx, "conditional order cancelled", map[string]interface{}{"orderID": id})
	return nil
}

// ApprovePendingTrade executes a staged copy trade on the owner's behalf.
func (e *Engine) ApprovePendingTrade(ctx context.Context, id string) (*execution.Result, error) {
	trade, err := e.trades.FindPendingTradeByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading pending trade %s: %w", id, err)
	}
	if trade == nil {
		return nil, fmt.Errorf("pending trade %s: %w", id, ports.ErrNotFound)
	}
	cfg, err := e.configs.FindConfigByID(ctx, trade.ConfigID)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", trade.ConfigID, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("config %s: %w", trade.ConfigID, ports.ErrNotFound)
	}
	return e.pipeline.ExecutePendingTrade(ctx, trade, cfg)
}

// RejectPendingTrade marks a staged copy trade rejected without executing it.
func (e *Engine) RejectPendingTrade(ctx context.Context, id string) error {
	trade, err := e.trades.FindPendingTradeByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading pending trade %s: %w", id, err)
	}
	if trade == nil {
		return fmt.Errorf("pending trade %s: %w", id, ports.ErrNotFound)
	}
	if trade.Status != domain.TradePending {
		return fmt.Errorf("pending trade %s is %s: %w", id, trade.Status, ports.ErrAlreadyProcessed)
	}

	trade.Status = domain.TradeRejected
	if err := e.trades.UpdatePendingTrade(ctx, trade); err != nil {
		return fmt.Errorf("rejecting pending trade %s: %w", id, err)
	}
	e.logger.Info(ctx, "pending trade rejected", map[string]interface{}{"tradeID": id})
	return nil
}

// ClosePosition closes an open position at market.
func (e *Engine) ClosePosition(ctx context.Context, id string) (*execution.Result, error) {
	pos, cfg, err := e.loadPositionWithConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.pipeline.ClosePosition(ctx, pos, cfg.WalletAddress, false)
}

func (e *Engine) loadPositionWithConfig(ctx context.Context, id string) (*domain.Position, *domain.CopyTradingConfig, error) {
	pos, err := e.positions.FindPositionByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("loading position %s: %w", id, err)
	}
	if pos == nil {
		return nil, nil, fmt.Errorf("position %s: %w", id, ports.ErrNotFound)
	}
	cfg, err := e.configs.FindConfigByID(ctx, pos.ConfigID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", pos.ConfigID, err)
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("config %s: %w", pos.ConfigID, ports.ErrNotFound)
	}
	return pos, cfg, nil
}

// RunMonitorCycle evaluates all armed orders once and then checks open
// positions against their stop-loss prices. Used when an external scheduler
// drives the engine instead of the built-in loop.
func (e *Engine) RunMonitorCycle(ctx context.Context) {
	e.registry.RunTick(ctx)
	e.checkPositionStops(ctx)
}

// checkPositionStops closes open positions whose pair price fell to or below
// the configured stop-loss. Failures leave the position open for the next
// cycle.
func (e *Engine) checkPositionStops(ctx context.Context) {
	open, err := e.positions.FindOpenPositions(ctx)
	if err != nil {
		e.logger.Error(ctx, err, "failed to load open positions", nil)
		return
	}
	for _, pos := range open {
		if pos.StopLossPrice <= 0 {
			continue
		}
		price, err := e.oracle.GetPrice(ctx, pos.Pair)
		if err != nil {
			e.logger.Warn(ctx, "price unavailable for position stop check", map[string]interface{}{
				"positionID": pos.ID, "pair": pos.Pair, "error": err.Error(),
			})
			continue
		}
		if price <= 0 || price > pos.StopLossPrice {
			continue
		}

		cfg, err := e.configs.FindConfigByID(ctx, pos.ConfigID)
		if err != nil || cfg == nil {
			e.logger.Error(ctx, err, "missing config for stop-loss close", map[string]interface{}{
				"positionID": pos.ID, "configID": pos.ConfigID,
			})
			continue
		}
		if _, err := e.pipeline.ClosePosition(ctx, pos, cfg.WalletAddress, true); err != nil {
			e.logger.Error(ctx, err, "stop-loss close failed", map[string]interface{}{
				"positionID": pos.ID, "price": price,
			})
		}
	}
}

// RunDetectorCycle scans master wallets and auto-executes eligible staged
// trades.
func (e *Engine) RunDetectorCycle(ctx context.Context) error {
	scanErr := e.detector.Scan(ctx)
	autoErr := e.detector.AutoExecute(ctx)
	return errors.Join(scanErr, autoErr)
}

// ReconcileLedger repairs entities whose swap confirmed on chain but whose
// status write failed. A receipt is only marked reconciled once the repair
// has been persisted; unconfirmed transactions are left for the next sweep.
func (e *Engine) ReconcileLedger(ctx context.Context) error {
	receipts, err := e.receipts.FindUnreconciledReceipts(ctx)
	if err != nil {
		return fmt.Errorf("loading unreconciled receipts: %w", err)
	}
	for _, r := range receipts {
		confirmed, err := e.venue.ConfirmTransaction(ctx, r.TxHash)
		if err != nil {
			e.logger.Warn(ctx, "confirmation check failed", map[string]interface{}{
				"receiptID": r.ID, "txHash": r.TxHash, "error": err.Error(),
			})
			continue
		}
		if !confirmed {
			continue
		}
		if err := e.repairEntity(ctx, r); err != nil {
			e.logger.Error(ctx, err, "ledger repair failed", map[string]interface{}{
				"receiptID": r.ID, "entityKind": r.EntityKind, "entityID": r.EntityID,
			})
			continue
		}
		if err := e.receipts.MarkReceiptReconciled(ctx, r.ID); err != nil {
			e.logger.Error(ctx, err, "failed to mark receipt reconciled", map[string]interface{}{
				"receiptID": r.ID,
			})
		}
	}
	return nil
}

func (e *Engine) repairEntity(ctx context.Context, r *domain.SwapReceipt) error {
	switch r.EntityKind {
	case domain.ReceiptKindOrder:
		o, err := e.orders.FindOrderByID(ctx, r.EntityID)
		if err != nil {
			return err
		}
		if o == nil || o.Status == domain.OrderFilled {
			return nil
		}
		o.Status = domain.OrderFilled
		o.TransactionHash = r.TxHash
		o.ErrorMessage = ""
		o.UpdatedAt = e.now()
		return e.orders.UpdateOrder(ctx, o)

	case domain.ReceiptKindCopyTrade:
		t, err := e.trades.FindPendingTradeByID(ctx, r.EntityID)
		if err != nil {
			return err
		}
		if t == nil || t.Status == domain.TradeApproved {
			return nil
		}
		t.Status = domain.TradeApproved
		t.ErrorMessage = ""
		return e.trades.UpdatePendingTrade(ctx, t)

	case domain.ReceiptKindPositionClose:
		pos, err := e.positions.FindPositionByID(ctx, r.EntityID)
		if err != nil {
			return err
		}
		if pos == nil || !pos.IsOpen() {
			return nil
		}
		// The close swap confirmed but its output amount is unrecoverable
		// here, so realized P&L stays unset.
		pos.Status = domain.PositionClosed
		pos.CloseTransactionHash = r.TxHash
		pos.ClosedAt = r.CreatedAt
		return e.positions.UpdatePosition(ctx, pos)

	default:
		return fmt.Errorf("unknown receipt entity kind %q: %w", r.EntityKind, ports.ErrInvalidRequest)
	}
}
