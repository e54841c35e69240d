// Package execution implements the single gate through which every swap is
// submitted: quote, risk analysis, build, sign, submit, confirm, persist.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dexpilot/internal/domain"
	"dexpilot/internal/ports"
	"dexpilot/internal/slippage"
)

// Request is a market-equivalent swap request derived from a triggered order
// or an approved pending copy trade.
type Request struct {
	OwnerID        string
	PayerPublicKey string
	TokenIn        string
	TokenOut       string
	AmountIn       float64
	SlippageBps    int // tolerance requested from the venue; 0 means default
	MaxSlippageBps int // rejection ceiling; 0 means default
	SwapAmountUSD  float64
	Liquidity      *slippage.LiquidityInfo
}

// Result is the outcome of one execution attempt. A failed attempt is
// terminal for its request; a new attempt requires a new request.
type Result struct {
	Success       bool
	TxHash        string
	OutAmount     float64
	ExecutedPrice float64 // TokenOut received per TokenIn spent
	Err           error
	Elapsed       time.Duration
	Analysis      slippage.Analysis
}

// Config holds the pipeline's injected collaborators.
type Config struct {
	Logger    ports.Logger
	Venue     ports.SwapVenue
	Signer    ports.Signer
	Exchange  ports.ExchangeExecutor // optional, enables executionMethod=exchange
	Orders    ports.OrderRepository
	Trades    ports.PendingTradeRepository
	Configs   ports.ConfigRepository
	Positions ports.PositionRepository
	Receipts  ports.ReceiptRepository

	DefaultSlippageBps int
	Now                func() time.Time
}

// Pipeline obtains quotes, enforces risk thresholds, executes swaps and is
// the sole writer of order/position terminal state in the ledger. It never
// retries a swap: retrying blindly risks double execution.
type Pipeline struct {
	logger    ports.Logger
	venue     ports.SwapVenue
	signer    ports.Signer
	exchange  ports.ExchangeExecutor
	orders    ports.OrderRepository
	trades    ports.PendingTradeRepository
	configs   ports.ConfigRepository
	positions ports.PositionRepository
	receipts  ports.ReceiptRepository

	defaultSlippageBps int
	now                func() time.Time
}

// NewPipeline creates an execution pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Logger == nil || cfg.Venue == nil || cfg.Signer == nil ||
		cfg.Orders == nil || cfg.Trades == nil || cfg.Configs == nil ||
		cfg.Positions == nil || cfg.Receipts == nil {
		return nil, fmt.Errorf("missing required dependencies for execution pipeline")
	}
	defaultBps := cfg.DefaultSlippageBps
	if defaultBps <= 0 {
		defaultBps = slippage.DefaultRecommendedBps
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		logger:             cfg.Logger,
		venue:              cfg.Venue,
		signer:             cfg.Signer,
		exchange:           cfg.Exchange,
		orders:             cfg.Orders,
		trades:             cfg.Trades,
		configs:            cfg.Configs,
		positions:          cfg.Positions,
		receipts:           cfg.Receipts,
		defaultSlippageBps: defaultBps,
		now:                now,
	}, nil
}

// Execute runs the swap mechanics for a single request: quote, slippage
// analysis, build, sign, submit and confirm. It performs no ledger writes;
// the entity-specific entry points below own persistence.
func (p *Pipeline) Execute(ctx context.Context, req Request) *Result {
	start := p.now()
	fail := func(err error) *Result {
		return &Result{Err: err, Elapsed: p.now().Sub(start)}
	}

	slippageBps := req.SlippageBps
	if slippageBps <= 0 {
		slippageBps = p.defaultSlippageBps
	}

	// 1. Quote
	quote, err := p.venue.Quote(ctx, req.TokenIn, req.TokenOut, req.AmountIn, slippageBps)
	if err != nil {
		return fail(fmt.Errorf("quote request failed: %w: %w", ports.ErrQuoteUnavailable, err))
	}
	if quote == nil || quote.OutAmount <= 0 {
		return fail(fmt.Errorf("no route for %s -> %s: %w", req.TokenIn, req.TokenOut, ports.ErrQuoteUnavailable))
	}

	// 2. Risk analysis, before any transaction is built
	analysis := slippage.Analyze(quote, req.SwapAmountUSD, req.Liquidity)
	if reject, reason := analysis.ShouldReject(req.MaxSlippageBps); reject {
		kind := ports.ErrSlippageExceeded
		if analysis.IsCriticalImpact {
			kind = ports.ErrPriceImpactExceeded
		}
		res := fail(fmt.Errorf("%s: %w", reason, kind))
		res.Analysis = analysis
		return res
	}

	// 3. Build
	unsigned, err := p.venue.BuildTransaction(ctx, quote, req.PayerPublicKey)
	if err != nil {
		return fail(fmt.Errorf("failed to build swap transaction: %w: %w", ports.ErrSubmissionFailed, err))
	}
	if len(unsigned) == 0 {
		return fail(fmt.Errorf("venue returned empty transaction: %w", ports.ErrSubmissionFailed))
	}

	// 4. Sign, awaited exactly once
	signed, err := p.signer.Sign(ctx, unsigned)
	if err != nil {
		return fail(fmt.Errorf("signing failed: %w: %w", ports.ErrSignatureDenied, err))
	}

	// 5. Submit and confirm. Past this point the attempt is not cancellable.
	txHash, err := p.venue.SubmitAndConfirm(ctx, signed)
	if err != nil {
		if errors.Is(err, ports.ErrConfirmationTimeout) {
			return fail(err)
		}
		return fail(fmt.Errorf("submission failed: %w: %w", ports.ErrSubmissionFailed, err))
	}

	res := &Result{
		Success:   true,
		TxHash:    txHash,
		OutAmount: quote.OutAmount,
		Elapsed:   p.now().Sub(start),
		Analysis:  analysis,
	}
	if req.AmountIn > 0 {
		res.ExecutedPrice = quote.OutAmount / req.AmountIn
	}
	return res
}

// ExecuteOrder executes a triggered conditional order and records its
// terminal state. The order must already be unregistered; it is never
// re-armed on failure.
func (p *Pipeline) ExecuteOrder(ctx context.Context, order *domain.ConditionalOrder, price float64) error {
	if order.ExecutionMethod == domain.ExecuteExchange {
		return p.executeOrderOnExchange(ctx, order, price)
	}

	res := p.Execute(ctx, Request{
		OwnerID:        order.OwnerID,
		PayerPublicKey: order.WalletAddress,
		TokenIn:        order.TokenIn,
		TokenOut:       order.TokenOut,
		AmountIn:       order.Amount,
		SlippageBps:    order.SlippageBps,
		MaxSlippageBps: order.SlippageBps,
	})
	if !res.Success {
		return p.rejectOrder(ctx, order, res.Err)
	}

	p.writeReceipt(ctx, domain.ReceiptKindOrder, order.ID, res.TxHash)

	order.Status = domain.OrderFilled
	order.TransactionHash = res.TxHash
	order.FilledPrice = price
	order.ErrorMessage = ""
	order.UpdatedAt = p.now()
	if err := p.persistOrder(ctx, order); err != nil {
		p.logger.Error(ctx, err, "order filled on chain but status write failed", map[string]interface{}{
			"orderID": order.ID, "txHash": res.TxHash,
		})
		return err
	}

	p.logger.Info(ctx, "conditional order filled", map[string]interface{}{
		"orderID": order.ID, "txHash": res.TxHash, "elapsed": res.Elapsed.String(),
	})
	return nil
}

func (p *Pipeline) executeOrderOnExchange(ctx context.Context, order *domain.ConditionalOrder, price float64) error {
	if p.exchange == nil {
		return p.rejectOrder(ctx, order, fmt.Errorf("exchange execution not configured: %w", ports.ErrInvalidRequest))
	}

	fill, err := p.exchange.PlaceMarketOrder(ctx, order.Pair, order.Side, order.Amount)
	if err != nil {
		return p.rejectOrder(ctx, order, fmt.Errorf("exchange market order failed: %w", err))
	}

	order.Status = domain.OrderFilled
	order.TransactionHash = strconv.FormatInt(fill.OrderID, 10)
	order.FilledPrice = fill.AvgPrice
	if order.FilledPrice == 0 {
		order.FilledPrice = price
	}
	order.ErrorMessage = ""
	order.UpdatedAt = p.now()
	if err := p.persistOrder(ctx, order); err != nil {
		p.logger.Error(ctx, err, "order filled on exchange but status write failed", map[string]interface{}{
			"orderID": order.ID, "exchangeOrderID": fill.OrderID,
		})
		return err
	}

	p.logger.Info(ctx, "conditional order filled on exchange", map[string]interface{}{
		"orderID": order.ID, "exchangeOrderID": fill.OrderID, "avgPrice": order.FilledPrice,
	})
	return nil
}

func (p *Pipeline) rejectOrder(ctx context.Context, order *domain.ConditionalOrder, cause error) error {
	order.Status = domain.OrderRejected
	order.ErrorMessage = cause.Error()
	order.UpdatedAt = p.now()
	if perr := p.persistOrder(ctx, order); perr != nil {
		p.logger.Error(ctx, perr, "failed to persist rejected order", map[string]interface{}{"orderID": order.ID})
		return perr
	}
	return cause
}

// ExecutePendingTrade executes an approved copy trade. The pending -> approved
// transition is the claim: it is written with a version check before any swap
// is submitted, so a concurrent attempt loses at the claim and never
// double-submits.
func (p *Pipeline) ExecutePendingTrade(ctx context.Context, trade *domain.PendingCopyTrade, cfg *domain.CopyTradingConfig) (*Result, error) {
	now := p.now()
	if trade.Status != domain.TradePending {
		return nil, fmt.Errorf("pending trade %s is %s: %w", trade.ID, trade.Status, ports.ErrAlreadyProcessed)
	}
	if trade.Expired(now) {
		trade.Status = domain.TradeExpired
		if err := p.persistTrade(ctx, trade); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("pending trade %s expired at %s: %w", trade.ID, trade.ExpiresAt.Format(time.RFC3339), ports.ErrExpired)
	}

	// Claim before submitting anything.
	trade.Status = domain.TradeApproved
	if err := p.trades.UpdatePendingTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("claiming pending trade %s: %w", trade.ID, err)
	}

	res := p.Execute(ctx, Request{
		OwnerID:        trade.OwnerID,
		PayerPublicKey: cfg.WalletAddress,
		TokenIn:        trade.TokenIn,
		TokenOut:       trade.TokenOut,
		AmountIn:       trade.SuggestedAmountIn,
		SlippageBps:    cfg.MaxSlippageBps,
		MaxSlippageBps: cfg.MaxSlippageBps,
	})
	if !res.Success {
		trade.Status = domain.TradeRejected
		trade.ErrorMessage = res.Err.Error()
		if perr := p.persistTrade(ctx, trade); perr != nil {
			p.logger.Error(ctx, perr, "failed to record copy trade failure", map[string]interface{}{"tradeID": trade.ID})
		}
		p.bumpConfigCounters(ctx, cfg, false)
		return res, res.Err
	}

	p.writeReceipt(ctx, domain.ReceiptKindCopyTrade, trade.ID, res.TxHash)

	pos := &domain.Position{
		ID:              uuid.NewString(),
		OwnerID:         trade.OwnerID,
		ConfigID:        cfg.ID,
		PendingTradeID:  trade.ID,
		Pair:            trade.TokenOut,
		TokenIn:         trade.TokenIn,
		TokenOut:        trade.TokenOut,
		AmountIn:        trade.SuggestedAmountIn,
		AmountOut:       res.OutAmount,
		Status:          domain.PositionOpen,
		TransactionHash: res.TxHash,
		OpenedAt:        now,
	}
	if res.OutAmount > 0 {
		pos.EntryPrice = trade.SuggestedAmountIn / res.OutAmount
	}
	if err := p.persistNewPosition(ctx, pos); err != nil {
		// Swap confirmed but the ledger write failed twice: ambiguous state,
		// left to the reconciliation sweep via the receipt above.
		p.logger.Error(ctx, err, "swap confirmed but position write failed", map[string]interface{}{
			"tradeID": trade.ID, "txHash": res.TxHash,
		})
		p.bumpConfigCounters(ctx, cfg, false)
		return res, err
	}

	p.bumpConfigCounters(ctx, cfg, true)
	p.logger.Info(ctx, "copy trade executed", map[string]interface{}{
		"tradeID": trade.ID, "positionID": pos.ID, "txHash": res.TxHash, "elapsed": res.Elapsed.String(),
	})
	return res, nil
}

// ClosePosition swaps the position's holdings back and records realized P&L.
// A position is closed exactly once; the version check enforces it.
func (p *Pipeline) ClosePosition(ctx context.Context, pos *domain.Position, payerPublicKey string, stopLossTriggered bool) (*Result, error) {
	if !pos.IsOpen() {
		return nil, fmt.Errorf("position %s is %s: %w", pos.ID, pos.Status, ports.ErrAlreadyProcessed)
	}

	res := p.Execute(ctx, Request{
		OwnerID:        pos.OwnerID,
		PayerPublicKey: payerPublicKey,
		TokenIn:        pos.TokenOut,
		TokenOut:       pos.TokenIn,
		AmountIn:       pos.AmountOut,
	})
	if !res.Success {
		// The position stays open; closing can be retried with a new request.
		return res, res.Err
	}

	p.writeReceipt(ctx, domain.ReceiptKindPositionClose, pos.ID, res.TxHash)

	exitPrice := 0.0
	if pos.AmountOut > 0 {
		exitPrice = res.OutAmount / pos.AmountOut
	}
	pos.ApplyClose(res.OutAmount, exitPrice, p.now())
	pos.StopLossTriggered = stopLossTriggered
	pos.CloseTransactionHash = res.TxHash
	if err := p.persistPosition(ctx, pos); err != nil {
		p.logger.Error(ctx, err, "close swap confirmed but position write failed", map[string]interface{}{
			"positionID": pos.ID, "txHash": res.TxHash,
		})
		return res, err
	}

	p.logger.Info(ctx, "position closed", map[string]interface{}{
		"positionID": pos.ID, "pnl": pos.PNL, "pnlPct": pos.PNLPercentage, "stopLoss": stopLossTriggered,
	})
	return res, nil
}

// --- persistence helpers ---

// writeReceipt is best effort: the receipt exists to let the reconciliation
// sweep repair a failed status write, and its own failure only leaves the log.
func (p *Pipeline) writeReceipt(ctx context.Context, kind, entityID, txHash string) {
	r := &domain.SwapReceipt{
		ID:         uuid.NewString(),
		EntityKind: kind,
		EntityID:   entityID,
		TxHash:     txHash,
		CreatedAt:  p.now(),
	}
	if err := p.receipts.CreateReceipt(ctx, r); err != nil {
		p.logger.Error(ctx, err, "failed to write swap receipt", map[string]interface{}{
			"entityKind": kind, "entityID": entityID, "txHash": txHash,
		})
	}
}

// retryOnce retries a ledger write once on infrastructure failure, then
// surfaces a hard persistence error. Stale-version and not-found errors are
// not retried; they are decisions, not glitches.
func (p *Pipeline) retryOnce(ctx context.Context, what string, write func() error) error {
	err := write()
	if err == nil {
		return nil
	}
	if errors.Is(err, ports.ErrAlreadyProcessed) || errors.Is(err, ports.ErrNotFound) {
		return err
	}
	p.logger.Warn(ctx, "ledger write failed, retrying once", map[string]interface{}{"what": what, "error": err.Error()})
	if err = write(); err != nil {
		return fmt.Errorf("%s failed after retry: %w: %w", what, ports.ErrPersistence, err)
	}
	return nil
}

func (p *Pipeline) persistOrder(ctx context.Context, o *domain.ConditionalOrder) error {
	return p.retryOnce(ctx, "order status write", func() error { return p.orders.UpdateOrder(ctx, o) })
}

func (p *Pipeline) persistTrade(ctx context.Context, t *domain.PendingCopyTrade) error {
	return p.retryOnce(ctx, "pending trade status write", func() error { return p.trades.UpdatePendingTrade(ctx, t) })
}

func (p *Pipeline) persistPosition(ctx context.Context, pos *domain.Position) error {
	return p.retryOnce(ctx, "position write", func() error { return p.positions.UpdatePosition(ctx, pos) })
}

func (p *Pipeline) persistNewPosition(ctx context.Context, pos *domain.Position) error {
	return p.retryOnce(ctx, "position create", func() error { return p.positions.CreatePosition(ctx, pos) })
}

func (p *Pipeline) bumpConfigCounters(ctx context.Context, cfg *domain.CopyTradingConfig, success bool) {
	cfg.TotalCopiedTrades++
	if success {
		cfg.SuccessfulTrades++
	} else {
		cfg.FailedTrades++
	}
	cfg.UpdatedAt = p.now()
	if err := p.configs.UpdateConfig(ctx, cfg); err != nil {
		p.logger.Error(ctx, err, "failed to update config counters", map[string]interface{}{"configID": cfg.ID})
	}
}
