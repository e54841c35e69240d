package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexpilot/internal/detector"
	"dexpilot/internal/domain"
	"dexpilot/internal/execution"
	"dexpilot/internal/ports"
	"dexpilot/internal/registry"
)

// The engine tests run the real registry, pipeline and detector over
// in-memory fakes, exercising each operation end to end.

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeOracle struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (f *fakeOracle) GetPrice(ctx context.Context, pair string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices[pair], nil
}

func (f *fakeOracle) setPrice(pair string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[pair] = price
}

type fakeVenue struct {
	quote      *ports.SwapQuote
	submitHash string
	confirmed  map[string]bool
}

func (f *fakeVenue) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn float64, slippageBps int) (*ports.SwapQuote, error) {
	q := *f.quote
	q.TokenIn = tokenIn
	q.TokenOut = tokenOut
	q.AmountIn = amountIn
	return &q, nil
}

func (f *fakeVenue) BuildTransaction(ctx context.Context, quote *ports.SwapQuote, payerPublicKey string) ([]byte, error) {
	return []byte("unsigned"), nil
}

func (f *fakeVenue) SubmitAndConfirm(ctx context.Context, signedTx []byte) (string, error) {
	return f.submitHash, nil
}

func (f *fakeVenue) ConfirmTransaction(ctx context.Context, txHash string) (bool, error) {
	return f.confirmed[txHash], nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(ctx context.Context, unsignedTx []byte) ([]byte, error) {
	return []byte("signed"), nil
}
func (fakeSigner) PublicKey() string { return "engine-pubkey" }

type fakeFeed struct {
	trades map[string][]*domain.DexTrade
}

func (f *fakeFeed) FetchRecentTransactions(ctx context.Context, walletAddress string, limit int) ([]*ports.WalletTransaction, error) {
	return nil, nil
}

func (f *fakeFeed) ParseDexTrades(walletAddress string, txs []*ports.WalletTransaction) []*domain.DexTrade {
	return f.trades[walletAddress]
}

// --- in-memory ledger ---

type memLedger struct {
	mu        sync.Mutex
	orders    map[string]*domain.ConditionalOrder
	trades    map[string]*domain.PendingCopyTrade
	tradeKeys map[string]bool // ownerID + masterTxHash
	configs   map[string]*domain.CopyTradingConfig
	positions map[string]*domain.Position
	receipts  map[string]*domain.SwapReceipt
}

func newMemLedger() *memLedger {
	return &memLedger{
		orders:    map[string]*domain.ConditionalOrder{},
		trades:    map[string]*domain.PendingCopyTrade{},
		tradeKeys: map[string]bool{},
		configs:   map[string]*domain.CopyTradingConfig{},
		positions: map[string]*domain.Position{},
		receipts:  map[string]*domain.SwapReceipt{},
	}
}

func (l *memLedger) CreateOrder(ctx context.Context, o *domain.ConditionalOrder) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *o
	l.orders[o.ID] = &cp
	return nil
}

func (l *memLedger) UpdateOrder(ctx context.Context, o *domain.ConditionalOrder) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *o
	l.orders[o.ID] = &cp
	return nil
}

func (l *memLedger) FindOrderByID(ctx context.Context, id string) (*domain.ConditionalOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (l *memLedger) FindPendingOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.ConditionalOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.ConditionalOrder
	for _, o := range l.orders {
		if o.OwnerID == ownerID && o.Status == domain.OrderPending {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) FindArmableOrders(ctx context.Context) ([]*domain.ConditionalOrder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.ConditionalOrder
	for _, o := range l.orders {
		if o.Armable() {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) CreatePendingTradeIfAbsent(ctx context.Context, t *domain.PendingCopyTrade) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := t.OwnerID + "|" + t.MasterTxHash
	if l.tradeKeys[key] {
		return false, nil
	}
	l.tradeKeys[key] = true
	cp := *t
	l.trades[t.ID] = &cp
	return true, nil
}

func (l *memLedger) UpdatePendingTrade(ctx context.Context, t *domain.PendingCopyTrade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *t
	l.trades[t.ID] = &cp
	return nil
}

func (l *memLedger) FindPendingTradeByID(ctx context.Context, id string) (*domain.PendingCopyTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (l *memLedger) FindPendingTrades(ctx context.Context) ([]*domain.PendingCopyTrade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.PendingCopyTrade
	for _, t := range l.trades {
		if t.Status == domain.TradePending {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) CreateConfig(ctx context.Context, c *domain.CopyTradingConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *c
	l.configs[c.ID] = &cp
	return nil
}

func (l *memLedger) UpdateConfig(ctx context.Context, c *domain.CopyTradingConfig) error {
	return l.CreateConfig(ctx, c)
}

func (l *memLedger) FindConfigByID(ctx context.Context, id string) (*domain.CopyTradingConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.configs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (l *memLedger) FindActiveConfigs(ctx context.Context) ([]*domain.CopyTradingConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.CopyTradingConfig
	for _, c := range l.configs {
		if c.Active {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) CreatePosition(ctx context.Context, p *domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *p
	l.positions[p.ID] = &cp
	return nil
}

func (l *memLedger) UpdatePosition(ctx context.Context, p *domain.Position) error {
	return l.CreatePosition(ctx, p)
}

func (l *memLedger) FindPositionByID(ctx context.Context, id string) (*domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (l *memLedger) FindOpenPositions(ctx context.Context) ([]*domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Position
	for _, p := range l.positions {
		if p.IsOpen() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) CountPositionsSince(ctx context.Context, configID string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, p := range l.positions {
		if p.ConfigID == configID && !p.OpenedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (l *memLedger) SumRealizedPNLSince(ctx context.Context, configID string, since time.Time) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := 0.0
	for _, p := range l.positions {
		if p.ConfigID == configID && p.Status == domain.PositionClosed && !p.ClosedAt.Before(since) {
			sum += p.PNL
		}
	}
	return sum, nil
}

func (l *memLedger) CreateReceipt(ctx context.Context, r *domain.SwapReceipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *r
	l.receipts[r.ID] = &cp
	return nil
}

func (l *memLedger) FindUnreconciledReceipts(ctx context.Context) ([]*domain.SwapReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.SwapReceipt
	for _, r := range l.receipts {
		if !r.Reconciled {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (l *memLedger) MarkReceiptReconciled(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.receipts[id]; ok {
		r.Reconciled = true
	}
	return nil
}

// --- harness ---

type harness struct {
	engine *Engine
	ledger *memLedger
	oracle *fakeOracle
	venue  *fakeVenue
	feed   *fakeFeed
	reg    *registry.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ledger := newMemLedger()
	oracle := &fakeOracle{prices: map[string]float64{}}
	venue := &fakeVenue{
		quote:      &ports.SwapQuote{OutAmount: 2, PriceImpactPct: 0.2, SlippageBps: 50},
		submitHash: "tx-1",
		confirmed:  map[string]bool{},
	}
	feed := &fakeFeed{trades: map[string][]*domain.DexTrade{}}

	pipe, err := execution.NewPipeline(execution.Config{
		Logger:    nopLogger{},
		Venue:     venue,
		Signer:    fakeSigner{},
		Orders:    ledger,
		Trades:    ledger,
		Configs:   ledger,
		Positions: ledger,
		Receipts:  ledger,
	})
	require.NoError(t, err)

	reg, err := registry.New(nopLogger{}, oracle, pipe)
	require.NoError(t, err)

	det, err := detector.New(detector.Config{
		Logger:    nopLogger{},
		Feed:      feed,
		Trades:    ledger,
		Configs:   ledger,
		Positions: ledger,
		Executor:  pipe,
	})
	require.NoError(t, err)

	engine, err := NewEngine(Config{
		Logger:    nopLogger{},
		Registry:  reg,
		Pipeline:  pipe,
		Detector:  det,
		Oracle:    oracle,
		Venue:     venue,
		Orders:    ledger,
		Trades:    ledger,
		Configs:   ledger,
		Positions: ledger,
		Receipts:  ledger,
	})
	require.NoError(t, err)

	return &harness{engine: engine, ledger: ledger, oracle: oracle, venue: venue, feed: feed, reg: reg}
}

func validOrder() *domain.ConditionalOrder {
	return &domain.ConditionalOrder{
		Pair:          "SOL/USDC",
		TokenIn:       "SOL",
		TokenOut:      "USDC",
		Kind:          domain.KindStopLoss,
		Side:          domain.Sell,
		TriggerPrice:  48,
		Amount:        2,
		OwnerID:       "owner-1",
		WalletAddress: "wallet-1",
	}
}

func TestPlaceConditionalOrder(t *testing.T) {
	h := newHarness(t)

	placed, err := h.engine.PlaceConditionalOrder(context.Background(), validOrder())

	require.NoError(t, err)
	require.NotEmpty(t, placed.ID)
	assert.Equal(t, domain.OrderPending, placed.Status)
	assert.True(t, h.reg.Contains(placed.ID))

	stored, err := h.ledger.FindOrderByID(context.Background(), placed.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.OrderPending, stored.Status)
}

func TestPlaceConditionalOrder_Validation(t *testing.T) {
	mutations := map[string]func(*domain.ConditionalOrder){
		"missing owner":         func(o *domain.ConditionalOrder) { o.OwnerID = "" },
		"unknown kind":          func(o *domain.ConditionalOrder) { o.Kind = "trailing" },
		"unknown side":          func(o *domain.ConditionalOrder) { o.Side = "hold" },
		"zero amount":           func(o *domain.ConditionalOrder) { o.Amount = 0 },
		"negative trigger":      func(o *domain.ConditionalOrder) { o.TriggerPrice = -1 },
		"missing pair":          func(o *domain.ConditionalOrder) { o.Pair = "" },
		"missing token out":     func(o *domain.ConditionalOrder) { o.TokenOut = "" },
		"missing wallet":        func(o *domain.ConditionalOrder) { o.WalletAddress = "" },
		"bogus execution path":  func(o *domain.ConditionalOrder) { o.ExecutionMethod = "carrier-pigeon" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			o := validOrder()
			mutate(o)

			_, err := h.engine.PlaceConditionalOrder(context.Background(), o)

			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrInvalidRequest)
			assert.Equal(t, 0, h.reg.Len())
		})
	}
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t)
	placed, err := h.engine.PlaceConditionalOrder(context.Background(), validOrder())
	require.NoError(t, err)

	require.NoError(t, h.engine.CancelOrder(context.Background(), placed.ID))

	assert.False(t, h.reg.Contains(placed.ID))
	stored, _ := h.ledger.FindOrderByID(context.Background(), placed.ID)
	assert.Equal(t, domain.OrderCancelled, stored.Status)

	// Cancelled orders never fire, even if the price crosses.
	h.oracle.setPrice("SOL/USDC", 40)
	h.engine.RunMonitorCycle(context.Background())
	stored, _ = h.ledger.FindOrderByID(context.Background(), placed.ID)
	assert.Equal(t, domain.OrderCancelled, stored.Status)
}

func TestCancelOrder_Errors(t *testing.T) {
	h := newHarness(t)

	err := h.engine.CancelOrder(context.Background(), "no-such-order")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	placed, err := h.engine.PlaceConditionalOrder(context.Background(), validOrder())
	require.NoError(t, err)
	require.NoError(t, h.engine.CancelOrder(context.Background(), placed.ID))

	err = h.engine.CancelOrder(context.Background(), placed.ID)
	assert.ErrorIs(t, err, ports.ErrAlreadyProcessed)
}

func TestRunMonitorCycle_FiresTriggeredOrder(t *testing.T) {
	h := newHarness(t)
	placed, err := h.engine.PlaceConditionalOrder(context.Background(), validOrder())
	require.NoError(t, err)

	h.oracle.setPrice("SOL/USDC", 50)
	h.engine.RunMonitorCycle(context.Background())
	stored, _ := h.ledger.FindOrderByID(context.Background(), placed.ID)
	assert.Equal(t, domain.OrderPending, stored.Status)

	h.oracle.setPrice("SOL/USDC", 47)
	h.engine.RunMonitorCycle(context.Background())

	stored, _ = h.ledger.FindOrderByID(context.Background(), placed.ID)
	assert.Equal(t, domain.OrderFilled, stored.Status)
	assert.Equal(t, "tx-1", stored.TransactionHash)
	assert.Equal(t, 47.0, stored.FilledPrice)
	assert.False(t, h.reg.Contains(placed.ID))

	// A further cycle must not touch the filled order.
	h.engine.RunMonitorCycle(context.Background())
	again, _ := h.ledger.FindOrderByID(context.Background(), placed.ID)
	assert.Equal(t, stored.UpdatedAt, again.UpdatedAt)
}

func TestRunMonitorCycle_StopLossClosesPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ledger.CreateConfig(ctx, &domain.CopyTradingConfig{
		ID: "config-1", OwnerID: "owner-1", WalletAddress: "wallet-1", Active: true,
	}))
	require.NoError(t, h.ledger.CreatePosition(ctx, &domain.Position{
		ID: "pos-1", OwnerID: "owner-1", ConfigID: "config-1",
		Pair: "BONK/USDC", TokenIn: "USDC", TokenOut: "BONK",
		AmountIn: 100, AmountOut: 2, StopLossPrice: 40,
		Status: domain.PositionOpen, OpenedAt: time.Now(),
	}))

	h.oracle.setPrice("BONK/USDC", 45)
	h.engine.RunMonitorCycle(ctx)
	pos, _ := h.ledger.FindPositionByID(ctx, "pos-1")
	assert.Equal(t, domain.PositionOpen, pos.Status)

	h.oracle.setPrice("BONK/USDC", 39)
	h.engine.RunMonitorCycle(ctx)

	pos, _ = h.ledger.FindPositionByID(ctx, "pos-1")
	assert.Equal(t, domain.PositionClosed, pos.Status)
	assert.True(t, pos.StopLossTriggered)
	assert.Equal(t, "tx-1", pos.CloseTransactionHash)
}

func TestRunDetectorCycle_StagesAndAutoExecutes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ledger.CreateConfig(ctx, &domain.CopyTradingConfig{
		ID: "config-1", OwnerID: "owner-1", MasterWallet: "master-1",
		WalletAddress: "wallet-1", Active: true, AutoExecute: true,
		SizingMode: domain.SizingProportional, ProportionalPercentage: 10,
	}))
	h.feed.trades["master-1"] = []*domain.DexTrade{{
		Trader: "master-1", TokenIn: "USDC", TokenOut: "WIF",
		AmountIn: 1000, TxHash: "master-tx-1", Timestamp: time.Now(),
	}}

	require.NoError(t, h.engine.RunDetectorCycle(ctx))

	// Staged, auto-executed, position opened, counters updated.
	require.Len(t, h.ledger.trades, 1)
	for _, trade := range h.ledger.trades {
		assert.Equal(t, domain.TradeApproved, trade.Status)
		assert.Equal(t, 100.0, trade.SuggestedAmountIn)
	}
	require.Len(t, h.ledger.positions, 1)
	for _, pos := range h.ledger.positions {
		assert.Equal(t, domain.PositionOpen, pos.Status)
		assert.Equal(t, 100.0, pos.AmountIn)
	}
	cfg, _ := h.ledger.FindConfigByID(ctx, "config-1")
	assert.Equal(t, 1, cfg.TotalCopiedTrades)
	assert.Equal(t, 1, cfg.SuccessfulTrades)

	// Re-running the cycle must not duplicate the trade.
	require.NoError(t, h.engine.RunDetectorCycle(ctx))
	assert.Len(t, h.ledger.trades, 1)
	assert.Len(t, h.ledger.positions, 1)
}

func TestApproveAndRejectPendingTrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ledger.CreateConfig(ctx, &domain.CopyTradingConfig{
		ID: "config-1", OwnerID: "owner-1", MasterWallet: "master-1",
		WalletAddress: "wallet-1", Active: true,
		SizingMode: domain.SizingFixed, FixedPositionSize: 50,
	}))
	h.feed.trades["master-1"] = []*domain.DexTrade{
		{Trader: "master-1", TokenIn: "USDC", TokenOut: "WIF", AmountIn: 500, TxHash: "tx-a", Timestamp: time.Now()},
		{Trader: "master-1", TokenIn: "USDC", TokenOut: "JUP", AmountIn: 500, TxHash: "tx-b", Timestamp: time.Now()},
	}
	require.NoError(t, h.engine.RunDetectorCycle(ctx))

	pending, err := h.ledger.FindPendingTrades(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	res, err := h.engine.ApprovePendingTrade(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	approved, _ := h.ledger.FindPendingTradeByID(ctx, pending[0].ID)
	assert.Equal(t, domain.TradeApproved, approved.Status)

	require.NoError(t, h.engine.RejectPendingTrade(ctx, pending[1].ID))
	rejected, _ := h.ledger.FindPendingTradeByID(ctx, pending[1].ID)
	assert.Equal(t, domain.TradeRejected, rejected.Status)

	// Terminal states cannot transition again.
	_, err = h.engine.ApprovePendingTrade(ctx, pending[0].ID)
	assert.ErrorIs(t, err, ports.ErrAlreadyProcessed)
	err = h.engine.RejectPendingTrade(ctx, pending[1].ID)
	assert.ErrorIs(t, err, ports.ErrAlreadyProcessed)

	_, err = h.engine.ApprovePendingTrade(ctx, "no-such-trade")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestClosePosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ledger.CreateConfig(ctx, &domain.CopyTradingConfig{
		ID: "config-1", OwnerID: "owner-1", WalletAddress: "wallet-1", Active: true,
	}))
	require.NoError(t, h.ledger.CreatePosition(ctx, &domain.Position{
		ID: "pos-1", OwnerID: "owner-1", ConfigID: "config-1",
		TokenIn: "USDC", TokenOut: "WIF",
		AmountIn: 100, AmountOut: 2,
		Status: domain.PositionOpen, OpenedAt: time.Now(),
	}))
	// Closing 2 WIF returns 110 USDC.
	h.venue.quote = &ports.SwapQuote{OutAmount: 110, PriceImpactPct: 0.2, SlippageBps: 50}

	res, err := h.engine.ClosePosition(ctx, "pos-1")

	require.NoError(t, err)
	assert.True(t, res.Success)
	pos, _ := h.ledger.FindPositionByID(ctx, "pos-1")
	assert.Equal(t, domain.PositionClosed, pos.Status)
	assert.InDelta(t, 10.0, pos.PNL, 1e-9)
	assert.InDelta(t, 10.0, pos.PNLPercentage, 1e-9)
	assert.False(t, pos.StopLossTriggered)

	_, err = h.engine.ClosePosition(ctx, "pos-1")
	assert.ErrorIs(t, err, ports.ErrAlreadyProcessed)

	_, err = h.engine.ClosePosition(ctx, "no-such-position")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestStart_RearmsPersistedOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	armable := validOrder()
	armable.ID = "order-armable"
	armable.Status = domain.OrderPending
	require.NoError(t, h.ledger.CreateOrder(ctx, armable))

	dormant := validOrder()
	dormant.ID = "order-limit"
	dormant.Kind = domain.KindLimit
	dormant.Status = domain.OrderPending
	require.NoError(t, h.ledger.CreateOrder(ctx, dormant))

	require.NoError(t, h.engine.Start(ctx))
	defer h.engine.Stop()

	assert.True(t, h.reg.Contains("order-armable"))
	assert.False(t, h.reg.Contains("order-limit"))
}

func TestReconcileLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	stuck := validOrder()
	stuck.ID = "order-stuck"
	stuck.Status = domain.OrderPending
	require.NoError(t, h.ledger.CreateOrder(ctx, stuck))
	require.NoError(t, h.ledger.CreateReceipt(ctx, &domain.SwapReceipt{
		ID: "receipt-1", EntityKind: domain.ReceiptKindOrder,
		EntityID: "order-stuck", TxHash: "tx-confirmed", CreatedAt: time.Now(),
	}))
	require.NoError(t, h.ledger.CreateReceipt(ctx, &domain.SwapReceipt{
		ID: "receipt-2", EntityKind: domain.ReceiptKindOrder,
		EntityID: "order-other", TxHash: "tx-unconfirmed", CreatedAt: time.Now(),
	}))
	h.venue.confirmed["tx-confirmed"] = true

	require.NoError(t, h.engine.ReconcileLedger(ctx))

	repaired, _ := h.ledger.FindOrderByID(ctx, "order-stuck")
	assert.Equal(t, domain.OrderFilled, repaired.Status)
	assert.Equal(t, "tx-confirmed", repaired.TransactionHash)
	assert.True(t, h.ledger.receipts["receipt-1"].Reconciled)
	// Unconfirmed receipts wait for the next sweep.
	assert.False(t, h.ledger.receipts["receipt-2"].Reconciled)
}
