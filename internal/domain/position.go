package domain

import "time"

// Position is a copy-trading position opened by executing a pending trade.
// It is closed exactly once; closing computes realized P&L from the reverse
// quote.
type Position struct {
	ID             string
	OwnerID        string
	ConfigID       string
	PendingTradeID string

	Pair     string // price pair used for stop-loss monitoring
	TokenIn  string
	TokenOut string

	AmountIn   float64 // amount spent at entry (in TokenIn units)
	AmountOut  float64 // amount received at entry (in TokenOut units)
	EntryPrice float64 // TokenIn per TokenOut at entry
	ExitPrice  float64
	ExitAmount float64 // TokenIn units received when closing

	PNL           float64
	PNLPercentage float64

	StopLossPrice     float64 // 0 disables the position stop check
	StopLossTriggered bool

	Status               PositionStatus
	TransactionHash      string
	CloseTransactionHash string

	OpenedAt time.Time
	ClosedAt time.Time
	Version  int64
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// ApplyClose records the exit leg and computes realized P&L:
// pnl = exitAmount - amountIn, pnlPercentage = pnl / amountIn * 100.
func (p *Position) ApplyClose(exitAmount, exitPrice float64, closedAt time.Time) {
	p.ExitAmount = exitAmount
	p.ExitPrice = exitPrice
	p.PNL = exitAmount - p.AmountIn
	if p.AmountIn != 0 {
		p.PNLPercentage = p.PNL / p.AmountIn * 100
	}
	p.Status = PositionClosed
	p.ClosedAt = closedAt
}

// SwapReceipt records a confirmed on-chain swap before the owning entity's
// status write happens. The reconciliation sweep uses unreconciled receipts
// to repair rows left behind by a failed status write.
type SwapReceipt struct {
	ID         string
	EntityKind string // "order", "copy_trade" or "position_close"
	EntityID   string
	TxHash     string
	Reconciled bool
	CreatedAt  time.Time
}

// Receipt entity kinds.
const (
	ReceiptKindOrder         = "order"
	ReceiptKindCopyTrade     = "copy_trade"
	ReceiptKindPositionClose = "position_close"
)
