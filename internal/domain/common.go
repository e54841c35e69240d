package domain

// OrderSide represents the side of an order (buy or sell).
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderKind identifies which trigger rule a conditional order follows.
type OrderKind string

const (
	KindStopLoss   OrderKind = "stop_loss"
	KindTakeProfit OrderKind = "take_profit"
	KindLimit      OrderKind = "limit"
)

// ExecutionMethod selects where a triggered order is executed.
type ExecutionMethod string

const (
	ExecuteOnChain  ExecutionMethod = "onchain"
	ExecuteExchange ExecutionMethod = "exchange"
)

// OrderStatus represents the persisted lifecycle state of a conditional order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// PendingTradeStatus represents the lifecycle state of a staged copy trade.
// Transitions only move forward: pending -> approved | rejected | expired.
type PendingTradeStatus string

const (
	TradePending  PendingTradeStatus = "pending"
	TradeApproved PendingTradeStatus = "approved"
	TradeRejected PendingTradeStatus = "rejected"
	TradeExpired  PendingTradeStatus = "expired"
)

// SizingMode is the policy used to size a mirrored trade.
type SizingMode string

const (
	SizingFixed        SizingMode = "fixed"
	SizingProportional SizingMode = "proportional"
	SizingKelly        SizingMode = "kelly"
	SizingCustom       SizingMode = "custom"
)

// PositionStatus represents the status of a copy-trading position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// TriggerCondition optionally overrides the direction implied by a limit
// order's side.
type TriggerCondition string

const (
	ConditionDefault TriggerCondition = ""
	ConditionAbove   TriggerCondition = "above"
	ConditionBelow   TriggerCondition = "below"
)
