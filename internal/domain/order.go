package domain

import "time"

// ConditionalOrder is a standing instruction to swap once the market price
// crosses the trigger level. While armed it lives in the in-memory registry;
// the persisted row is the source of truth for its terminal state.
type ConditionalOrder struct {
	ID              string
	Pair            string // price pair watched by the monitor (e.g. "SOLUSDT")
	TokenIn         string // mint/asset spent when the order fires
	TokenOut        string // mint/asset received when the order fires
	Kind            OrderKind
	Side            OrderSide
	TriggerPrice    float64
	Amount          float64
	Condition       TriggerCondition // optional override, limit orders only
	ExecutionMethod ExecutionMethod
	OwnerID         string
	WalletAddress   string // payer public key for on-chain execution
	SlippageBps     int    // 0 means the engine default

	Status          OrderStatus
	ErrorMessage    string
	TransactionHash string
	FilledPrice     float64

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Triggered reports whether the current price satisfies the order's trigger
// condition.
//
//	stop_loss   sell: price <= trigger    buy: price >= trigger
//	take_profit sell: price >= trigger    buy: price <= trigger
//	limit       buy:  price <= trigger    sell: price >= trigger
//
// For limit orders an explicit Condition overrides the side-implied direction.
func (o *ConditionalOrder) Triggered(price float64) bool {
	switch o.Kind {
	case KindStopLoss:
		if o.Side == Sell {
			return price <= o.TriggerPrice
		}
		return price >= o.TriggerPrice
	case KindTakeProfit:
		if o.Side == Sell {
			return price >= o.TriggerPrice
		}
		return price <= o.TriggerPrice
	case KindLimit:
		switch o.Condition {
		case ConditionAbove:
			return price >= o.TriggerPrice
		case ConditionBelow:
			return price <= o.TriggerPrice
		}
		if o.Side == Buy {
			return price <= o.TriggerPrice
		}
		return price >= o.TriggerPrice
	}
	return false
}

// Armable reports whether a persisted order should be re-registered into the
// monitor on startup.
func (o *ConditionalOrder) Armable() bool {
	return o.Status == OrderPending && (o.Kind == KindStopLoss || o.Kind == KindTakeProfit)
}
