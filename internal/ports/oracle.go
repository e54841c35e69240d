package ports

import "context"

// PriceOracle supplies current prices for monitored pairs. Returned values
// may be stale or cached; a zero price with a nil error means "no data right
// now" and callers treat it as a skipped tick, never as a trigger.
type PriceOracle interface {
	GetPrice(ctx context.Context, pair string) (float64, error)
}
