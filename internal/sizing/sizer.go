// Package sizing maps a master trade's amount and a follower's configuration
// to a suggested mirrored amount.
package sizing

import (
	"math"

	"dexpilot/internal/domain"
)

// DefaultProportionalPct is applied when a proportional config carries no
// explicit percentage.
const DefaultProportionalPct = 10.0

// Suggest computes the mirrored trade amount for a master trade of the given
// size under the config's sizing mode, clamped to the config's position and
// capital limits (zero limits are unbounded).
//
// The kelly and custom modes intentionally fall back to a flat 10% of the
// master amount; they are placeholders pending a product decision, not an
// approximation of the Kelly criterion.
func Suggest(masterAmount float64, cfg *domain.CopyTradingConfig) float64 {
	if masterAmount < 0 {
		return 0
	}

	var amount float64
	switch cfg.SizingMode {
	case domain.SizingFixed:
		amount = cfg.FixedPositionSize
	case domain.SizingProportional:
		pct := cfg.ProportionalPercentage
		if pct <= 0 {
			pct = DefaultProportionalPct
		}
		amount = masterAmount * pct / 100
	case domain.SizingKelly, domain.SizingCustom:
		amount = masterAmount * DefaultProportionalPct / 100
	default:
		amount = masterAmount * DefaultProportionalPct / 100
	}

	if cfg.MaxPositionSize > 0 {
		amount = math.Min(amount, cfg.MaxPositionSize)
	}
	if cfg.AllocatedCapital > 0 {
		amount = math.Min(amount, cfg.AllocatedCapital)
	}
	if amount < 0 {
		return 0
	}
	return amount
}
