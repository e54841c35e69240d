// Package slippage evaluates swap quotes against price-impact and slippage
// risk thresholds before any transaction is built.
package slippage

import (
	"fmt"

	"dexpilot/internal/ports"
)

const (
	// HighImpactPct marks a trade that noticeably moves the pool.
	HighImpactPct = 3.0
	// CriticalImpactPct is the hard rejection threshold.
	CriticalImpactPct = 5.0
	// DefaultMaxSlippageBps is the rejection ceiling when the caller does
	// not supply one.
	DefaultMaxSlippageBps = 500
	// DefaultRecommendedBps is used when no liquidity information is
	// available.
	DefaultRecommendedBps = 100
)

// LiquidityInfo describes the target pool's depth.
type LiquidityInfo struct {
	TotalLiquidityUSD float64
}

// Analysis is the derived risk evaluation of a single quote. It is never
// persisted.
type Analysis struct {
	SlippageBps            int
	PriceImpactPct         float64
	IsHighImpact           bool
	IsCriticalImpact       bool
	RecommendedSlippageBps int
	MinOutputAmount        float64
}

// Analyze classifies a quote's price impact and recommends a slippage
// tolerance from the trade's share of pool liquidity.
func Analyze(quote *ports.SwapQuote, swapAmountUSD float64, liq *LiquidityInfo) Analysis {
	a := Analysis{
		SlippageBps:            quote.SlippageBps,
		PriceImpactPct:         quote.PriceImpactPct,
		IsHighImpact:           quote.PriceImpactPct >= HighImpactPct,
		IsCriticalImpact:       quote.PriceImpactPct >= CriticalImpactPct,
		RecommendedSlippageBps: recommendBps(swapAmountUSD, liq),
	}
	a.MinOutputAmount = quote.OutAmount * (1 - float64(a.RecommendedSlippageBps)/10000)
	return a
}

// recommendBps is a step function of the trade's share of pool liquidity.
func recommendBps(swapAmountUSD float64, liq *LiquidityInfo) int {
	if liq == nil || liq.TotalLiquidityUSD <= 0 {
		return DefaultRecommendedBps
	}
	ratio := swapAmountUSD / liq.TotalLiquidityUSD
	switch {
	case ratio > 0.10:
		return 300
	case ratio > 0.05:
		return 150
	case ratio > 0.01:
		return 100
	default:
		return 50
	}
}

// ShouldReject decides whether the quote must be rejected before building a
// transaction: critical price impact, or quoted slippage above the ceiling.
// A non-positive ceiling falls back to DefaultMaxSlippageBps.
func (a Analysis) ShouldReject(maxSlippageBps int) (bool, string) {
	if maxSlippageBps <= 0 {
		maxSlippageBps = DefaultMaxSlippageBps
	}
	if a.IsCriticalImpact {
		return true, fmt.Sprintf("critical price impact %.2f%% (threshold %.1f%%)", a.PriceImpactPct, CriticalImpactPct)
	}
	if a.SlippageBps > maxSlippageBps {
		return true, fmt.Sprintf("slippage %d bps exceeds ceiling %d bps", a.SlippageBps, maxSlippageBps)
	}
	return false, ""
}
