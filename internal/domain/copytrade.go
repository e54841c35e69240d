package domain

import "time"

// DexTrade is a normalized swap extracted from a master wallet's on-chain
// activity.
type DexTrade struct {
	Trader    string
	TokenIn   string
	TokenOut  string
	AmountIn  float64
	TxHash    string
	Timestamp time.Time
}

// PendingCopyTrade is a staged, not-yet-executed mirror of a master trade.
// It must be approved (manually or by auto-execution) before ExpiresAt or it
// lapses. No two pending trades share (OwnerID, MasterTxHash).
type PendingCopyTrade struct {
	ID                string
	MasterWallet      string
	MasterTxHash      string
	TokenIn           string
	TokenOut          string
	SuggestedAmountIn float64
	ConfigID          string
	OwnerID           string
	Status            PendingTradeStatus
	ErrorMessage      string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	Version           int64
}

// Expired reports whether the trade's execution window has lapsed.
func (t *PendingCopyTrade) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// CopyTradingConfig is a follower's policy for mirroring one master wallet.
type CopyTradingConfig struct {
	ID            string
	OwnerID       string
	MasterWallet  string
	WalletAddress string // follower's payer public key
	Active        bool

	TokenWhitelist []string
	TokenBlacklist []string

	SizingMode             SizingMode
	FixedPositionSize      float64
	ProportionalPercentage float64
	MaxPositionSize        float64 // 0 means unbounded
	AllocatedCapital       float64 // 0 means unbounded

	MaxDailyTrades    int
	MaxDailyLoss      float64
	MaxSlippageBps    int
	MaxPriceImpactPct float64
	AutoExecute       bool

	TotalCopiedTrades int
	SuccessfulTrades  int
	FailedTrades      int

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// TokenAllowed applies the config's whitelist and blacklist to a trade's
// token pair. A non-empty whitelist requires at least one of the two tokens;
// the blacklist rejects if it contains either.
func (c *CopyTradingConfig) TokenAllowed(tokenIn, tokenOut string) bool {
	for _, t := range c.TokenBlacklist {
		if t == tokenIn || t == tokenOut {
			return false
		}
	}
	if len(c.TokenWhitelist) == 0 {
		return true
	}
	for _, t := range c.TokenWhitelist {
		if t == tokenIn || t == tokenOut {
			return true
		}
	}
	return false
}
