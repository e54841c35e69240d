package ports

import (
	"context"
	"time"

	"dexpilot/internal/domain"
)

// TokenTransfer is a single token movement inside a wallet transaction.
type TokenTransfer struct {
	FromWallet string
	ToWallet   string
	Mint       string
	Amount     float64
}

// WalletTransaction is a raw transaction observed on a watched wallet.
type WalletTransaction struct {
	Signature      string
	Slot           int64
	Timestamp      time.Time
	TokenTransfers []TokenTransfer
}

// WalletFeed observes the on-chain activity of master wallets.
type WalletFeed interface {
	// FetchRecentTransactions returns the wallet's most recent transactions,
	// newest first, bounded by limit.
	FetchRecentTransactions(ctx context.Context, walletAddress string, limit int) ([]*WalletTransaction, error)

	// ParseDexTrades extracts normalized DEX trades made by walletAddress
	// from raw transactions. Transactions that are not swap-shaped are
	// dropped.
	ParseDexTrades(walletAddress string, txs []*WalletTransaction) []*domain.DexTrade
}
