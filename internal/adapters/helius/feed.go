// Package helius adapts the Helius enhanced transactions API to the
// engine's wallet activity feed port.
package helius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dexpilot/internal/domain"
	"dexpilot/internal/ports"
)

const defaultBaseURL = "https://api.helius.xyz"

// Feed implements ports.WalletFeed.
type Feed struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration for the Helius adapter.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     ports.Logger
}

// New creates a Helius wallet feed adapter.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Helius feed")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Helius feed")
	}
	f := &Feed{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if f.baseURL == "" {
		f.baseURL = defaultBaseURL
	}
	if f.httpClient == nil {
		f.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return f, nil
}

type enhancedTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
}

type enhancedTransaction struct {
	Signature      string             `json:"signature"`
	Slot           int64              `json:"slot"`
	Timestamp      int64              `json:"timestamp"`
	TokenTransfers []enhancedTransfer `json:"tokenTransfers"`
}

// FetchRecentTransactions returns the most recent transactions involving the
// wallet, newest first, as Helius reports them.
func (f *Feed) FetchRecentTransactions(ctx context.Context, walletAddress string, limit int) ([]*ports.WalletTransaction, error) {
	q := url.Values{}
	q.Set("api-key", f.apiKey)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/v0/addresses/%s/transactions?%s", f.baseURL, url.PathEscape(walletAddress), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building transactions request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transactions request for %s: %w: %w", walletAddress, ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading transactions response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("transactions request for %s throttled: %w", walletAddress, ports.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transactions request for %s returned status %d", walletAddress, resp.StatusCode)
	}

	var raws []enhancedTransaction
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decoding transactions response: %w", err)
	}

	txs := make([]*ports.WalletTransaction, 0, len(raws))
	for _, raw := range raws {
		tx := &ports.WalletTransaction{
			Signature: raw.Signature,
			Slot:      raw.Slot,
			Timestamp: time.Unix(raw.Timestamp, 0).UTC(),
		}
		for _, tr := range raw.TokenTransfers {
			tx.TokenTransfers = append(tx.TokenTransfers, ports.TokenTransfer{
				FromWallet: tr.FromUserAccount,
				ToWallet:   tr.ToUserAccount,
				Mint:       tr.Mint,
				Amount:     tr.TokenAmount,
			})
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// ParseDexTrades extracts swap-shaped activity from raw transactions. A trade
// is a transaction where the wallet both sent one token and received a
// different one; transfers of the same mint in both directions are treated as
// change, not a swap.
func (f *Feed) ParseDexTrades(walletAddress string, txs []*ports.WalletTransaction) []*domain.DexTrade {
	var trades []*domain.DexTrade
	for _, tx := range txs {
		var out, in *ports.TokenTransfer
		for i := range tx.TokenTransfers {
			tr := &tx.TokenTransfers[i]
			if tr.Amount <= 0 {
				continue
			}
			switch {
			case tr.FromWallet == walletAddress && out == nil:
				out = tr
			case tr.ToWallet == walletAddress && in == nil:
				in = tr
			}
		}
		if out == nil || in == nil || out.Mint == in.Mint {
			continue
		}
		trades = append(trades, &domain.DexTrade{
			Trader:    walletAddress,
			TokenIn:   out.Mint,
			TokenOut:  in.Mint,
			AmountIn:  out.Amount,
			TxHash:    tx.Signature,
			Timestamp: tx.Timestamp,
		})
	}
	return trades
}
