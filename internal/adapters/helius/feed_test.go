package helius

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexpilot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

const masterWallet = "Master1111111111111111111111111111111111111"

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{APIKey: "key"})
	assert.Error(t, err)

	_, err = New(Config{Logger: nopLogger{}})
	assert.Error(t, err)
}

func TestFetchRecentTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/addresses/"+masterWallet+"/transactions", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api-key"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			{
				"signature": "sig-1",
				"slot": 250000001,
				"timestamp": 1756300000,
				"tokenTransfers": [
					{"fromUserAccount": "` + masterWallet + `", "toUserAccount": "pool", "mint": "USDC", "tokenAmount": 500},
					{"fromUserAccount": "pool", "toUserAccount": "` + masterWallet + `", "mint": "SOL", "tokenAmount": 10}
				]
			}
		]`))
	}))
	defer srv.Close()

	feed, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Logger: nopLogger{}})
	require.NoError(t, err)

	txs, err := feed.FetchRecentTransactions(context.Background(), masterWallet, 20)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "sig-1", txs[0].Signature)
	assert.Equal(t, int64(250000001), txs[0].Slot)
	assert.Equal(t, time.Unix(1756300000, 0).UTC(), txs[0].Timestamp)
	require.Len(t, txs[0].TokenTransfers, 2)
	assert.Equal(t, "USDC", txs[0].TokenTransfers[0].Mint)
	assert.Equal(t, 500.0, txs[0].TokenTransfers[0].Amount)
}

func TestFetchRecentTransactions_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	feed, err := New(Config{BaseURL: srv.URL, APIKey: "test-key", Logger: nopLogger{}})
	require.NoError(t, err)

	_, err = feed.FetchRecentTransactions(context.Background(), masterWallet, 20)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
}

func TestParseDexTrades(t *testing.T) {
	now := time.Now().UTC()
	feed := &Feed{logger: nopLogger{}}

	txs := []*ports.WalletTransaction{
		{
			// Swap: USDC out, SOL in.
			Signature: "swap-1",
			Timestamp: now,
			TokenTransfers: []ports.TokenTransfer{
				{FromWallet: masterWallet, ToWallet: "pool", Mint: "USDC", Amount: 500},
				{FromWallet: "pool", ToWallet: masterWallet, Mint: "SOL", Amount: 10},
			},
		},
		{
			// Plain transfer out, nothing received back.
			Signature: "transfer-1",
			Timestamp: now,
			TokenTransfers: []ports.TokenTransfer{
				{FromWallet: masterWallet, ToWallet: "friend", Mint: "USDC", Amount: 25},
			},
		},
		{
			// Same mint both ways is change, not a swap.
			Signature: "change-1",
			Timestamp: now,
			TokenTransfers: []ports.TokenTransfer{
				{FromWallet: masterWallet, ToWallet: "pool", Mint: "SOL", Amount: 5},
				{FromWallet: "pool", ToWallet: masterWallet, Mint: "SOL", Amount: 0.1},
			},
		},
		{
			// Zero-amount transfers are ignored.
			Signature: "dust-1",
			Timestamp: now,
			TokenTransfers: []ports.TokenTransfer{
				{FromWallet: masterWallet, ToWallet: "pool", Mint: "USDC", Amount: 0},
				{FromWallet: "pool", ToWallet: masterWallet, Mint: "SOL", Amount: 1},
			},
		},
	}

	trades := feed.ParseDexTrades(masterWallet, txs)
	require.Len(t, trades, 1)
	trade := trades[0]
	assert.Equal(t, masterWallet, trade.Trader)
	assert.Equal(t, "USDC", trade.TokenIn)
	assert.Equal(t, "SOL", trade.TokenOut)
	assert.Equal(t, 500.0, trade.AmountIn)
	assert.Equal(t, "swap-1", trade.TxHash)
	assert.Equal(t, now, trade.Timestamp)
}
