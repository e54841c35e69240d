package ports

import (
	"context"
	"encoding/json"

	"dexpilot/internal/domain"
)

// SwapQuote is the venue's answer for a proposed swap.
type SwapQuote struct {
	TokenIn        string
	TokenOut       string
	AmountIn       float64
	OutAmount      float64
	PriceImpactPct float64
	SlippageBps    int
	// Raw carries the venue's original quote payload so BuildTransaction can
	// pass it back verbatim.
	Raw json.RawMessage
}

// SwapVenue abstracts the decentralized exchange used for on-chain execution.
// How quotes are computed internally is the venue's concern.
type SwapVenue interface {
	// Quote requests a swap quote. A nil quote with a nil error means the
	// venue has no route for the pair.
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn float64, slippageBps int) (*SwapQuote, error)

	// BuildTransaction builds an unsigned swap transaction for the payer.
	BuildTransaction(ctx context.Context, quote *SwapQuote, payerPublicKey string) ([]byte, error)

	// SubmitAndConfirm submits a signed transaction and waits for
	// confirmation, returning the transaction hash.
	SubmitAndConfirm(ctx context.Context, signedTx []byte) (string, error)

	// ConfirmTransaction reports whether a previously submitted transaction
	// is confirmed on chain. Used by the reconciliation sweep.
	ConfirmTransaction(ctx context.Context, txHash string) (bool, error)
}

// Signer signs a built transaction. It is supplied by the caller's wallet
// abstraction and awaited exactly once per execution.
type Signer interface {
	Sign(ctx context.Context, unsignedTx []byte) ([]byte, error)
	PublicKey() string
}

// ExchangeFill is the essential result of a market order on a centralized
// exchange.
type ExchangeFill struct {
	OrderID     int64
	AvgPrice    float64
	ExecutedQty float64
}

// ExchangeExecutor executes triggered orders whose execution method is
// "exchange" as market orders on a centralized venue.
type ExchangeExecutor interface {
	PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*ExchangeFill, error)
}
