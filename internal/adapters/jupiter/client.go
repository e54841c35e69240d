// Package jupiter adapts the Jupiter swap aggregator and a Solana RPC node
// to the engine's swap venue port.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dexpilot/internal/ports"
)

const (
	defaultBaseURL        = "https://quote-api.jup.ag/v6"
	defaultConfirmTimeout = 45 * time.Second
	defaultPollInterval   = 2 * time.Second
	defaultDecimals       = 9
)

// Client implements ports.SwapVenue against the Jupiter quote/swap API and a
// Solana RPC endpoint for submission and confirmation.
type Client struct {
	baseURL    string
	rpcURL     string
	httpClient *http.Client
	logger     ports.Logger

	confirmTimeout time.Duration
	pollInterval   time.Duration
	decimals       map[string]int
}

// Config holds configuration for the Jupiter adapter.
type Config struct {
	BaseURL    string
	RPCURL     string
	HTTPClient *http.Client
	Logger     ports.Logger

	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	// Decimals maps token mints to their decimal places; unlisted mints use
	// the SOL default of 9.
	Decimals map[string]int
}

// New creates a Jupiter venue adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Jupiter client")
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL is required for Jupiter client")
	}
	c := &Client{
		baseURL:        cfg.BaseURL,
		rpcURL:         cfg.RPCURL,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		decimals:       cfg.Decimals,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = defaultConfirmTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c, nil
}

func (c *Client) decimalsFor(mint string) int {
	if d, ok := c.decimals[mint]; ok {
		return d
	}
	return defaultDecimals
}

func (c *Client) toRawAmount(mint string, amount float64) uint64 {
	return uint64(math.Round(amount * math.Pow10(c.decimalsFor(mint))))
}

func (c *Client) fromRawAmount(mint string, raw uint64) float64 {
	return float64(raw) / math.Pow10(c.decimalsFor(mint))
}

type quoteResponse struct {
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
	SlippageBps    int    `json:"slippageBps"`
}

// Quote requests a swap quote from the aggregator. A 404-style "no route"
// answer is returned as nil, nil.
func (c *Client) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn float64, slippageBps int) (*ports.SwapQuote, error) {
	q := url.Values{}
	q.Set("inputMint", tokenIn)
	q.Set("outputMint", tokenOut)
	q.Set("amount", strconv.FormatUint(c.toRawAmount(tokenIn, amountIn), 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building quote request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote request: %w: %w", ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote returned status %d: %s: %w", resp.StatusCode, truncate(body), ports.ErrQuoteUnavailable)
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("decoding quote response: %w", err)
	}
	outRaw, err := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quoted out amount %q: %w", qr.OutAmount, err)
	}
	impactFraction, err := strconv.ParseFloat(qr.PriceImpactPct, 64)
	if err != nil {
		impactFraction = 0
	}

	return &ports.SwapQuote{
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       amountIn,
		OutAmount:      c.fromRawAmount(tokenOut, outRaw),
		PriceImpactPct: impactFraction * 100,
		SlippageBps:    qr.SlippageBps,
		Raw:            json.RawMessage(body),
	}, nil
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildTransaction asks the aggregator to assemble the unsigned swap
// transaction for the quoted route.
func (c *Client) BuildTransaction(ctx context.Context, quote *ports.SwapQuote, payerPublicKey string) ([]byte, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, fmt.Errorf("quote payload required to build swap transaction: %w", ports.ErrInvalidRequest)
	}
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:    quote.Raw,
		UserPublicKey:    payerPublicKey,
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("swap request: %w: %w", ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading swap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap returned status %d: %s", resp.StatusCode, truncate(body))
	}

	var sr swapResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decoding swap response: %w", err)
	}
	tx, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decoding swap transaction: %w", err)
	}
	return tx, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) rpcCall(ctx context.Context, method string, params []interface{}, result interface{}) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w: %w", method, ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s rpc error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

type signatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

type signatureStatuses struct {
	Value []*signatureStatus `json:"value"`
}

// SubmitAndConfirm sends a signed transaction and polls until it confirms.
// A transaction still unconfirmed at the deadline yields
// ports.ErrConfirmationTimeout; its eventual fate is unknown.
func (c *Client) SubmitAndConfirm(ctx context.Context, signedTx []byte) (string, error) {
	var signature string
	err := c.rpcCall(ctx, "sendTransaction",
		[]interface{}{
			base64.StdEncoding.EncodeToString(signedTx),
			map[string]interface{}{"encoding": "base64", "skipPreflight": false},
		}, &signature)
	if err != nil {
		return "", err
	}
	c.logger.Debug(ctx, "transaction submitted", map[string]interface{}{"signature": signature})

	deadline := time.NewTimer(c.confirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("confirmation interrupted for %s: %w: %w", signature, ports.ErrContextCanceled, ctx.Err())
		case <-deadline.C:
			return "", fmt.Errorf("transaction %s not confirmed after %s: %w", signature, c.confirmTimeout, ports.ErrConfirmationTimeout)
		case <-ticker.C:
			status, err := c.signatureStatus(ctx, signature, false)
			if err != nil {
				c.logger.Warn(ctx, "signature status check failed", map[string]interface{}{
					"signature": signature, "error": err.Error(),
				})
				continue
			}
			if status == nil {
				continue
			}
			if len(status.Err) > 0 && string(status.Err) != "null" {
				return "", fmt.Errorf("transaction %s failed on chain: %s: %w", signature, status.Err, ports.ErrSubmissionFailed)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return signature, nil
			}
		}
	}
}

// ConfirmTransaction reports whether a previously submitted transaction
// landed successfully, searching full transaction history.
func (c *Client) ConfirmTransaction(ctx context.Context, txHash string) (bool, error) {
	status, err := c.signatureStatus(ctx, txHash, true)
	if err != nil {
		return false, err
	}
	if status == nil {
		return false, nil
	}
	if len(status.Err) > 0 && string(status.Err) != "null" {
		return false, nil
	}
	return status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", nil
}

func (c *Client) signatureStatus(ctx context.Context, signature string, searchHistory bool) (*signatureStatus, error) {
	var statuses signatureStatuses
	err := c.rpcCall(ctx, "getSignatureStatuses",
		[]interface{}{
			[]string{signature},
			map[string]interface{}{"searchTransactionHistory": searchHistory},
		}, &statuses)
	if err != nil {
		return nil, err
	}
	if len(statuses.Value) == 0 {
		return nil, nil
	}
	return statuses.Value[0], nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
