// Package binanceclient adapts the Binance spot API to the engine's price
// oracle and exchange executor ports.
package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"dexpilot/internal/domain"
	"dexpilot/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements ports.PriceOracle and ports.ExchangeExecutor using the
// go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter. Price queries work without keys;
// order placement requires them.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "testnet": cfg.UseTestnet,
	})

	return &Client{spotClient: client, logger: cfg.Logger}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1106, -1111, -1121, -1130: // Parameter/request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2014, -2015: // API key invalid or lacking permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// symbolFor converts a pair like "SOL/USDC" to the exchange's "SOLUSDC".
func symbolFor(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

// GetPrice returns the latest ticker price for a pair. A missing symbol
// yields zero with nil error: no data rather than a failure.
func (c *Client) GetPrice(ctx context.Context, pair string) (float64, error) {
	op := "GetPrice"
	symbol := symbolFor(pair)

	prices, err := c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, nil
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("%s failed to parse price %q for %s: %w", op, prices[0].Price, symbol, err)
	}
	return price, nil
}

// PlaceMarketOrder executes a market order on the spot exchange and returns
// the fill with its average price.
func (c *Client) PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity float64) (*ports.ExchangeFill, error) {
	op := "PlaceMarketOrder"
	symbol := symbolFor(pair)
	binanceSide := binance.SideType(strings.ToUpper(string(side)))

	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binanceSide).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(quantity, 'f', -1, 64)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	fill := &ports.ExchangeFill{OrderID: order.OrderID}
	var notional, qty float64
	for _, f := range order.Fills {
		p, perr := strconv.ParseFloat(f.Price, 64)
		q, qerr := strconv.ParseFloat(f.Quantity, 64)
		if perr != nil || qerr != nil {
			continue
		}
		notional += p * q
		qty += q
	}
	fill.ExecutedQty = qty
	if qty > 0 {
		fill.AvgPrice = notional / qty
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "side": string(side), "quantity": quantity,
		"orderID": fill.OrderID, "avgPrice": fill.AvgPrice,
	})
	return fill, nil
}

// Ping checks connectivity to the exchange.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("ping failed: %w: %w", ports.ErrExchangeUnavailable, err)
	}
	return nil
}
