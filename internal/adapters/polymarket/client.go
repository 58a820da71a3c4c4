// Package polymarket adapts the Polymarket Data API and CLOB endpoints to the
// core's market-data and execution ports.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

const (
	defaultDataAPIURL = "https://data-api.polymarket.com"
	defaultCLOBURL    = "https://clob.polymarket.com"

	defaultHTTPTimeout = 15 * time.Second
	maxFetchAttempts   = 3
)

// Client implements ports.MarketDataClient and ports.OrderExecutor against
// the Polymarket Data API (reads), the CLOB order book (quotes) and the
// order relay (signed submission).
type Client struct {
	dataAPIURL string
	clobURL    string
	relayURL   string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Polymarket adapter.
type Config struct {
	DataAPIURL string // Data API base URL; default if empty
	CLOBURL    string // CLOB base URL; default if empty
	RelayURL   string // Order relay base URL; required for order submission
	Timeout    time.Duration
	Logger     ports.Logger
}

// New creates a new Polymarket client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Polymarket client")
	}
	dataAPIURL := cfg.DataAPIURL
	if dataAPIURL == "" {
		dataAPIURL = defaultDataAPIURL
	}
	clobURL := cfg.CLOBURL
	if clobURL == "" {
		clobURL = defaultCLOBURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if cfg.RelayURL == "" {
		cfg.Logger.Warn(context.Background(), "Order relay URL is empty. Client will only work for read endpoints.")
	}

	return &Client{
		dataAPIURL: strings.TrimRight(dataAPIURL, "/"),
		clobURL:    strings.TrimRight(clobURL, "/"),
		relayURL:   strings.TrimRight(cfg.RelayURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// tradeRecord is one row from the Data API trades endpoint.
type tradeRecord struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	Title           string  `json:"title"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"` // Unix seconds
	TransactionHash string  `json:"transactionHash"`
}

// bookLevel is one price level of the CLOB order book. Prices and sizes come
// back as strings.
type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type orderBook struct {
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`
}

// RecentTrades fetches the most recent trades for a source wallet, newest first.
func (c *Client) RecentTrades(ctx context.Context, wallet string, limit int) ([]*domain.TradeEvent, error) {
	op := "RecentTrades"
	endpoint := fmt.Sprintf("%s/trades?user=%s&limit=%d",
		c.dataAPIURL, url.QueryEscape(strings.ToLower(wallet)), limit)

	var records []tradeRecord
	if err := c.getJSON(ctx, op, endpoint, &records); err != nil {
		return nil, err
	}

	events := make([]*domain.TradeEvent, 0, len(records))
	for _, rec := range records {
		if rec.TransactionHash == "" {
			// Rows without a transaction hash cannot be deduplicated; skip them.
			c.logger.Warn(ctx, op+": dropping trade without transaction hash", map[string]interface{}{"wallet": wallet})
			continue
		}
		source := rec.ProxyWallet
		if source == "" {
			source = wallet
		}
		size := decimal.NewFromFloat(rec.Size)
		price := decimal.NewFromFloat(rec.Price)
		events = append(events, &domain.TradeEvent{
			SourceWallet: strings.ToLower(source),
			MarketID:     rec.Asset,
			MarketTitle:  rec.Title,
			Side:         domain.OrderSide(strings.ToUpper(rec.Side)),
			Size:         rec.Size,
			Price:        rec.Price,
			Volume:       size.Mul(price),
			TxHash:       rec.TransactionHash,
			Timestamp:    time.Unix(rec.Timestamp, 0).UTC(),
		})
	}
	return events, nil
}

// BestPrice returns the current best quoted price for taking the given side:
// the lowest ask for a BUY, the highest bid for a SELL.
func (c *Client) BestPrice(ctx context.Context, marketID string, side domain.OrderSide) (float64, error) {
	op := "BestPrice"
	endpoint := fmt.Sprintf("%s/book?token_id=%s", c.clobURL, url.QueryEscape(marketID))

	var book orderBook
	if err := c.getJSON(ctx, op, endpoint, &book); err != nil {
		return 0, err
	}

	levels := book.Asks
	if side == domain.Sell {
		levels = book.Bids
	}
	best := 0.0
	for _, lvl := range levels {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		if best == 0 || (side == domain.Buy && price < best) || (side == domain.Sell && price > best) {
			best = price
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("no quotes for market %s: %w", marketID, ports.ErrNoLiquidity)
	}
	return best, nil
}

// relayRequest is the payload sent to the order relay. The relay holds the
// signing keys; the core only ever hands over the credential reference.
type relayRequest struct {
	CredentialRef string  `json:"credential_ref"`
	ClientOrderID string  `json:"client_order_id"`
	TokenID       string  `json:"token_id"`
	Side          string  `json:"side"`
	Notional      float64 `json:"notional"`
	Price         float64 `json:"price"`
	TimeInForce   string  `json:"time_in_force"`
}

type relayResponse struct {
	Status string `json:"status"` // filled | killed | error
	Reason string `json:"reason"`
}

// Submit places a fill-or-kill order through the relay and finalizes
// order.Outcome. A killed order is a normal result, not an error.
func (c *Client) Submit(ctx context.Context, credentialRef string, order *domain.MirrorOrder) error {
	op := "Submit"
	if c.relayURL == "" {
		return fmt.Errorf("%s: order relay URL is not configured: %w", op, ports.ErrConfigurationError)
	}

	payload, err := json.Marshal(relayRequest{
		CredentialRef: credentialRef,
		ClientOrderID: order.ClientOrderID,
		TokenID:       order.MarketID,
		Side:          string(order.Side),
		Notional:      order.Notional,
		Price:         order.Price,
		TimeInForce:   "FOK",
	})
	if err != nil {
		return fmt.Errorf("%s: failed to encode order: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.wrapTransportErr(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: relay returned %d: %w", op, resp.StatusCode, ports.ErrAuthenticationFailed)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: relay returned 429: %w", op, ports.ErrRateLimited)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s: relay returned %d: %w", op, resp.StatusCode, ports.ErrOrderRejected)
	}

	var result relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("%s: failed to decode relay response: %w", op, err)
	}

	switch result.Status {
	case "filled":
		order.Outcome = domain.OutcomeFilled
	case "killed":
		order.Outcome = domain.OutcomeKilled
		order.Reason = result.Reason
	default:
		order.Outcome = domain.OutcomeError
		order.Reason = result.Reason
		c.logger.Warn(ctx, op+": relay reported order error", map[string]interface{}{
			"clientOrderID": order.ClientOrderID, "reason": result.Reason})
	}
	return nil
}

// getJSON performs a GET with bounded, jittered retries on transient
// failures (network errors, 5xx, 429). A 4xx other than 429 fails fast.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, out interface{}) error {
	retry := &backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("%s: failed to build request: %w", op, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = c.wrapTransportErr(op, err)
		} else {
			switch {
			case resp.StatusCode == http.StatusOK:
				decodeErr := json.NewDecoder(resp.Body).Decode(out)
				resp.Body.Close()
				if decodeErr != nil {
					return fmt.Errorf("%s: failed to decode response: %w", op, decodeErr)
				}
				return nil
			case resp.StatusCode == http.StatusTooManyRequests:
				resp.Body.Close()
				lastErr = fmt.Errorf("%s: status 429: %w", op, ports.ErrRateLimited)
			case resp.StatusCode >= 500:
				resp.Body.Close()
				lastErr = fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, ports.ErrMarketUnavailable)
			default:
				resp.Body.Close()
				return fmt.Errorf("%s: status %d: %w", op, resp.StatusCode, ports.ErrInvalidRequest)
			}
		}

		if attempt < maxFetchAttempts {
			d := retry.Duration()
			c.logger.Debug(ctx, op+": retrying after transient failure", map[string]interface{}{
				"attempt": attempt, "delay": d.String(), "error": lastErr.Error()})
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w", op, ports.ErrContextCanceled)
			case <-time.After(d):
			}
		}
	}
	return lastErr
}

// wrapTransportErr maps low-level HTTP client errors onto standard port errors.
func (c *Client) wrapTransportErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ports.ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ports.ErrContextCanceled)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%s: %w", op, ports.ErrTimeout)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ports.ErrMarketUnavailable)
}
