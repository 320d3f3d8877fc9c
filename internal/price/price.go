// Package price provides a BTC/XMR exchange rate oracle backed by the
// CoinGecko API, with a short-lived cache to stay inside rate limits.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JPShag/ComitSwapBot/pkg/logging"
)

// Oracle errors
var (
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrRateLimited     = errors.New("rate limited")
)

// userAgent identifies the bot and credits CoinGecko, per the
// attribution requirement in their API terms of service.
const userAgent = "ComitSwapBot/1.0 (Price attribution: CoinGecko)"

// Attribution is the credit line shown next to any price-bearing output.
const Attribution = "Price data by CoinGecko"

// Quote holds one fetched rate snapshot.
type Quote struct {
	BTCUSD decimal.Decimal
	XMRUSD decimal.Decimal

	// Rate is XMR per BTC (btcUSD / xmrUSD).
	Rate decimal.Decimal

	FetchedAt time.Time
}

// Oracle fetches BTC and XMR prices from CoinGecko.
type Oracle struct {
	baseURL    string
	apiKey     string
	cacheTTL   time.Duration
	httpClient *http.Client
	log        *logging.Logger

	mu     sync.Mutex
	cached *Quote
}

// Config holds oracle settings.
type Config struct {
	APIURL   string
	APIKey   string
	CacheTTL time.Duration
}

// New creates a CoinGecko oracle.
func New(cfg Config, log *logging.Logger) *Oracle {
	baseURL := strings.TrimSuffix(cfg.APIURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = logging.GetDefault()
	}
	return &Oracle{
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		cacheTTL: ttl,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log.Component("price"),
	}
}

// GetQuote returns the current BTC/XMR quote, served from cache while
// fresh.
func (o *Oracle) GetQuote(ctx context.Context) (*Quote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cached != nil && time.Since(o.cached.FetchedAt) < o.cacheTTL {
		return o.cached, nil
	}

	quote, err := o.fetch(ctx)
	if err != nil {
		return nil, err
	}

	o.cached = quote
	return quote, nil
}

// ConvertBTCToXMR converts a BTC amount at the current rate. Returns the
// XMR amount and the rate used.
func (o *Oracle) ConvertBTCToXMR(ctx context.Context, btc decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	quote, err := o.GetQuote(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return btc.Mul(quote.Rate), quote.Rate, nil
}

// simplePriceResponse is the CoinGecko /simple/price shape.
type simplePriceResponse struct {
	Bitcoin struct {
		USD float64 `json:"usd"`
	} `json:"bitcoin"`
	Monero struct {
		USD float64 `json:"usd"`
	} `json:"monero"`
}

func (o *Oracle) fetch(ctx context.Context) (*Quote, error) {
	endpoint := o.baseURL + "/simple/price?" + url.Values{
		"ids":           {"bitcoin,monero"},
		"vs_currencies": {"usd"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if o.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrRateUnavailable, resp.StatusCode, string(body))
	}

	var prices simplePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}

	if prices.Bitcoin.USD <= 0 || prices.Monero.USD <= 0 {
		return nil, fmt.Errorf("%w: non-positive price", ErrRateUnavailable)
	}

	btcUSD := decimal.NewFromFloat(prices.Bitcoin.USD)
	xmrUSD := decimal.NewFromFloat(prices.Monero.USD)

	quote := &Quote{
		BTCUSD:    btcUSD,
		XMRUSD:    xmrUSD,
		Rate:      btcUSD.DivRound(xmrUSD, 12),
		FetchedAt: time.Now(),
	}

	o.log.Debug("rate fetched",
		"btc_usd", btcUSD.String(), "xmr_usd", xmrUSD.String(), "rate", quote.Rate.String())

	return quote, nil
}
