package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newPriceServer(t *testing.T, btcUSD, xmrUSD string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "bitcoin,monero", r.URL.Query().Get("ids"))
		require.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		require.Contains(t, r.Header.Get("User-Agent"), "CoinGecko",
			"requests must carry the attribution user agent")
		w.Write([]byte(`{"bitcoin":{"usd":` + btcUSD + `},"monero":{"usd":` + xmrUSD + `}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetQuote(t *testing.T) {
	srv := newPriceServer(t, "64000", "160", nil)
	o := New(Config{APIURL: srv.URL, CacheTTL: time.Minute}, nil)

	quote, err := o.GetQuote(context.Background())
	require.NoError(t, err)
	require.Equal(t, "64000", quote.BTCUSD.String())
	require.Equal(t, "160", quote.XMRUSD.String())
	require.Equal(t, "400", quote.Rate.String())
}

func TestGetQuoteCached(t *testing.T) {
	var calls atomic.Int64
	srv := newPriceServer(t, "64000", "160", &calls)
	o := New(Config{APIURL: srv.URL, CacheTTL: time.Minute}, nil)

	ctx := context.Background()
	_, err := o.GetQuote(ctx)
	require.NoError(t, err)
	_, err = o.GetQuote(ctx)
	require.NoError(t, err)

	require.Equal(t, int64(1), calls.Load(), "second call must be served from cache")
}

func TestGetQuoteCacheExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := newPriceServer(t, "64000", "160", &calls)
	o := New(Config{APIURL: srv.URL, CacheTTL: time.Millisecond}, nil)

	ctx := context.Background()
	_, err := o.GetQuote(ctx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = o.GetQuote(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestConvertBTCToXMR(t *testing.T) {
	srv := newPriceServer(t, "64000", "160", nil)
	o := New(Config{APIURL: srv.URL, CacheTTL: time.Minute}, nil)

	xmr, rate, err := o.ConvertBTCToXMR(context.Background(), decimal.RequireFromString("0.25"))
	require.NoError(t, err)
	require.Equal(t, "400", rate.String())
	require.Equal(t, "100", xmr.String())
}

func TestGetQuoteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	o := New(Config{APIURL: srv.URL}, nil)
	_, err := o.GetQuote(context.Background())
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestGetQuoteBadPrices(t *testing.T) {
	srv := newPriceServer(t, "64000", "0", nil)
	o := New(Config{APIURL: srv.URL}, nil)

	_, err := o.GetQuote(context.Background())
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.Header.Get("x-cg-demo-api-key"))
		w.Write([]byte(`{"bitcoin":{"usd":64000},"monero":{"usd":160}}`))
	}))
	t.Cleanup(srv.Close)

	o := New(Config{APIURL: srv.URL, APIKey: "secret"}, nil)
	_, err := o.GetQuote(context.Background())
	require.NoError(t, err)
}
