package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTickers struct {
	prices []*binance.SymbolPrice
	err    error
	asked  string
}

func (f *fakeTickers) ListPrices(_ context.Context, symbol string) ([]*binance.SymbolPrice, error) {
	f.asked = symbol
	return f.prices, f.err
}

func TestBinanceSourcePrice(t *testing.T) {
	fake := &fakeTickers{prices: []*binance.SymbolPrice{{Symbol: "BTCUSDT", Price: "61234.50"}}}
	src := NewBinanceSource(nil)
	src.tickers = fake

	assert.True(t, src.Supports("BTC/USD"))
	assert.False(t, src.Supports("EURUSD"))

	v, err := src.Price(context.Background(), "btcusd")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", fake.asked)
	assert.Equal(t, 61234.5, v)
}

func TestBinanceSourceErrors(t *testing.T) {
	src := NewBinanceSource(nil)

	src.tickers = &fakeTickers{err: errors.New("network down")}
	_, err := src.Price(context.Background(), "ETHUSDT")
	assert.Error(t, err)

	src.tickers = &fakeTickers{prices: []*binance.SymbolPrice{{Symbol: "ETHUSDT", Price: "abc"}}}
	_, err = src.Price(context.Background(), "ETHUSDT")
	assert.Error(t, err)

	src.tickers = &fakeTickers{}
	_, err = src.Price(context.Background(), "ETHUSDT")
	assert.Error(t, err)
}

func TestOandaSourcePrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/accounts/acct-1/pricing", r.URL.Path)
		assert.Equal(t, "EUR_USD", r.URL.Query().Get("instruments"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices":[{"instrument":"EUR_USD","bids":[{"price":"1.1000"}],"asks":[{"price":"1.1002"}]}]}`))
	}))
	defer srv.Close()

	src := NewOandaSource("tok", "acct-1", true, nil)
	src.baseURL = srv.URL

	assert.True(t, src.Supports("EUR/USD"))
	assert.True(t, src.Supports("XAUUSD"))
	assert.False(t, src.Supports("BTCUSDT"))
	assert.False(t, src.Supports("US30"))

	v, err := src.Price(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 1.1001, v, 1e-9)
}

func TestOandaSourceHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessage":"Insufficient authorization"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewOandaSource("bad", "acct-1", true, nil)
	src.baseURL = srv.URL

	_, err := src.Price(context.Background(), "EURUSD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestFearGreedIndex(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"name":"Fear and Greed Index","data":[{"value":"18","value_classification":"Extreme Fear","timestamp":"1700000000"}]}`))
	}))
	defer srv.Close()

	c := NewFearGreedClient(srv.URL)
	idx, err := c.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 18, idx.Value)
	assert.Equal(t, "Extreme Fear", idx.ValueText)
	assert.Equal(t, "Extreme fear (Fear & Greed: 18/100)", idx.Sentiment())

	_, err = c.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "second call served from cache")
}

func TestFearGreedIndexEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewFearGreedClient(srv.URL).Index(context.Background())
	assert.Error(t, err)
}

func TestFearGreedIndexHungEndpoint(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	c := NewFearGreedClient(srv.URL)

	slowDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := c.Index(ctx)
		slowDone <- err
	}()

	// while the fetch above hangs, a fresh cache entry is still served without waiting
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	c.cache = &FearGreedIndex{Value: 55}
	c.cacheExpiry = time.Now().Add(time.Hour)
	c.mu.Unlock()

	start := time.Now()
	idx, err := c.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 55, idx.Value)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case err := <-slowDone:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("hung fetch ignored its context deadline")
	}
}

func TestFearGreedIndexRespectsDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewFearGreedClient(srv.URL).Index(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
