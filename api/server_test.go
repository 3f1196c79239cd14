package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"tradeidea/config"
	"tradeidea/decision"
	"tradeidea/market"
	"tradeidea/middleware"
	"tradeidea/trader"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAI struct {
	resp string
	err  error
}

func (s *stubAI) Configured() bool { return true }

func (s *stubAI) CallWithMessages(_ context.Context, _, _ string) (string, error) {
	return s.resp, s.err
}

// countingGenerator records calls without producing anything useful.
type countingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGenerator) Generate(context.Context, decision.Request) decision.Result {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return decision.Result{}
}

func (g *countingGenerator) GenerateVariations(context.Context, decision.Request, int) decision.VariationsResult {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return decision.VariationsResult{}
}

type recordingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *recordingNotifier) NotifySignal(decision.ProposedTrade, trader.SizingDisplay) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *recordingNotifier) Close() {}

func newEngine(ai *stubAI) *decision.Engine {
	opts := decision.EngineOptions{
		Prices:        market.NewPriceFeed(nil, nil, time.Minute, time.Second),
		OracleTimeout: 500 * time.Millisecond,
	}
	if ai != nil {
		opts.AI = ai
	}
	return decision.NewEngine(opts)
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

const goldDecision = `Analysis done.
<decision>{"direction":"buy","orderType":"limit","entryPrice":2000,"stopLoss":1980,"takeProfit1":2040,"takeProfit2":2060,"timeFrame":"H4","comment":"retest of support"}</decision>`

func TestSignalFromOracle(t *testing.T) {
	n := &recordingNotifier{}
	s := NewServer(Options{Generator: newEngine(&stubAI{resp: goldDecision}), Notifier: n})

	w := post(t, s.Handler(), "/api/signal", gin.H{"symbol": "xau/usd", "accountSize": 10000, "tradeRiskPercent": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp signalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Fallback)
	assert.Equal(t, "XAUUSD", resp.Signal.Symbol)
	assert.Equal(t, decision.SourceOracle, resp.Signal.Source)
	assert.Equal(t, decision.Limit, resp.Signal.OrderType)
	assert.Equal(t, "H4", resp.Signal.TimeFrame)

	assert.Equal(t, 200.0, resp.Risk.RiskAmount)
	assert.Equal(t, 20.0, resp.Risk.StopDistance)
	assert.Equal(t, 10.0, resp.Risk.Units)
	assert.Equal(t, 0.1, resp.Risk.Lots)
	assert.Equal(t, 400.0, resp.Risk.ProfitAtTP1)
	assert.Equal(t, 2.0, resp.Risk.RiskRewardTP1)
	assert.Equal(t, 3.0, resp.Risk.RiskRewardTP2)
	assert.Equal(t, trader.RiskMedium, resp.Risk.RiskLevel)
	assert.Equal(t, 2000.0, resp.ReferencePrice.Value)
	assert.Equal(t, market.OriginMock, resp.ReferencePrice.Origin)
	assert.Equal(t, 1, n.count)
}

func TestSignalOracleFailureFallsBack(t *testing.T) {
	for name, ai := range map[string]*stubAI{
		"unconfigured": nil,
		"transport":    {err: errors.New("connection reset")},
		"malformed":    {resp: "I cannot help with that"},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewServer(Options{Generator: newEngine(ai), SignalTimeFrame: "H1"})

			w := post(t, s.Handler(), "/api/signal", gin.H{"symbol": "XAUUSD", "accountSize": 10000, "tradeRiskPercent": 1})
			require.Equal(t, http.StatusOK, w.Code)

			var resp signalResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.True(t, resp.Fallback)
			assert.Equal(t, decision.SourceFallback, resp.Signal.Source)
			assert.NotEmpty(t, resp.Signal.FallbackReason)
			assert.True(t, resp.Signal.OrderingHolds())
			assert.Equal(t, "H1", resp.Signal.TimeFrame)
			assert.Equal(t, 100.0, resp.Risk.RiskAmount)
			assert.Greater(t, resp.Risk.Units, 0.0)
		})
	}
}

func TestSignalRejectsRiskAbove100(t *testing.T) {
	gen := &countingGenerator{}
	s := NewServer(Options{Generator: gen})

	w := post(t, s.Handler(), "/api/signal", gin.H{"symbol": "XAUUSD", "accountSize": 10000, "tradeRiskPercent": 150})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tradeRiskPercent", body["field"])
	assert.Zero(t, gen.calls)
}

func TestSignalUsesConfiguredRiskLimit(t *testing.T) {
	gen := &countingGenerator{}
	risk := config.DefaultRiskConfig()
	risk.MaxDirectRiskPercent = 10
	s := NewServer(Options{Generator: gen, Risk: risk})

	w := post(t, s.Handler(), "/api/signal", gin.H{"symbol": "XAUUSD", "accountSize": 10000, "tradeRiskPercent": 12})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds 10%")

	calc := gin.H{"symbol": "XAUUSD", "accountSize": 10000, "tradeRiskPercent": 12, "entryPrice": 2000, "stopLoss": 1980}
	assert.Equal(t, http.StatusBadRequest, post(t, s.Handler(), "/api/position-size", calc).Code)
	assert.Zero(t, gen.calls)
}

func TestSignalInvalidRequests(t *testing.T) {
	gen := &countingGenerator{}
	s := NewServer(Options{Generator: gen})

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing symbol", gin.H{"accountSize": 1000, "tradeRiskPercent": 1}, "symbol"},
		{"blank symbol", gin.H{"symbol": " / ", "accountSize": 1000, "tradeRiskPercent": 1}, "symbol"},
		{"missing account", gin.H{"symbol": "EURUSD", "tradeRiskPercent": 1}, "accountSize"},
		{"negative account", gin.H{"symbol": "EURUSD", "accountSize": -5, "tradeRiskPercent": 1}, "accountSize"},
		{"zero risk", gin.H{"symbol": "EURUSD", "accountSize": 1000, "tradeRiskPercent": 0}, "tradeRiskPercent"},
		{"missing risk", gin.H{"symbol": "EURUSD", "accountSize": 1000}, "tradeRiskPercent"},
		{"string risk", `{"symbol":"EURUSD","accountSize":1000,"tradeRiskPercent":"two"}`, ""},
		{"not json", `symbol=EURUSD`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, s.Handler(), "/api/signal", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			if tt.field != "" {
				assert.Contains(t, w.Body.String(), `"field":"`+tt.field+`"`)
			}
		})
	}
	assert.Zero(t, gen.calls)
}

func TestVariationsClampRiskAndCount(t *testing.T) {
	s := NewServer(Options{Generator: newEngine(nil), VariationTimeFrame: "M15"})

	w := post(t, s.Handler(), "/api/variations", gin.H{
		"symbol": "EURUSD", "accountSize": 10000, "tradeRiskPercent": 150, "numVariations": 9,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp variationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Variations, 5)
	assert.True(t, resp.Fallback)
	for _, v := range resp.Variations {
		assert.Equal(t, 5.0, v.Risk.RiskPercent)
		assert.Equal(t, 500.0, v.Risk.RiskAmount)
		assert.True(t, v.Risk.Aggressive)
		assert.Equal(t, "M15", v.Signal.TimeFrame)
		assert.True(t, v.Signal.OrderingHolds())
	}
}

func TestVariationsDefaultCountAndLowRisk(t *testing.T) {
	s := NewServer(Options{Generator: newEngine(nil)})

	w := post(t, s.Handler(), "/api/variations", gin.H{"symbol": "XAUUSD", "accountSize": 1000, "tradeRiskPercent": 0.01})
	require.Equal(t, http.StatusOK, w.Code)

	var resp variationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Variations, 3)
	assert.Equal(t, 0.1, resp.Variations[0].Risk.RiskPercent)
	assert.Equal(t, 1.0, resp.Variations[0].Risk.RiskAmount)
}

func TestPositionSize(t *testing.T) {
	s := NewServer(Options{Generator: &countingGenerator{}})

	t.Run("eurusd", func(t *testing.T) {
		w := post(t, s.Handler(), "/api/position-size", gin.H{
			"symbol": "EUR/USD", "accountSize": 5000, "tradeRiskPercent": 1,
			"side": "buy", "entryPrice": 1.1, "stopLoss": 1.095, "takeProfit1": 1.11,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Instrument market.Instrument `json:"instrument"`
			Risk       riskView          `json:"risk"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 100000.0, resp.Instrument.UnitsPerLot)
		assert.Equal(t, 50.0, resp.Risk.RiskAmount)
		assert.Equal(t, 0.005, resp.Risk.StopDistance)
		assert.Equal(t, 10000.0, resp.Risk.Units)
		assert.Equal(t, 0.1, resp.Risk.Lots)
		assert.Equal(t, 100.0, resp.Risk.ProfitAtTP1)
		assert.Equal(t, 0.0, resp.Risk.ProfitAtTP2)
	})

	t.Run("degenerate stop", func(t *testing.T) {
		w := post(t, s.Handler(), "/api/position-size", gin.H{
			"symbol": "XAUUSD", "accountSize": 10000, "tradeRiskPercent": 2,
			"entryPrice": 2000, "stopLoss": 2000,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Risk riskView `json:"risk"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Zero(t, resp.Risk.Units)
		assert.Zero(t, resp.Risk.Lots)
		assert.Equal(t, 200.0, resp.Risk.RiskAmount)
		assert.Contains(t, resp.Risk.Warnings, "stop distance is zero; position size set to 0")
	})

	t.Run("unknown symbol", func(t *testing.T) {
		w := post(t, s.Handler(), "/api/position-size", gin.H{
			"symbol": "ZZZFOO", "accountSize": 1000, "tradeRiskPercent": 1,
			"entryPrice": 10, "stopLoss": 9,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"positionSize":10`)
	})

	t.Run("missing entry", func(t *testing.T) {
		w := post(t, s.Handler(), "/api/position-size", gin.H{
			"symbol": "XAUUSD", "accountSize": 1000, "tradeRiskPercent": 1, "stopLoss": 9,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "entryPrice")
	})
}

func TestInstruments(t *testing.T) {
	s := NewServer(Options{Generator: &countingGenerator{}})

	w := get(s.Handler(), "/api/instruments")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Instruments []market.Instrument `json:"instruments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.NotEmpty(t, list.Instruments)

	var inst market.Instrument
	w = get(s.Handler(), "/api/instruments/eur-usd")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	assert.Equal(t, "EURUSD", inst.Symbol)
	assert.True(t, inst.Known)

	w = get(s.Handler(), "/api/instruments/zzzfoo")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	assert.False(t, inst.Known)
	assert.Equal(t, 1.0, inst.UnitsPerLot)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	s := NewServer(Options{Generator: &countingGenerator{}, OracleConfigured: true})

	w := get(s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"oracle":true`)

	w = get(s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tradeidea_http_requests_total")

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/signal", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOracleEndpointsRateLimited(t *testing.T) {
	l := middleware.NewIPRateLimiter(rate.Every(time.Hour), 1)
	defer l.Stop()
	s := NewServer(Options{Generator: newEngine(nil), Limiter: l})

	body := gin.H{"symbol": "XAUUSD", "accountSize": 1000, "tradeRiskPercent": 1}
	assert.Equal(t, http.StatusOK, post(t, s.Handler(), "/api/signal", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, s.Handler(), "/api/signal", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, s.Handler(), "/api/variations", body).Code)

	// the calculator is not behind the limiter
	calc := gin.H{"symbol": "XAUUSD", "accountSize": 1000, "tradeRiskPercent": 1, "entryPrice": 2000, "stopLoss": 1990}
	assert.Equal(t, http.StatusOK, post(t, s.Handler(), "/api/position-size", calc).Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := NewServer(Options{Generator: &countingGenerator{}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
