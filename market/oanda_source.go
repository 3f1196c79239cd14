package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	OandaPracticeURL = "https://api-fxpractice.oanda.com"
	OandaLiveURL     = "https://api-fxtrade.oanda.com"
)

// OandaSource 通过 OANDA v20 pricing 接口获取外汇和贵金属报价
type OandaSource struct {
	baseURL    string
	token      string
	accountID  string
	httpClient *http.Client
	table      *InstrumentTable
}

func NewOandaSource(token, accountID string, practice bool, table *InstrumentTable) *OandaSource {
	baseURL := OandaLiveURL
	if practice {
		baseURL = OandaPracticeURL
	}
	if table == nil {
		table = defaultTable
	}
	return &OandaSource{
		baseURL:    baseURL,
		token:      token,
		accountID:  accountID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		table:      table,
	}
}

func (o *OandaSource) Name() string { return "oanda" }

func (o *OandaSource) Supports(symbol string) bool {
	switch o.table.Lookup(symbol).Kind {
	case KindForex, KindMetal:
		return len(CanonicalSymbol(symbol)) == 6
	}
	return false
}

type oandaPrice struct {
	Instrument string `json:"instrument"`
	Bids       []struct {
		Price string `json:"price"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
	} `json:"asks"`
}

type oandaPricingResponse struct {
	Prices []oandaPrice `json:"prices"`
}

// Price 返回买卖价中间价
func (o *OandaSource) Price(ctx context.Context, symbol string) (float64, error) {
	inst := oandaInstrument(CanonicalSymbol(symbol))
	params := url.Values{}
	params.Set("instruments", inst)
	apiURL := fmt.Sprintf("%s/v3/accounts/%s/pricing?%s", o.baseURL, url.PathEscape(o.accountID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.token)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("oanda API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp oandaPricingResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	for _, p := range apiResp.Prices {
		if p.Instrument != inst || len(p.Bids) == 0 || len(p.Asks) == 0 {
			continue
		}
		bid, err1 := strconv.ParseFloat(p.Bids[0].Price, 64)
		ask, err2 := strconv.ParseFloat(p.Asks[0].Price, 64)
		if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
			return 0, fmt.Errorf("oanda %s: invalid quote", inst)
		}
		return (bid + ask) / 2, nil
	}
	return 0, fmt.Errorf("oanda %s: no price returned", inst)
}

// oandaInstrument EURUSD -> EUR_USD
func oandaInstrument(sym string) string {
	if len(sym) == 6 {
		return sym[:3] + "_" + sym[3:]
	}
	return sym
}
