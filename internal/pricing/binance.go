package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// BinanceSource fetches spot prices from the Binance public ticker API.
type BinanceSource struct {
	baseURL string
	client  *http.Client

	// pairs maps cache symbols to Binance trading pairs.
	pairs map[string]string
}

// DefaultBinancePairs maps the whitelisted volatile assets to their
// Binance USDT pairs.
var DefaultBinancePairs = map[string]string{
	"CAKE":  "CAKEUSDT",
	"ASTER": "ASTERUSDT",
	"BNB":   "BNBUSDT",
}

// NewBinanceSource creates a Binance-backed price source. An empty
// baseURL uses the public endpoint; tests point it at a local stub.
func NewBinanceSource(baseURL string, pairs map[string]string) *BinanceSource {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if pairs == nil {
		pairs = DefaultBinancePairs
	}
	return &BinanceSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		pairs:   pairs,
	}
}

// FetchUSD resolves one symbol via the ticker endpoint.
func (b *BinanceSource) FetchUSD(ctx context.Context, symbol string) (float64, error) {
	pair, ok := b.pairs[symbol]
	if !ok {
		return 0, fmt.Errorf("no binance pair mapped for %s", symbol)
	}

	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.baseURL, pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build ticker request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker %s: %w", pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ticker %s: unexpected status %d", pair, resp.StatusCode)
	}

	var payload struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode ticker %s: %w", pair, err)
	}

	price, err := strconv.ParseFloat(payload.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", payload.Price, err)
	}
	return price, nil
}
