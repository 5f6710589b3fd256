package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// CoinGeckoClient fetches OHLC candles from the CoinGecko API
type CoinGeckoClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewCoinGeckoClient creates a new CoinGecko client.
// apiKey is optional; when set it is sent as the demo API key header.
func NewCoinGeckoClient(baseURL, apiKey string, log zerolog.Logger) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	return &CoinGeckoClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "coingecko").Logger(),
	}
}

// GetOHLC fetches OHLC candles for a coin over the last `days` days.
// CoinGecko returns rows of [timestamp_ms, open, high, low, close].
// Candle granularity is decided by the API based on the window.
func (c *CoinGeckoClient) GetOHLC(ctx context.Context, coinID, vsCurrency string, days int) ([]domain.Candle, error) {
	if coinID == "" {
		return nil, fmt.Errorf("coin id is required")
	}
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if days <= 0 {
		days = 1
	}

	endpoint := fmt.Sprintf("%s/coins/%s/ohlc?vs_currency=%s&days=%d",
		c.baseURL, url.PathEscape(coinID), url.QueryEscape(vsCurrency), days)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build OHLC request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	c.log.Debug().Str("coin", coinID).Int("days", days).Msg("Fetching OHLC")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OHLC request failed for %s: %w", coinID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited by CoinGecko for %s", coinID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CoinGecko returned status %d for %s", resp.StatusCode, coinID)
	}

	var raw [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse OHLC response for %s: %w", coinID, err)
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 5 {
			continue
		}
		candles = append(candles, domain.Candle{
			TimestampUTC: int64(row[0]) / 1000, // ms to seconds
			Open:         row[1],
			High:         row[2],
			Low:          row[3],
			Close:        row[4],
		})
	}

	return candles, nil
}
