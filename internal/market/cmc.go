// Package market is the CoinMarketCap-compatible price oracle client the
// TAO price shovel uses to backfill one sample per day up to a cutover block
// and every 25 blocks after it (spec.md §6, §4.H).
//
// Grounded on the teacher's market/cryptocompare.go (HTTP client shape:
// context-aware request, bounded timeout, status/JSON-shape error handling)
// generalized from CryptoCompare's histoday endpoint to CoinMarketCap's
// quotes/historical and quotes/latest contract.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/substrate-warehouse/shovels/internal/shovelerr"
)

const (
	baseURL = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/quotes"
	// tokenCMCID is CoinMarketCap's numeric id for the network's native
	// token, fixed per spec.md §6.
	tokenCMCID = "22974"
	requestTimeout = 30 * time.Second
)

// Quote is one USD price sample.
type Quote struct {
	Price      float64
	MarketCap  float64
	Volume24h  float64
	AsOf       time.Time
}

// Client calls the CoinMarketCap quotes API with the account's pro API key.
type Client struct {
	apiKey string
	base   string
	http   *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey, base: baseURL, http: &http.Client{Timeout: requestTimeout}}
}

// recentWindow is how far back a timestamp can be and still use the finer
// 5-minute interval; older timestamps fall back to 24h daily samples,
// matching shovel_tao_price/cmc_client.py's get_price_by_time.
const recentWindow = 48 * time.Hour

// Historical returns the price sample closest to ts, using the finer 5m
// interval for recent timestamps and falling back to 24h daily samples
// further back (spec.md §6's interval∈{5m,24h}/count=1 historical contract).
func (c *Client) Historical(ctx context.Context, ts time.Time) (Quote, error) {
	interval := "24h"
	if time.Since(ts) <= recentWindow {
		interval = "5m"
	}
	url := fmt.Sprintf("%s/historical?id=%s&convert=USD&interval=%s&time_start=%d&count=1",
		c.base, tokenCMCID, interval, ts.Unix())

	var body struct {
		Data struct {
			Quotes []struct {
				Quote struct {
					USD struct {
						Price     float64 `json:"price"`
						MarketCap float64 `json:"market_cap"`
						Volume24h float64 `json:"volume_24h"`
					} `json:"USD"`
				} `json:"quote"`
				Timestamp string `json:"timestamp"`
			} `json:"quotes"`
		} `json:"data"`
	}
	if err := c.get(ctx, url, &body); err != nil {
		return Quote{}, err
	}
	if len(body.Data.Quotes) == 0 {
		return Quote{}, fmt.Errorf("market: historical quote for %s returned no samples", ts)
	}
	q := body.Data.Quotes[0]
	asOf, err := time.Parse(time.RFC3339, q.Timestamp)
	if err != nil {
		asOf = ts
	}
	return Quote{
		Price:     q.Quote.USD.Price,
		MarketCap: q.Quote.USD.MarketCap,
		Volume24h: q.Quote.USD.Volume24h,
		AsOf:      asOf,
	}, nil
}

// Latest returns the current price, keyed under the token's id string in
// CoinMarketCap's "latest" response shape.
func (c *Client) Latest(ctx context.Context) (Quote, error) {
	url := fmt.Sprintf("%s/latest?id=%s&convert=USD", c.base, tokenCMCID)

	var body struct {
		Data map[string]struct {
			Quote struct {
				USD struct {
					Price     float64 `json:"price"`
					MarketCap float64 `json:"market_cap"`
					Volume24h float64 `json:"volume_24h"`
					LastUpdated string `json:"last_updated"`
				} `json:"USD"`
			} `json:"quote"`
		} `json:"data"`
	}
	if err := c.get(ctx, url, &body); err != nil {
		return Quote{}, err
	}
	entry, ok := body.Data[tokenCMCID]
	if !ok {
		return Quote{}, fmt.Errorf("market: latest response missing id %s", tokenCMCID)
	}
	asOf, err := time.Parse(time.RFC3339, entry.Quote.USD.LastUpdated)
	if err != nil {
		asOf = time.Now().UTC()
	}
	return Quote{
		Price:     entry.Quote.USD.Price,
		MarketCap: entry.Quote.USD.MarketCap,
		Volume24h: entry.Quote.USD.Volume24h,
		AsOf:      asOf,
	}, nil
}

// get issues the request and classifies the response per spec.md §6/§7: 429
// is retryable (honouring Retry-After by sleeping before returning), 401/403
// are fatal, 5xx is retryable, anything else unexpected is also treated as
// retryable since it's most likely a transient oracle hiccup.
func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return shovelerr.NewDatabaseConnectionError("price oracle request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if wait := retryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		return shovelerr.NewDatabaseConnectionError("price oracle request", fmt.Errorf("rate limited"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("market: fatal auth error: %s", resp.Status)
	case resp.StatusCode >= 500:
		return shovelerr.NewDatabaseConnectionError("price oracle request", fmt.Errorf("server error: %s", resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return shovelerr.NewDatabaseConnectionError("price oracle request", fmt.Errorf("unexpected status: %s", resp.Status))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("market: decode response: %w", err)
	}
	return nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
