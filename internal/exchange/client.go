// Package exchange fetches the official USD to bolívar rate.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultURL = "https://pydolarve.org/api/v1/dollar?page=bcv"

var ErrInvalidRate = errors.New("invalid exchange rate")

// RateFetcher returns the current number of bolívares per US dollar.
type RateFetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, error)
}

type Client struct {
	url        string
	httpClient *http.Client
}

var _ RateFetcher = (*Client)(nil)

// NewClient creates a client for url. An empty url uses DefaultURL.
func NewClient(url string, httpClient *http.Client) *Client {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{url: url, httpClient: httpClient}
}

// rateResponse is the subset of the provider payload we read. The price is
// sometimes sent as a string, which decimal accepts as well.
type rateResponse struct {
	Monitors struct {
		USD struct {
			Price decimal.Decimal `json:"price"`
		} `json:"usd"`
	} `json:"monitors"`
}

// FetchRate reads monitors.usd.price. Non-2xx answers, malformed bodies and
// non-positive prices are errors.
func (c *Client) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, fmt.Errorf("fetch rate: HTTP %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate: %w", err)
	}
	price := body.Monitors.USD.Price
	if !price.IsPositive() {
		return decimal.Zero, ErrInvalidRate
	}
	return price, nil
}
