// Package enrich fetches token metadata from the launch platform's HTTP
// API. Enrichment is best-effort and triggered once per qualification.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"meme-token-ledger/internal/domain"
)

// Fetcher is the metadata port the lifecycle engine depends on.
// A (nil, nil) return means the platform has no metadata for the token.
type Fetcher interface {
	Fetch(ctx context.Context, tokenAddress string) (*domain.TokenMetadata, error)
}

// Client talks to the platform's private token API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a metadata client. An empty baseURL uses the public
// platform endpoint; tests point it at a local stub.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://four.meme"
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenResponse struct {
	Code int `json:"code"`
	Data *struct {
		Image       string `json:"image"`
		WebURL      string `json:"webUrl"`
		TwitterURL  string `json:"twitterUrl"`
		TelegramURL string `json:"telegramUrl"`
	} `json:"data"`
}

// Fetch returns the token's social metadata, or nil when the platform
// does not know the token.
func (c *Client) Fetch(ctx context.Context, tokenAddress string) (*domain.TokenMetadata, error) {
	url := fmt.Sprintf("%s/meme-api/v1/private/token/get/v2?address=%s", c.baseURL, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", tokenAddress, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata for %s: unexpected status %d", tokenAddress, resp.StatusCode)
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", tokenAddress, err)
	}
	if payload.Code != 0 || payload.Data == nil {
		return nil, nil
	}

	return &domain.TokenMetadata{
		Image:    payload.Data.Image,
		Website:  payload.Data.WebURL,
		Twitter:  payload.Data.TwitterURL,
		Telegram: payload.Data.TelegramURL,
	}, nil
}
