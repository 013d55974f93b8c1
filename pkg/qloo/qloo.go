// Package qloo is a minimal client for the Qloo taste-recommendation REST API.
package qloo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	URL     string        `split_words:"true" default:"https://hackathon.api.qloo.com"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("qloo url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid qloo url: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("qloo api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// WithHTTPClient swaps the underlying client, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Entity is one recommendation from the insights endpoint.
type Entity struct {
	ID         string         `json:"entity_id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Popularity float64        `json:"popularity"`
	Properties map[string]any `json:"properties"`
}

type insightsResponse struct {
	Results struct {
		Entities []Entity `json:"entities"`
	} `json:"results"`
}

// Insights queries recommendations for one entity type. filterType is a Qloo
// URN such as "urn:entity:artist" or "urn:entity:place"; query and location
// narrow the results and may be empty.
func (c *Client) Insights(ctx context.Context, filterType, query, location string, take int) ([]Entity, error) {
	if strings.TrimSpace(filterType) == "" {
		return nil, errors.New("filter type is required")
	}
	if take <= 0 {
		take = 10
	}

	params := url.Values{}
	params.Set("filter.type", filterType)
	params.Set("take", fmt.Sprintf("%d", take))
	if q := strings.TrimSpace(query); q != "" {
		params.Set("signal.interests.query", q)
	}
	if loc := strings.TrimSpace(location); loc != "" {
		params.Set("filter.location.query", loc)
	}

	endpoint := c.baseURL + "/v2/insights?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build qloo request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute qloo request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read qloo response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("qloo http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed insightsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode qloo response: %w", err)
	}
	return parsed.Results.Entities, nil
}
