// Package unsplash is a minimal client for the Unsplash photo search API,
// used as the stock-photo fallback when image generation is unavailable.
package unsplash

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
	URL       string        `split_words:"true" default:"https://api.unsplash.com"`
	AccessKey string        `envconfig:"ACCESS_KEY" split_words:"true"`
	Timeout   time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("unsplash url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid unsplash url: %w", err)
	}
	if strings.TrimSpace(cfg.AccessKey) == "" {
		return nil, errors.New("unsplash access key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:   baseURL,
		accessKey: strings.TrimSpace(cfg.AccessKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// styleQueries maps a recognized style tag to a search query that returns
// on-theme photos. Unmatched styles fall back to the raw event description.
var styleQueries = map[string]string{
	"rustic":      "rustic event decoration wood",
	"elegant":     "elegant event venue chandelier",
	"minimalist":  "minimalist event decor white",
	"bohemian":    "bohemian party pampas decor",
	"vintage":     "vintage party decoration retro",
	"tropical":    "tropical party palm decor",
	"garden":      "garden party outdoor flowers",
	"industrial":  "industrial loft event venue",
	"glam":        "glamorous party gold decor",
	"beach":       "beach party sunset decor",
	"modern":      "modern event venue design",
	"traditional": "traditional ceremony decoration",
}

// QueryForPrompt maps a free-text generation prompt onto a curated search
// query when it mentions a recognized style, else searches the prompt as-is.
func QueryForPrompt(prompt string) string {
	for _, word := range strings.Fields(strings.ToLower(prompt)) {
		word = strings.Trim(word, ",.!?")
		if q, ok := styleQueries[word]; ok {
			return q
		}
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "celebration party decoration"
	}
	return prompt
}

// Photo is one search result.
type Photo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	URLs        struct {
		Regular string `json:"regular"`
		Thumb   string `json:"thumb"`
	} `json:"urls"`
}

type searchResponse struct {
	Results []Photo `json:"results"`
}

// Search returns up to perPage photos matching the query.
func (c *Client) Search(ctx context.Context, query string, perPage int) ([]Photo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}
	if perPage <= 0 || perPage > 30 {
		perPage = 10
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", fmt.Sprintf("%d", perPage))
	params.Set("orientation", "landscape")

	endpoint := c.baseURL + "/search/photos?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build unsplash request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute unsplash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read unsplash response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unsplash http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode unsplash response: %w", err)
	}
	return parsed.Results, nil
}
