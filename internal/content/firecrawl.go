package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultFirecrawlURL is the Firecrawl v1 API root.
const DefaultFirecrawlURL = "https://api.firecrawl.dev/v1"

// Firecrawl fetches article markdown through the Firecrawl scrape API.
type Firecrawl struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewFirecrawl returns a Firecrawl extractor. An empty baseURL selects
// DefaultFirecrawlURL.
func NewFirecrawl(apiKey, baseURL string, timeout time.Duration) *Firecrawl {
	if baseURL == "" {
		baseURL = DefaultFirecrawlURL
	}
	return &Firecrawl{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Name identifies the extractor in logs and metrics.
func (f *Firecrawl) Name() string { return "firecrawl" }

// Extract returns the page at url as markdown.
func (f *Firecrawl) Extract(ctx context.Context, url string) (string, error) {
	body, err := json.Marshal(scrapeRequest{URL: url, Formats: []string{"markdown"}})
	if err != nil {
		return "", fmt.Errorf("firecrawl: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("firecrawl: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("firecrawl: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("firecrawl: read response: %w", err)
	}

	var out scrapeResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode >= 400 {
		if decodeErr == nil && out.Error != "" {
			return "", fmt.Errorf("firecrawl: status %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("firecrawl: unexpected status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("firecrawl: decode response: %w", decodeErr)
	}
	return strings.TrimSpace(out.Data.Markdown), nil
}
