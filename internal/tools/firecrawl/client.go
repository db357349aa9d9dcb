package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.firecrawl.dev"
	scrapePath     = "/v1/scrape"

	// page-side limits forwarded to Firecrawl, in milliseconds
	scrapeTimeoutMS = 90000
	waitForMS       = 8000
)

// ErrNotConfigured is returned when no API key is set
var ErrNotConfigured = errors.New("Firecrawl not available or API key not set")

// Client calls the Firecrawl scrape endpoint with JSON extraction
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *logrus.Logger
}

// Config configures a Client
type Config struct {
	APIKey  string
	BaseURL string
	// HTTPTimeout bounds the whole HTTP exchange; the caller's context still applies
	HTTPTimeout time.Duration
	Logger      *logrus.Logger
}

// ScrapeRequest is the body of POST /v1/scrape
type ScrapeRequest struct {
	URL         string       `json:"url"`
	Formats     []string     `json:"formats"`
	JSONOptions *JSONOptions `json:"jsonOptions,omitempty"`
	Timeout     int          `json:"timeout,omitempty"`
	WaitFor     int          `json:"waitFor,omitempty"`
}

// JSONOptions asks Firecrawl to extract structured data matching Schema
type JSONOptions struct {
	Schema map[string]interface{} `json:"schema"`
	Prompt string                 `json:"prompt"`
}

// ScrapeResponse is the subset of the scrape response the tools read
type ScrapeResponse struct {
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Data    ScrapeData `json:"data"`
}

// ScrapeData holds the extraction output
type ScrapeData struct {
	JSON     json.RawMessage `json:"json,omitempty"`
	Metadata struct {
		StatusCode int    `json:"statusCode,omitempty"`
		SourceURL  string `json:"sourceURL,omitempty"`
	} `json:"metadata"`
}

// NewClient creates a Firecrawl client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		logger:  cfg.Logger,
	}
}

// Configured reports whether an API key is set
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Extract scrapes pageURL and decodes the extracted JSON into out. It returns false
// when the page yielded no extraction.
func (c *Client) Extract(ctx context.Context, pageURL string, opts JSONOptions, out interface{}) (bool, error) {
	if !c.Configured() {
		return false, ErrNotConfigured
	}

	resp, err := c.Scrape(ctx, ScrapeRequest{
		URL:         pageURL,
		Formats:     []string{"json"},
		JSONOptions: &opts,
		Timeout:     scrapeTimeoutMS,
		WaitFor:     waitForMS,
	})
	if err != nil {
		return false, err
	}
	raw := bytes.TrimSpace(resp.Data.JSON)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode extraction: %w", err)
	}
	return true, nil
}

// Scrape performs one scrape call
func (c *Client) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scrapePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	c.logger.WithField("url", req.URL).Debug("Firecrawl scrape")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("firecrawl request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("firecrawl API error: %s - %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	var scrape ScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&scrape); err != nil {
		return nil, fmt.Errorf("failed to decode firecrawl response: %w", err)
	}
	if !scrape.Success {
		msg := scrape.Error
		if msg == "" {
			msg = "scrape was not successful"
		}
		return nil, fmt.Errorf("firecrawl API error: %s", msg)
	}
	return &scrape, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
