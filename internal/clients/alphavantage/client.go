// Package alphavantage provides a client for the Alpha Vantage stock data API.
// Only the OVERVIEW function is used: it carries the valuation ratios the
// tracker stores per symbol.
package alphavantage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/domain"
)

const (
	defaultBaseURL = "https://www.alphavantage.co/query"
	// Responses larger than this are not overview documents
	maxBodyBytes = 1 << 20
)

// ClientInterface is the subset of the client used by the fetcher.
type ClientInterface interface {
	GetCompanyOverview(ctx context.Context, symbol string) (*CompanyOverview, error)
}

// CompanyOverview is the OVERVIEW response. Numeric fields are left as the
// provider's strings ("None" and "-" included).
type CompanyOverview struct {
	Symbol           string `json:"Symbol"`
	Name             string `json:"Name"`
	Exchange         string `json:"Exchange"`
	Currency         string `json:"Currency"`
	Sector           string `json:"Sector"`
	PERatio          string `json:"PERatio"`
	PEGRatio         string `json:"PEGRatio"`
	PriceToBookRatio string `json:"PriceToBookRatio"`
	EVToEBITDA       string `json:"EVToEBITDA"`
}

// ToFundamentals maps provider field names to the stored schema.
func (o *CompanyOverview) ToFundamentals() domain.Fundamentals {
	return domain.Fundamentals{
		Name:          o.Symbol,
		PERatio:       o.PERatio,
		PEGRatio:      o.PEGRatio,
		PBRatio:       o.PriceToBookRatio,
		EVEBITDARatio: o.EVToEBITDA,
	}
}

// Client is the Alpha Vantage API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
	requests   atomic.Int64
}

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "alphavantage").Logger(),
	}
}

// SetBaseURL points the client at a different endpoint (proxies, tests).
func (c *Client) SetBaseURL(baseURL string) {
	if baseURL != "" {
		c.baseURL = baseURL
	}
}

// RequestCount returns the number of HTTP requests issued since start.
func (c *Client) RequestCount() int64 {
	return c.requests.Load()
}

// GetCompanyOverview fetches the OVERVIEW document for symbol.
// There is no retry: any transport failure, non-200 status or in-band error is returned.
func (c *Client) GetCompanyOverview(ctx context.Context, symbol string) (*CompanyOverview, error) {
	body, err := c.doRequest(ctx, "OVERVIEW", map[string]string{"symbol": symbol})
	if err != nil {
		return nil, err
	}

	overview, err := parseCompanyOverview(body)
	if err != nil {
		return nil, err
	}
	if overview.Symbol == "" {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}

	return overview, nil
}

func (c *Client) doRequest(ctx context.Context, function string, params map[string]string) ([]byte, error) {
	query := url.Values{}
	query.Set("function", function)
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "stocktracker")
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("function", function).Interface("params", params).Msg("Making Alpha Vantage request")
	c.requests.Add(1)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("function", function).Msg("Alpha Vantage request failed")
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error().Int("status", resp.StatusCode).Str("function", function).Msg("Alpha Vantage response status")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: truncate(string(body), 200)}
	}

	if err := c.checkAPIError(body); err != nil {
		c.log.Error().Err(err).Str("function", function).Msg("Alpha Vantage returned an error")
		return nil, err
	}

	return body, nil
}

// checkAPIError detects error payloads that Alpha Vantage returns with status 200.
func (c *Client) checkAPIError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if bytes.HasPrefix(trimmed, []byte("Thank you for using Alpha Vantage")) {
		return ErrRateLimitExceeded{}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		// Not an object; let the parser report it
		return nil
	}

	if _, ok := envelope["Note"]; ok {
		return ErrRateLimitExceeded{}
	}
	if raw, ok := envelope["Information"]; ok {
		msg := rawString(raw)
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "rate limit") {
			return ErrRateLimitExceeded{}
		}
		if strings.Contains(lower, "apikey") || strings.Contains(lower, "api key") {
			return ErrInvalidAPIKey{}
		}
		return &UpstreamError{Message: msg}
	}
	if raw, ok := envelope["Error Message"]; ok {
		msg := rawString(raw)
		if strings.Contains(strings.ToLower(msg), "apikey") {
			return ErrInvalidAPIKey{}
		}
		return &UpstreamError{Message: msg}
	}

	return nil
}

func parseCompanyOverview(body []byte) (*CompanyOverview, error) {
	var overview CompanyOverview
	if err := json.Unmarshal(body, &overview); err != nil {
		return nil, fmt.Errorf("failed to decode overview: %w", err)
	}
	return &overview, nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
