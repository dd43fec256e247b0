package alphavantage

import "fmt"

// ErrRateLimitExceeded is returned when Alpha Vantage answers with a rate-limit note.
type ErrRateLimitExceeded struct{}

func (ErrRateLimitExceeded) Error() string {
	return "alpha vantage rate limit exceeded"
}

// ErrInvalidAPIKey is returned when the API key is rejected.
type ErrInvalidAPIKey struct{}

func (ErrInvalidAPIKey) Error() string {
	return "alpha vantage rejected the API key as invalid"
}

// ErrSymbolNotFound is returned when the provider has no data for a symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("alpha vantage has no overview for symbol %s", e.Symbol)
}

// UpstreamError is returned for non-200 responses and in-band error messages.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("alpha vantage API error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("alpha vantage API error: %s", e.Message)
}
