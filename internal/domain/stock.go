// Package domain holds the core types shared by the portfolio store, the
// fundamentals cache and the provider client.
package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrUserNotFound is returned by portfolio lookups when no user matches.
var ErrUserNotFound = errors.New("user not found")

// Fundamentals holds the valuation ratios tracked per symbol.
// Values are kept exactly as the provider returned them (e.g. "30.5", "None", "-").
type Fundamentals struct {
	Name          string `json:"name" msgpack:"name"`
	PERatio       string `json:"PE_RATIO" msgpack:"PE_RATIO"`
	PEGRatio      string `json:"PEG_RATIO" msgpack:"PEG_RATIO"`
	PBRatio       string `json:"PB_RATIO" msgpack:"PB_RATIO"`
	EVEBITDARatio string `json:"EV_EBITDA_RATIO" msgpack:"EV_EBITDA_RATIO"`
}

// Fields returns the flat field map stored for a cache entry.
func (f Fundamentals) Fields() map[string]string {
	return map[string]string{
		"name":            f.Name,
		"PE_RATIO":        f.PERatio,
		"PEG_RATIO":       f.PEGRatio,
		"PB_RATIO":        f.PBRatio,
		"EV_EBITDA_RATIO": f.EVEBITDARatio,
	}
}

// FundamentalsFromFields is the inverse of Fields. Missing keys become "".
func FundamentalsFromFields(fields map[string]string) Fundamentals {
	return Fundamentals{
		Name:          fields["name"],
		PERatio:       fields["PE_RATIO"],
		PEGRatio:      fields["PEG_RATIO"],
		PBRatio:       fields["PB_RATIO"],
		EVEBITDARatio: fields["EV_EBITDA_RATIO"],
	}
}

// Stock is one entry in a user's portfolio.
type Stock struct {
	ID string `json:"id"`
	Fundamentals
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User owns an ordered portfolio of stocks.
type User struct {
	Username  string    `json:"username"`
	Portfolio []Stock   `json:"portfolio"`
	CreatedAt time.Time `json:"created_at"`
}

// PortfolioEntry is a stock entry together with its owner, as enumerated by the refresh sweep.
type PortfolioEntry struct {
	Username string
	Stock    Stock
}

// NormalizeSymbol trims and uppercases a ticker. It is the only input normalization applied.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
