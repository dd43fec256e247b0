package portfolio

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/stocktracker/internal/domain"
)

// RatioStats holds descriptive statistics for one valuation ratio across a portfolio.
// Non-numeric values ("None", "-", "") are not counted.
type RatioStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary is the read-side numeric view of a portfolio
type Summary struct {
	Username string                `json:"username"`
	Stocks   int                   `json:"stocks"`
	Ratios   map[string]RatioStats `json:"ratios"`
}

// Summarize computes per-ratio statistics for the user's portfolio.
func Summarize(user *domain.User) Summary {
	columns := map[string][]float64{
		"PE_RATIO":        nil,
		"PEG_RATIO":       nil,
		"PB_RATIO":        nil,
		"EV_EBITDA_RATIO": nil,
	}

	for _, s := range user.Portfolio {
		for key, raw := range s.Fields() {
			if _, tracked := columns[key]; !tracked {
				continue
			}
			if v, ok := parseRatio(raw); ok {
				columns[key] = append(columns[key], v)
			}
		}
	}

	summary := Summary{
		Username: user.Username,
		Stocks:   len(user.Portfolio),
		Ratios:   make(map[string]RatioStats, len(columns)),
	}
	for key, values := range columns {
		summary.Ratios[key] = describe(values)
	}
	return summary
}

func describe(values []float64) RatioStats {
	if len(values) == 0 {
		return RatioStats{}
	}

	// stat.Quantile requires sorted input
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return RatioStats{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
}

// parseRatio converts a provider ratio string to a number, rejecting placeholders.
func parseRatio(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "-" || strings.EqualFold(raw, "none") {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
