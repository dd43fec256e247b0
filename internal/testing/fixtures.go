package testing

import (
	"github.com/aristath/stocktracker/internal/clients/alphavantage"
	"github.com/aristath/stocktracker/internal/domain"
)

// NewFundamentalsFixtures returns fundamentals keyed by symbol, with values as the provider formats them
func NewFundamentalsFixtures() map[string]domain.Fundamentals {
	return map[string]domain.Fundamentals{
		"AAPL": {Name: "AAPL", PERatio: "30", PEGRatio: "2", PBRatio: "15", EVEBITDARatio: "20"},
		"MSFT": {Name: "MSFT", PERatio: "35.12", PEGRatio: "2.41", PBRatio: "12.3", EVEBITDARatio: "24.8"},
		"TSLA": {Name: "TSLA", PERatio: "None", PEGRatio: "-", PBRatio: "9.1", EVEBITDARatio: "55.2"},
	}
}

// NewOverviewFixture returns a provider overview response for symbol built from the fundamentals fixtures.
// Unknown symbols get an overview with "None" ratios.
func NewOverviewFixture(symbol string) *alphavantage.CompanyOverview {
	f, ok := NewFundamentalsFixtures()[symbol]
	if !ok {
		f = domain.Fundamentals{Name: symbol, PERatio: "None", PEGRatio: "None", PBRatio: "None", EVEBITDARatio: "None"}
	}
	return &alphavantage.CompanyOverview{
		Symbol:           f.Name,
		Name:             f.Name + " Inc",
		Exchange:         "NASDAQ",
		Currency:         "USD",
		PERatio:          f.PERatio,
		PEGRatio:         f.PEGRatio,
		PriceToBookRatio: f.PBRatio,
		EVToEBITDA:       f.EVEBITDARatio,
	}
}
