package testing

import (
	"context"
	"sync"

	"github.com/aristath/stocktracker/internal/clients/alphavantage"
	"github.com/aristath/stocktracker/internal/events"
)

// MockProvider is a mock implementation of alphavantage.ClientInterface for testing.
// It answers from the overview fixtures and records every call.
type MockProvider struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	gate  chan struct{}
}

// NewMockProvider creates a new mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{calls: make(map[string]int)}
}

// SetError sets the error to return
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Hold makes every call block until the returned release function is called
func (m *MockProvider) Hold() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	gate := make(chan struct{})
	m.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// GetCompanyOverview returns the fixture overview for symbol
func (m *MockProvider) GetCompanyOverview(ctx context.Context, symbol string) (*alphavantage.CompanyOverview, error) {
	m.mu.Lock()
	m.calls[symbol]++
	gate := m.gate
	err := m.err
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return NewOverviewFixture(symbol), nil
}

// Calls returns how many times symbol was requested
func (m *MockProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// TotalCalls returns the number of requests across all symbols
func (m *MockProvider) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// MockEventEmitter records emitted events for testing
type MockEventEmitter struct {
	mu     sync.Mutex
	events []events.EventData
}

// NewMockEventEmitter creates a new mock event emitter
func NewMockEventEmitter() *MockEventEmitter {
	return &MockEventEmitter{}
}

// EmitTyped records the event
func (m *MockEventEmitter) EmitTyped(module string, data events.EventData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, data)
}

// Events returns every recorded event of the given type
func (m *MockEventEmitter) Events(eventType events.EventType) []events.EventData {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.EventData
	for _, e := range m.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
