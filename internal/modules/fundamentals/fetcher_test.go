package fundamentals

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stocktracker/internal/clients/alphavantage"
	"github.com/aristath/stocktracker/internal/domain"
)

// MockAppender is a mock portfolio appender for testing
type MockAppender struct {
	mock.Mock
}

func (m *MockAppender) AddStock(ctx context.Context, username string, f domain.Fundamentals) (domain.Stock, error) {
	args := m.Called(username, f)
	return args.Get(0).(domain.Stock), args.Error(1)
}

// MockCache is a mock cache writer for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Put(ctx context.Context, symbol string, f domain.Fundamentals) (bool, error) {
	args := m.Called(symbol, f)
	return args.Bool(0), args.Error(1)
}

// slowClient blocks every call until release is closed and counts calls.
type slowClient struct {
	calls     atomic.Int32
	release   chan struct{}
	err       error
	canonical string // Symbol reported by the provider, defaults to the requested one
}

func (c *slowClient) GetCompanyOverview(ctx context.Context, symbol string) (*alphavantage.CompanyOverview, error) {
	c.calls.Add(1)
	<-c.release
	if c.err != nil {
		return nil, c.err
	}
	reported := symbol
	if c.canonical != "" {
		reported = c.canonical
	}
	return &alphavantage.CompanyOverview{
		Symbol:           reported,
		PERatio:          "30",
		PEGRatio:         "2",
		PriceToBookRatio: "15",
		EVToEBITDA:       "20",
	}, nil
}

func readyClient() *slowClient {
	c := &slowClient{release: make(chan struct{})}
	close(c.release)
	return c
}

var aapl = domain.Fundamentals{Name: "AAPL", PERatio: "30", PEGRatio: "2", PBRatio: "15", EVEBITDARatio: "20"}

func TestFetchAndAdd_WritesPortfolioThenCache(t *testing.T) {
	client := readyClient()
	store := new(MockAppender)
	cache := new(MockCache)

	var order []string
	store.On("AddStock", "alice", aapl).Run(func(mock.Arguments) { order = append(order, "portfolio") }).
		Return(domain.Stock{ID: "id-1", Fundamentals: aapl}, nil).Once()
	cache.On("Put", "AAPL", aapl).Run(func(mock.Arguments) { order = append(order, "cache") }).
		Return(true, nil).Once()

	fetcher := NewFetcher(client, store, cache, zerolog.Nop())
	stock, err := fetcher.FetchAndAdd(context.Background(), "AAPL", "alice")
	require.NoError(t, err)

	assert.Equal(t, "id-1", stock.ID)
	assert.Equal(t, int32(1), client.calls.Load())
	assert.Equal(t, []string{"portfolio", "cache"}, order)
	store.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestFetchAndAdd_ProviderFailure(t *testing.T) {
	client := &slowClient{release: make(chan struct{}), err: &alphavantage.UpstreamError{StatusCode: 500}}
	close(client.release)
	store := new(MockAppender)
	cache := new(MockCache)

	fetcher := NewFetcher(client, store, cache, zerolog.Nop())
	_, err := fetcher.FetchAndAdd(context.Background(), "AAPL", "alice")
	require.Error(t, err)

	var upstream *alphavantage.UpstreamError
	assert.True(t, errors.As(err, &upstream))
	store.AssertNotCalled(t, "AddStock", mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestFetchAndAdd_StoreFailureSkipsCache(t *testing.T) {
	store := new(MockAppender)
	cache := new(MockCache)
	store.On("AddStock", "alice", aapl).Return(domain.Stock{}, errors.New("disk full")).Once()

	fetcher := NewFetcher(readyClient(), store, cache, zerolog.Nop())
	_, err := fetcher.FetchAndAdd(context.Background(), "AAPL", "alice")
	assert.Error(t, err)
	cache.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestFetchAndAdd_CacheFailureIsNotFatal(t *testing.T) {
	store := new(MockAppender)
	cache := new(MockCache)
	store.On("AddStock", "alice", aapl).Return(domain.Stock{ID: "id-1", Fundamentals: aapl}, nil).Once()
	cache.On("Put", "AAPL", aapl).Return(false, errors.New("cache down")).Once()

	fetcher := NewFetcher(readyClient(), store, cache, zerolog.Nop())
	stock, err := fetcher.FetchAndAdd(context.Background(), "AAPL", "alice")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", stock.Name)
}

func TestFetch_CoalescesConcurrentCalls(t *testing.T) {
	client := &slowClient{release: make(chan struct{})}
	fetcher := NewFetcher(client, new(MockAppender), new(MockCache), zerolog.Nop())

	const callers = 10
	var wg sync.WaitGroup
	results := make([]domain.Fundamentals, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fetcher.Fetch(context.Background(), "AAPL")
		}(i)
	}

	// Let every caller reach the single-flight group before releasing the provider
	require.Eventually(t, func() bool { return client.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(client.release)
	wg.Wait()

	assert.Equal(t, int32(1), client.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, aapl, results[i])
	}
}

func TestFetch_DifferentSymbolsAreNotCoalesced(t *testing.T) {
	client := readyClient()
	fetcher := NewFetcher(client, new(MockAppender), new(MockCache), zerolog.Nop())

	_, err := fetcher.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = fetcher.Fetch(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.Equal(t, int32(2), client.calls.Load())
}

func TestFetch_CancelledCallerDoesNotCancelSharedCall(t *testing.T) {
	client := readyClient()
	fetcher := NewFetcher(client, new(MockAppender), new(MockCache), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, err := fetcher.Fetch(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", f.Name)
}

func TestFetchAndAdd_NamesEntryAfterRequestedSymbol(t *testing.T) {
	client := readyClient()
	client.canonical = "BRK-B"
	store := new(MockAppender)
	cache := new(MockCache)

	brk := domain.Fundamentals{Name: "BRK.B", PERatio: "30", PEGRatio: "2", PBRatio: "15", EVEBITDARatio: "20"}
	store.On("AddStock", "alice", brk).Return(domain.Stock{ID: "id-1", Fundamentals: brk}, nil).Once()
	cache.On("Put", "BRK.B", brk).Return(true, nil).Once()

	fetcher := NewFetcher(client, store, cache, zerolog.Nop())
	stock, err := fetcher.FetchAndAdd(context.Background(), "BRK.B", "alice")
	require.NoError(t, err)

	assert.Equal(t, "BRK.B", stock.Name)
	store.AssertExpectations(t)
	cache.AssertExpectations(t)
}
