package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/stocktracker/internal/config"
	"github.com/aristath/stocktracker/internal/di"
	"github.com/aristath/stocktracker/internal/events"
)

type testEnv struct {
	server    *httptest.Server
	container *di.Container
	provider  *atomic.Int32
}

// newTestEnv wires the full application against a fake provider
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	var providerCalls atomic.Int32
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalls.Add(1)
		symbol := r.URL.Query().Get("symbol")
		if symbol == "FAIL" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if symbol == "BRK.B" {
			// Alpha Vantage reports share classes with a dash
			symbol = "BRK-B"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"Symbol":%q,"Name":"Test Corp","PERatio":"30","PEGRatio":"2","PriceToBookRatio":"15","EVToEBITDA":"20"}`, symbol)
	}))
	t.Cleanup(provider.Close)

	cfg := &config.Config{
		DataDir:             t.TempDir(),
		Port:                3000,
		DevMode:             true,
		AlphaVantageAPIKey:  "test-key",
		AlphaVantageBaseURL: provider.URL,
		RefreshSchedule:     "0 0 * * *",
		RefreshMode:         config.RefreshModeResave,
		Backup:              &config.BackupConfig{},
	}

	container, _, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	srv := New(Config{Log: zerolog.Nop(), Port: cfg.Port, DevMode: true, Container: container})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	_, err = container.PortfolioRepo.CreateUser(context.Background(), "alice")
	require.NoError(t, err)

	return &testEnv{server: ts, container: container, provider: &providerCalls}
}

// client does not follow redirects so the 302 can be asserted
func (e *testEnv) client() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client().Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) postForm(t *testing.T, path, name string) *http.Response {
	t.Helper()
	resp, err := e.client().PostForm(e.server.URL+path, url.Values{"name": {name}})
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, map[string]interface{}{"portfolio": "ok", "client_data": "ok"}, health["databases"])
}

func TestHomeAndAuthStub(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Stock Portfolio Tracker")

	resp, _ = env.get(t, "/auth/login")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestProfile_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/profile/ghost")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User Not Found", body)
}

func TestAddViewDeleteFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postForm(t, "/profile/addstock/alice", "aapl")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/profile/alice", resp.Header.Get("Location"))
	assert.Equal(t, int32(1), env.provider.Load())

	// A second add is a no-op and does not reach the provider
	resp = env.postForm(t, "/profile/addstock/alice", "AAPL")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, int32(1), env.provider.Load())

	resp, body := env.get(t, "/profile/alice")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, strings.Count(body, "<td>AAPL</td>"))

	resp, body = env.get(t, "/api/portfolio/alice/summary")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"PE_RATIO"`)

	resp = env.postForm(t, "/profile/delete/alice", "aapl")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	_, body = env.get(t, "/api/portfolio/alice")
	var user struct {
		Portfolio []interface{} `json:"portfolio"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &user))
	assert.Empty(t, user.Portfolio)

	// The cache keeps the symbol after the delete
	exists, err := env.container.FundamentalsCache.Exists(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAddStock_ProviderRenamesSymbol(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp := env.postForm(t, "/profile/addstock/alice", "brk.b")
		assert.Equal(t, http.StatusFound, resp.StatusCode)
	}
	assert.Equal(t, int32(1), env.provider.Load())

	user, err := env.container.PortfolioRepo.FindUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, user.Portfolio, 1)
	assert.Equal(t, "BRK.B", user.Portfolio[0].Name)

	exists, err := env.container.FundamentalsCache.Exists(ctx, "BRK.B")
	require.NoError(t, err)
	assert.True(t, exists)

	resp := env.postForm(t, "/profile/delete/alice", "brk.b")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	user, err = env.container.PortfolioRepo.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, user.Portfolio)
}

func TestEvictCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.container.PortfolioRepo.CreateUser(ctx, "bob")
	require.NoError(t, err)

	env.postForm(t, "/profile/addstock/alice", "AAPL")
	require.Equal(t, int32(1), env.provider.Load())

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/cache/aapl", nil)
	require.NoError(t, err)
	resp, err := env.client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	exists, err := env.container.FundamentalsCache.Exists(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, exists)

	// alice keeps her entry; bob's add goes back to the provider
	alice, err := env.container.PortfolioRepo.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice.Portfolio, 1)

	env.postForm(t, "/profile/addstock/bob", "AAPL")
	assert.Equal(t, int32(2), env.provider.Load())

	// Evicting again is a no-op
	resp, err = env.client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAddStock_ProviderFailure(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postForm(t, "/profile/addstock/alice", "fail")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	user, err := env.container.PortfolioRepo.FindUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, user.Portfolio)
}

func TestAddStock_BlankName(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postForm(t, "/profile/addstock/alice", "  ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(0), env.provider.Load())
}

func TestSystemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.postForm(t, "/profile/addstock/alice", "MSFT")

	resp, body := env.get(t, "/api/system/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, int64(1), status.CachedSymbols)
	assert.Equal(t, int64(1), status.ProviderRequests)
	assert.Len(t, status.Databases, 2)
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.get(t, "/api/jobs")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "portfolio_refresh")

	resp, err := env.client().Post(env.server.URL+"/api/jobs/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Backups are disabled in this configuration
	resp, err = env.client().Post(env.server.URL+"/api/jobs/backup", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsWebSocket(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/events/ws?types=stock_added"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return env.container.EventBus.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Removal events are filtered out; only the add reaches the client
	env.postForm(t, "/profile/delete/alice", "NONE")
	env.postForm(t, "/profile/addstock/alice", "TSLA")

	var event events.Event
	require.NoError(t, wsjson.Read(ctx, conn, &event))
	assert.Equal(t, events.StockAdded, event.Type)
	assert.Equal(t, "TSLA", event.Data["symbol"])
	assert.Equal(t, "provider", event.Data["source"])
}
