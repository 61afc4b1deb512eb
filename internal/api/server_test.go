package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinPilot/internal/adapters/paperexchange"
	"coinPilot/internal/domain"
	"coinPilot/internal/engine"
	"coinPilot/internal/events"
	"coinPilot/internal/ports"
)

type mockLogger struct{}

func (mockLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (mockLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (mockLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (mockLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

// memoryRepo is a thread-safe in-memory stand-in for every repository port.
type memoryRepo struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	trades    []*domain.Trade
	state     *domain.BotState
	decisions []*domain.AIDecision
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{positions: make(map[string]*domain.Position)}
}

func (r *memoryRepo) CreatePosition(_ context.Context, pos *domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[pos.ID] = pos
	return nil
}

func (r *memoryRepo) ClosePosition(_ context.Context, id string, closedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos, ok := r.positions[id]; ok && pos.ClosedAt == nil {
		t := closedAt
		pos.ClosedAt = &t
	}
	return nil
}

func (r *memoryRepo) UpdateStopLoss(_ context.Context, id string, newStop float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos, ok := r.positions[id]; ok {
		pos.StopLoss = newStop
	}
	return nil
}

func (r *memoryRepo) FindOpen(context.Context) ([]*domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Position, 0)
	for _, pos := range r.positions {
		if pos.ClosedAt == nil {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (r *memoryRepo) FindOpenBySymbol(_ context.Context, symbol string) (*domain.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pos := range r.positions {
		if pos.Symbol == symbol && pos.ClosedAt == nil {
			return pos, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) CreateTrade(_ context.Context, trade *domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append([]*domain.Trade{trade}, r.trades...)
	return nil
}

func (r *memoryRepo) FindRecent(_ context.Context, limit int) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.trades) {
		limit = len(r.trades)
	}
	return append([]*domain.Trade(nil), r.trades[:limit]...), nil
}

func (r *memoryRepo) CountTodayBySymbol(context.Context, string) (int, error) { return 0, nil }

func (r *memoryRepo) GetBotState(context.Context) (*domain.BotState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return &domain.BotState{Status: domain.StatusStopped}, nil
	}
	cp := *r.state
	return &cp, nil
}

func (r *memoryRepo) UpdateBotState(_ context.Context, state *domain.BotState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *state
	r.state = &cp
	return nil
}

func (r *memoryRepo) CreateDecision(_ context.Context, d *domain.AIDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append([]*domain.AIDecision{d}, r.decisions...)
	return nil
}

func (r *memoryRepo) FindRecentDecisions(_ context.Context, limit int) ([]*domain.AIDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.decisions) {
		limit = len(r.decisions)
	}
	return append([]*domain.AIDecision(nil), r.decisions[:limit]...), nil
}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	paper, err := paperexchange.New(paperexchange.Config{
		InitialBalance: 1000,
		Seed:           7,
		Logger:         mockLogger{},
	})
	require.NoError(t, err)

	repo := newMemoryRepo()
	bus := events.NewBus()
	eng := engine.New(engine.Config{
		Symbols:         []string{"BTCUSDT"},
		TradingInterval: time.Hour,
		ReviewInterval:  time.Hour,
	}, engine.Deps{
		Logger:    mockLogger{},
		Exchanges: map[domain.TradeMode]ports.ExchangeClient{domain.ModePaper: paper},
		Positions: repo,
		Trades:    repo,
		State:     repo,
		Decisions: repo,
		Publisher: bus,
	})
	t.Cleanup(func() { eng.Stop(context.Background()) })

	return NewServer(ServerConfig{Host: "127.0.0.1", Port: 0, ProductionMode: true}, eng, bus, mockLogger{}), eng
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestBotStatus_DefaultStopped(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/bot/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, string(domain.StatusStopped), body["status"])
	assert.Equal(t, float64(0), body["openPositions"])
}

func TestStartStopBot(t *testing.T) {
	s, eng := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/bot/start", `{"strategy":"trend_following","mode":"paper"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, string(domain.StatusRunning), body["status"])
	assert.Equal(t, string(domain.StrategyTrendFollowing), body["strategy"])
	assert.Equal(t, domain.StatusRunning, eng.Status().Status)

	w = doRequest(s, http.MethodPost, "/api/bot/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StatusStopped, eng.Status().Status)
}

func TestStartBot_MissingBackendIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/bot/start", `{"strategy":"adaptive","mode":"real"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeStrategy(t *testing.T) {
	s, eng := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/bot/strategy", `{"strategy":"momentum"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.StrategyMomentum, eng.Status().StrategyID)

	w = doRequest(s, http.MethodPost, "/api/bot/strategy", `{"strategy":"astrology"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetAutoSelect(t *testing.T) {
	s, eng := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/bot/auto-select", `{"enabled":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, eng.Status().AIEnabled)
}

func TestStrategiesCatalog(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/strategies", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	strategies, ok := body["strategies"].([]interface{})
	require.True(t, ok)
	require.Len(t, strategies, len(domain.Catalog()))

	active := 0
	for _, raw := range strategies {
		entry := raw.(map[string]interface{})
		assert.NotEmpty(t, entry["name"])
		if entry["active"] == true {
			active++
		}
	}
	assert.Equal(t, 1, active, "exactly one strategy is marked active")
}

func TestRecordNews(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/news", `{"symbol":"BTCUSDT","sentiment":25,"relevance":80}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/api/news", `{"sentiment":25,"relevance":80}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradesEndpoint_EmptyList(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/trades", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	trades, ok := body["trades"].([]interface{})
	require.True(t, ok)
	assert.Empty(t, trades)
}

func TestPriceHistory_RequiresSymbol(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/prices/history", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodGet, "/api/prices/history?symbol=BTCUSDT", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRiskMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/risk/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Contains(t, body, "maxOpenTrades")
	assert.Equal(t, false, body["circuitBreakerActive"])
}

func TestResetCircuitBreakerEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/api/risk/reset-circuit-breaker", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["circuitBreakerActive"])
}
