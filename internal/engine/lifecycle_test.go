package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinPilot/internal/domain"
	"coinPilot/internal/ports"
)

type mockLogger struct{}

func (mockLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (mockLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (mockLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (mockLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

// fakePositionRepo is an in-memory ports.PositionRepository with call
// recording and error injection.
type fakePositionRepo struct {
	open          map[string]*domain.Position // keyed by ID
	stopUpdates   map[string]float64
	closed        map[string]time.Time
	findOpenCalls int
	updateStopErr error
	closeErr      error
}

func newFakePositionRepo() *fakePositionRepo {
	return &fakePositionRepo{
		open:        make(map[string]*domain.Position),
		stopUpdates: make(map[string]float64),
		closed:      make(map[string]time.Time),
	}
}

func (r *fakePositionRepo) CreatePosition(_ context.Context, pos *domain.Position) error {
	r.open[pos.ID] = pos
	return nil
}

func (r *fakePositionRepo) ClosePosition(_ context.Context, id string, closedAt time.Time) error {
	if r.closeErr != nil {
		return r.closeErr
	}
	if _, done := r.closed[id]; !done {
		r.closed[id] = closedAt
		delete(r.open, id)
	}
	return nil
}

func (r *fakePositionRepo) UpdateStopLoss(_ context.Context, id string, newStop float64) error {
	if r.updateStopErr != nil {
		return r.updateStopErr
	}
	r.stopUpdates[id] = newStop
	return nil
}

func (r *fakePositionRepo) FindOpen(context.Context) ([]*domain.Position, error) {
	r.findOpenCalls++
	out := make([]*domain.Position, 0, len(r.open))
	for _, pos := range r.open {
		out = append(out, pos)
	}
	return out, nil
}

func (r *fakePositionRepo) FindOpenBySymbol(_ context.Context, symbol string) (*domain.Position, error) {
	for _, pos := range r.open {
		if pos.Symbol == symbol {
			return pos, nil
		}
	}
	return nil, nil
}

var _ ports.PositionRepository = (*fakePositionRepo)(nil)

func testPosition(entry float64, strategyID domain.StrategyID) *domain.Position {
	params := domain.Params(strategyID)
	return &domain.Position{
		ID:         "pos-1",
		Symbol:     "BTCUSDT",
		Side:       domain.Buy,
		EntryPrice: entry,
		Quantity:   0.01,
		StopLoss:   entry * (1 - params.StopLossPct),
		TakeProfit: entry * (1 + params.TakeProfit),
		Mode:       domain.ModePaper,
		StrategyID: strategyID,
		OpenedAt:   time.Now().Add(-time.Hour),
	}
}

func TestEvaluatePosition_WidensStopWhileUnderWater(t *testing.T) {
	pos := testPosition(100, domain.StrategyTrendFollowing) // initial stop 98.5

	dec := evaluatePosition(pos, 95, time.Now())

	assert.False(t, dec.close)
	require.True(t, dec.stopMoved)
	assert.InDelta(t, 90, dec.newStop, 0.0001, "widened straight to the floor")
	assert.False(t, dec.trailing)
}

func TestEvaluatePosition_NeverWidensPastFloor(t *testing.T) {
	pos := testPosition(100, domain.StrategyTrendFollowing)
	pos.StopLoss = 90 // already at the floor

	dec := evaluatePosition(pos, 85, time.Now())

	assert.False(t, dec.close)
	assert.False(t, dec.stopMoved)
}

func TestEvaluatePosition_NeverClosesBelowBreakEven(t *testing.T) {
	pos := testPosition(100, domain.StrategyMomentum)
	pos.OpenedAt = time.Now().Add(-100 * time.Hour) // far past the hold limit

	dec := evaluatePosition(pos, 95, time.Now())

	assert.False(t, dec.close, "a losing position is never closed, however old")
}

func TestEvaluatePosition_TimeLimitNeedsProfit(t *testing.T) {
	pos := testPosition(100, domain.StrategyBreakout) // 6h hold limit, 4% target
	pos.OpenedAt = time.Now().Add(-10 * time.Hour)

	dec := evaluatePosition(pos, 100, time.Now())
	assert.False(t, dec.close, "zero profit does not satisfy the time-limit exit")

	dec = evaluatePosition(pos, 101, time.Now())
	require.True(t, dec.close)
	assert.Equal(t, domain.CloseReasonTimeLimit, dec.reason)
}

func TestEvaluatePosition_ProfitTarget(t *testing.T) {
	pos := testPosition(100, domain.StrategyTrendFollowing) // 3% target

	dec := evaluatePosition(pos, 103, time.Now())

	require.True(t, dec.close)
	assert.Equal(t, domain.CloseReasonProfitTarget, dec.reason)
}

func TestEvaluatePosition_EmergencyCeiling(t *testing.T) {
	pos := testPosition(100, domain.StrategyBreakout)

	dec := evaluatePosition(pos, 130, time.Now())

	require.True(t, dec.close)
	assert.Equal(t, domain.CloseReasonEmergencyLimit, dec.reason)
}

func TestEvaluatePosition_TrailingEngagesAndCloses(t *testing.T) {
	// Breakout's 4% target leaves room between trailing activation (3%) and
	// the close, so trailing behavior is observable.
	pos := testPosition(100, domain.StrategyBreakout)

	dec := evaluatePosition(pos, 103, time.Now())
	require.True(t, dec.stopMoved)
	assert.True(t, dec.trailing)
	assert.InDelta(t, 101, dec.newStop, 0.0001, "locks in 1% above entry")

	// Apply the ratchet the way Evaluate would, then let the price fall back.
	pos.StopLoss = dec.newStop
	pos.TrailingStop = dec.newStop

	dec = evaluatePosition(pos, 101, time.Now())
	require.True(t, dec.close)
	assert.Equal(t, domain.CloseReasonTrailingStop, dec.reason)
}

func TestLifecycle_EvaluatePersistsStopAdjustment(t *testing.T) {
	repo := newFakePositionRepo()
	lc := NewLifecycle(repo, mockLogger{})
	pos := testPosition(100, domain.StrategyBreakout)
	lc.Track(pos)

	dec := lc.Evaluate(context.Background(), pos, 103)

	require.True(t, dec.stopMoved)
	assert.InDelta(t, 101, repo.stopUpdates[pos.ID], 0.0001)
	assert.InDelta(t, 101, pos.StopLoss, 0.0001)
	assert.InDelta(t, 101, pos.TrailingStop, 0.0001)
}

func TestLifecycle_EvaluateKeepsStopOnPersistFailure(t *testing.T) {
	repo := newFakePositionRepo()
	repo.updateStopErr = errors.New("disk full")
	lc := NewLifecycle(repo, mockLogger{})
	pos := testPosition(100, domain.StrategyBreakout)
	before := pos.StopLoss
	lc.Track(pos)

	lc.Evaluate(context.Background(), pos, 103)

	assert.Equal(t, before, pos.StopLoss, "in-memory stop must match what is on record")
	assert.Zero(t, pos.TrailingStop)
}

func TestLifecycle_CloseIsIdempotent(t *testing.T) {
	repo := newFakePositionRepo()
	lc := NewLifecycle(repo, mockLogger{})
	pos := testPosition(100, domain.StrategyTrendFollowing)
	require.NoError(t, repo.CreatePosition(context.Background(), pos))
	lc.Track(pos)

	closedAt := time.Now()
	require.NoError(t, lc.Close(context.Background(), pos, closedAt))
	assert.False(t, pos.IsOpen())
	assert.Zero(t, lc.Count())

	// Second close is a no-op, even with the repo poisoned.
	repo.closeErr = errors.New("should not be called")
	assert.NoError(t, lc.Close(context.Background(), pos, closedAt))
}

func TestLifecycle_LoadRestoresOpenPositions(t *testing.T) {
	repo := newFakePositionRepo()
	ctx := context.Background()
	a := testPosition(100, domain.StrategyTrendFollowing)
	b := testPosition(2500, domain.StrategyMomentum)
	b.ID, b.Symbol = "pos-2", "ETHUSDT"
	require.NoError(t, repo.CreatePosition(ctx, a))
	require.NoError(t, repo.CreatePosition(ctx, b))

	lc := NewLifecycle(repo, mockLogger{})
	require.NoError(t, lc.Load(ctx))

	assert.Equal(t, 2, lc.Count())
	assert.Equal(t, a, lc.Get("BTCUSDT"))
	assert.Equal(t, b, lc.Get("ETHUSDT"))

	all := lc.All()
	require.Len(t, all, 2)
	assert.Equal(t, "BTCUSDT", all[0].Symbol)
	assert.Equal(t, "ETHUSDT", all[1].Symbol)
}
