package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
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

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func samplePosition(id string) *domain.Position {
	return &domain.Position{
		ID:         id,
		Symbol:     "BTCUSDT",
		Side:       domain.Buy,
		EntryPrice: 45000.12345678,
		Quantity:   0.00443556,
		StopLoss:   44325.12,
		TakeProfit: 47700.13,
		Mode:       domain.ModePaper,
		StrategyID: domain.StrategyTrendFollowing,
		OpenedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestPosition_RoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	pos := samplePosition("pos-1")

	require.NoError(t, repo.CreatePosition(ctx, pos))

	got, err := repo.FindOpenBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, pos.EntryPrice, got.EntryPrice, "decimal storage must not drift")
	assert.Equal(t, pos.Quantity, got.Quantity)
	assert.Equal(t, pos.StopLoss, got.StopLoss)
	assert.Equal(t, pos.StrategyID, got.StrategyID)
	assert.Zero(t, got.TrailingStop)
	assert.True(t, got.IsOpen())
	assert.WithinDuration(t, pos.OpenedAt, got.OpenedAt, time.Second)
}

func TestPosition_FindOpenBySymbolMissing(t *testing.T) {
	repo := setupTestDB(t)

	got, err := repo.FindOpenBySymbol(context.Background(), "ETHUSDT")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPosition_TrailingStopSurvivesReload(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	pos := samplePosition("pos-1")
	require.NoError(t, repo.CreatePosition(ctx, pos))

	// A trailing ratchet moves the stop above entry.
	require.NoError(t, repo.UpdateStopLoss(ctx, pos.ID, 45450.5))

	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 45450.5, open[0].StopLoss)
	assert.Equal(t, 45450.5, open[0].TrailingStop, "stop above entry implies trailing engaged")
}

func TestPosition_CloseIsIdempotent(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	pos := samplePosition("pos-1")
	require.NoError(t, repo.CreatePosition(ctx, pos))

	closedAt := time.Now().UTC()
	require.NoError(t, repo.ClosePosition(ctx, pos.ID, closedAt))
	require.NoError(t, repo.ClosePosition(ctx, pos.ID, closedAt.Add(time.Hour)))

	got, err := repo.FindOpenBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, got, "closed position must not surface as open")
}

func TestPosition_UpdateStopLossUnknownID(t *testing.T) {
	repo := setupTestDB(t)

	err := repo.UpdateStopLoss(context.Background(), "missing", 100)

	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestPosition_FindOpenOrdersOldestFirst(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	newer := samplePosition("pos-new")
	newer.Symbol = "ETHUSDT"
	older := samplePosition("pos-old")
	older.OpenedAt = newer.OpenedAt.Add(-2 * time.Hour)
	require.NoError(t, repo.CreatePosition(ctx, newer))
	require.NoError(t, repo.CreatePosition(ctx, older))

	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "pos-old", open[0].ID)
	assert.Equal(t, "pos-new", open[1].ID)
}

func TestTrade_RoundTripAndOrdering(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		trade := &domain.Trade{
			ID:            fmt.Sprintf("trade-%d", i),
			Symbol:        "BTCUSDT",
			Type:          domain.Sell,
			Price:         45000.5,
			Quantity:      0.01,
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			Profit:        12.345,
			ProfitPercent: 2.74,
			StrategyID:    domain.StrategyMomentum,
			Mode:          domain.ModePaper,
		}
		require.NoError(t, repo.CreateTrade(ctx, trade))
	}

	trades, err := repo.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "trade-2", trades[0].ID, "newest first")
	assert.Equal(t, "trade-1", trades[1].ID)
	assert.Equal(t, 12.345, trades[0].Profit)
	assert.Equal(t, 2.74, trades[0].ProfitPercent)
	assert.Equal(t, domain.StrategyMomentum, trades[0].StrategyID)
}

func TestTrade_CountTodayBySymbol(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	trade := &domain.Trade{
		ID: "trade-1", Symbol: "BTCUSDT", Type: domain.Buy,
		Price: 100, Quantity: 1, Timestamp: time.Now(),
		StrategyID: domain.StrategyAdaptive, Mode: domain.ModePaper,
	}
	require.NoError(t, repo.CreateTrade(ctx, trade))

	count, err := repo.CountTodayBySymbol(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.CountTodayBySymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBotState_DefaultAndUpsert(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	state, err := repo.GetBotState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, state.Status)
	assert.Nil(t, state.StartTime)

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateBotState(ctx, &domain.BotState{
		Status:     domain.StatusRunning,
		StrategyID: domain.StrategyBreakout,
		Mode:       domain.ModePaper,
		StartTime:  &started,
		AIEnabled:  true,
	}))

	state, err = repo.GetBotState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, state.Status)
	assert.Equal(t, domain.StrategyBreakout, state.StrategyID)
	assert.True(t, state.AIEnabled)
	require.NotNil(t, state.StartTime)
	assert.WithinDuration(t, started, *state.StartTime, time.Second)

	// Second write overwrites the single record.
	require.NoError(t, repo.UpdateBotState(ctx, &domain.BotState{
		Status:     domain.StatusStopped,
		StrategyID: domain.StrategyBreakout,
		Mode:       domain.ModePaper,
	}))
	state, err = repo.GetBotState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, state.Status)
	assert.Nil(t, state.StartTime)
	assert.False(t, state.AIEnabled)
}

func TestDecision_RoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	decision := &domain.AIDecision{
		ID:        "dec-1",
		Timestamp: time.Now().UTC().Truncate(time.Second),
		MarketConditions: domain.MarketConditions{
			Volatility:   22.5,
			MarketRegime: domain.RegimeTrending,
			RiskLevel:    domain.RiskMedium,
		},
		StrategyScores: []domain.StrategyScore{
			{StrategyID: domain.StrategyTrendFollowing, Score: 85, Confidence: 74, Reasons: []string{"strong market trend (+20)"}},
		},
		SelectedStrategy: domain.StrategyTrendFollowing,
		PreviousStrategy: domain.StrategyAdaptive,
		Reasoning:        "switched to trend_following",
		Confidence:       74,
		ExpectedWinRate:  67.5,
	}
	require.NoError(t, repo.CreateDecision(ctx, decision))

	decisions, err := repo.FindRecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	got := decisions[0]
	assert.Equal(t, decision.ID, got.ID)
	assert.Equal(t, 22.5, got.MarketConditions.Volatility)
	assert.Equal(t, domain.RegimeTrending, got.MarketConditions.MarketRegime)
	require.Len(t, got.StrategyScores, 1)
	assert.Equal(t, domain.StrategyTrendFollowing, got.StrategyScores[0].StrategyID)
	assert.Equal(t, 85.0, got.StrategyScores[0].Score)
	assert.Equal(t, domain.StrategyAdaptive, got.PreviousStrategy)
	assert.Equal(t, 67.5, got.ExpectedWinRate)
}

func TestDecision_PrunesToRetentionBound(t *testing.T) {
	repo, err := NewRepository(Config{
		DBPath:       filepath.Join(t.TempDir(), "test.db"),
		Logger:       mockLogger{},
		MaxDecisions: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateDecision(ctx, &domain.AIDecision{
			ID:               fmt.Sprintf("dec-%d", i),
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
			SelectedStrategy: domain.StrategyAdaptive,
			PreviousStrategy: domain.StrategyAdaptive,
			Reasoning:        "keeping adaptive",
		}))
	}

	decisions, err := repo.FindRecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 3, "history pruned to the retention bound")
	assert.Equal(t, "dec-4", decisions[0].ID)
	assert.Equal(t, "dec-2", decisions[2].ID)
}
