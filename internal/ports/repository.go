package ports

import (
	"context"
	"time"

	"coinPilot/internal/domain"
)

// PositionRepository persists trading positions.
type PositionRepository interface {
	// CreatePosition saves a newly opened position.
	CreatePosition(ctx context.Context, pos *domain.Position) error
	// ClosePosition marks the position closed at the given time.
	// Closing an already-closed position is a no-op.
	ClosePosition(ctx context.Context, id string, closedAt time.Time) error
	// UpdateStopLoss persists a stop-loss adjustment.
	UpdateStopLoss(ctx context.Context, id string, newStop float64) error
	// FindOpen retrieves all open positions.
	FindOpen(ctx context.Context) ([]*domain.Position, error)
	// FindOpenBySymbol retrieves the open position for a symbol, if any.
	// Returns nil, nil when no open position exists.
	FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Position, error)
}

// TradeRepository persists the append-only trade log.
type TradeRepository interface {
	// CreateTrade appends an executed trade.
	CreateTrade(ctx context.Context, trade *domain.Trade) error
	// FindRecent retrieves the most recent trades across all symbols.
	FindRecent(ctx context.Context, limit int) ([]*domain.Trade, error)
	// CountTodayBySymbol counts trades executed today for a symbol.
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)
}

// BotStateRepository persists the single engine state record.
type BotStateRepository interface {
	// GetBotState retrieves the stored state, or a stopped zero state when
	// none has been written yet.
	GetBotState(ctx context.Context) (*domain.BotState, error)
	// UpdateBotState overwrites the stored state.
	UpdateBotState(ctx context.Context, state *domain.BotState) error
}

// DecisionRepository persists the bounded strategy-review decision history.
type DecisionRepository interface {
	// CreateDecision appends a strategy-review decision.
	CreateDecision(ctx context.Context, decision *domain.AIDecision) error
	// FindRecentDecisions retrieves the most recent decisions.
	FindRecentDecisions(ctx context.Context, limit int) ([]*domain.AIDecision, error)
}
