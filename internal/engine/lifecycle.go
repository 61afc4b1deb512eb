package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"coinPilot/internal/domain"
	"coinPilot/internal/ports"
)

// exitDecision is the lifecycle verdict for one open position at one price.
type exitDecision struct {
	close     bool
	reason    domain.CloseReason
	newStop   float64
	stopMoved bool
	trailing  bool
}

// Lifecycle owns the set of open positions and applies the exit policy each
// tick: stop widening while under water, trailing lock-in and the close
// triggers once in profit. Positions are mirrored in memory and persisted
// through the repository.
type Lifecycle struct {
	repo   ports.PositionRepository
	logger ports.Logger
	now    func() time.Time

	mu        sync.Mutex
	positions map[string]*domain.Position // keyed by symbol, open only
}

// NewLifecycle creates an empty lifecycle manager.
func NewLifecycle(repo ports.PositionRepository, logger ports.Logger) *Lifecycle {
	return &Lifecycle{
		repo:      repo,
		logger:    logger,
		now:       time.Now,
		positions: make(map[string]*domain.Position),
	}
}

// Load replaces the in-memory set with the open positions on record. Called
// once on engine start so positions survive restarts.
func (l *Lifecycle) Load(ctx context.Context) error {
	open, err := l.repo.FindOpen(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[string]*domain.Position, len(open))
	for _, pos := range open {
		l.positions[pos.Symbol] = pos
	}
	return nil
}

// Track registers a freshly opened position.
func (l *Lifecycle) Track(pos *domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[pos.Symbol] = pos
}

// Get returns the open position for a symbol, or nil.
func (l *Lifecycle) Get(symbol string) *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[symbol]
}

// All returns the open positions in stable symbol order.
func (l *Lifecycle) All() []*domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Count returns the number of open positions.
func (l *Lifecycle) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.positions)
}

// Evaluate runs the exit policy for one position at the current price. Stop
// adjustments are persisted and applied in place; a close verdict is returned
// to the caller, which owns order execution. The position itself is never
// mutated into a closed state here.
func (l *Lifecycle) Evaluate(ctx context.Context, pos *domain.Position, price float64) exitDecision {
	dec := evaluatePosition(pos, price, l.now())

	if dec.stopMoved {
		if err := l.repo.UpdateStopLoss(ctx, pos.ID, dec.newStop); err != nil {
			l.logger.Error(ctx, err, "failed to persist stop adjustment", map[string]interface{}{
				"symbol": pos.Symbol, "newStop": dec.newStop,
			})
		} else {
			pos.StopLoss = dec.newStop
			if dec.trailing {
				pos.TrailingStop = dec.newStop
			}
			l.logger.Debug(ctx, "stop adjusted", map[string]interface{}{
				"symbol": pos.Symbol, "stop": dec.newStop, "trailing": dec.trailing,
			})
		}
	}
	return dec
}

// Close marks the position closed, idempotently, and drops it from the
// in-memory set.
func (l *Lifecycle) Close(ctx context.Context, pos *domain.Position, closedAt time.Time) error {
	if !pos.IsOpen() {
		return nil
	}
	if err := l.repo.ClosePosition(ctx, pos.ID, closedAt); err != nil {
		return err
	}
	pos.ClosedAt = &closedAt

	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.positions[pos.Symbol]; ok && current.ID == pos.ID {
		delete(l.positions, pos.Symbol)
	}
	return nil
}

// evaluatePosition is the pure exit policy. Below break-even it never closes:
// the stop is widened to the floor below entry to give the position room to
// recover. At or above break-even the close triggers run in priority order,
// then the trailing stop may ratchet the stop upward. Stops only ever move in
// the direction that keeps the position alive longer or locks in more profit.
func evaluatePosition(pos *domain.Position, price float64, now time.Time) exitDecision {
	profit := pos.ProfitPercent(price)

	if price < pos.EntryPrice {
		floor := pos.EntryPrice * (1 - domain.StopLossFloorPct)
		if pos.StopLoss > floor {
			return exitDecision{newStop: floor, stopMoved: true}
		}
		return exitDecision{}
	}

	if profit >= domain.EmergencyProfitCeiling {
		return exitDecision{close: true, reason: domain.CloseReasonEmergencyLimit}
	}

	params := domain.Params(pos.StrategyID)
	if profit >= params.MinProfitTarget {
		return exitDecision{close: true, reason: domain.CloseReasonProfitTarget}
	}
	if pos.TrailingStop > 0 && price <= pos.TrailingStop {
		return exitDecision{close: true, reason: domain.CloseReasonTrailingStop}
	}
	if profit > 0 && pos.HoldDuration(now) >= params.MaxHoldDuration {
		return exitDecision{close: true, reason: domain.CloseReasonTimeLimit}
	}

	if profit >= domain.TrailingActivatePct {
		lock := pos.EntryPrice * (1 + domain.TrailingLockPct)
		if lock > pos.StopLoss {
			return exitDecision{newStop: lock, stopMoved: true, trailing: true}
		}
	}
	return exitDecision{}
}
