package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"coinPilot/internal/domain"
	"coinPilot/internal/ports"
)

// Repository implements the position, trade, bot-state and decision
// repository ports on a single SQLite database. Monetary values are stored
// as decimal strings so they round-trip without float drift.
type Repository struct {
	db           *sql.DB
	logger       ports.Logger
	maxDecisions int
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
	// MaxDecisions bounds the retained strategy-review history. Zero keeps
	// the default of 200.
	MaxDecisions int
}

const defaultMaxDecisions = 200

// NewRepository opens (and if needed creates) the database and verifies the
// schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/coinpilot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the trading loop and the API.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: ping '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	maxDecisions := cfg.MaxDecisions
	if maxDecisions <= 0 {
		maxDecisions = defaultMaxDecisions
	}
	repo := &Repository{db: db, logger: cfg.Logger}
	repo.maxDecisions = maxDecisions

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		stop_loss TEXT NOT NULL,
		take_profit TEXT NOT NULL,
		mode TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_positions_symbol_closed ON positions (symbol, closed_at);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		type TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		profit TEXT NOT NULL DEFAULT '0',
		profit_percent TEXT NOT NULL DEFAULT '0',
		strategy_id TEXT NOT NULL,
		mode TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades (timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_timestamp ON trades (symbol, timestamp);

	CREATE TABLE IF NOT EXISTS bot_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		status TEXT NOT NULL,
		strategy_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		start_time TIMESTAMP DEFAULT NULL,
		ai_enabled INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ai_decisions (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		market_conditions TEXT NOT NULL,
		strategy_scores TEXT NOT NULL,
		selected_strategy TEXT NOT NULL,
		previous_strategy TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		confidence REAL NOT NULL,
		expected_win_rate REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ai_decisions_timestamp ON ai_decisions (timestamp);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// decStr renders a float as an exact decimal string for storage.
func decStr(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// decVal parses a stored decimal string back into a float.
func decVal(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

// --- PositionRepository ---

// CreatePosition saves a newly opened position.
func (r *Repository) CreatePosition(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT INTO positions (id, symbol, side, entry_price, quantity, stop_loss, take_profit, mode, strategy_id, opened_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, string(pos.Side), decStr(pos.EntryPrice), decStr(pos.Quantity),
		decStr(pos.StopLoss), decStr(pos.TakeProfit), string(pos.Mode), string(pos.StrategyID), pos.OpenedAt)
	if err != nil {
		return fmt.Errorf("failed to insert position for symbol %s: %w", pos.Symbol, err)
	}
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
	return nil
}

// ClosePosition marks the position closed. Closing an already-closed
// position is a no-op.
func (r *Repository) ClosePosition(ctx context.Context, id string, closedAt time.Time) error {
	const query = `UPDATE positions SET closed_at = ? WHERE id = ? AND closed_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, closedAt, id)
	if err != nil {
		return fmt.Errorf("failed to close position %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.logger.Debug(ctx, "Position already closed or unknown", map[string]interface{}{"positionID": id})
	}
	return nil
}

// UpdateStopLoss persists a stop-loss adjustment.
func (r *Repository) UpdateStopLoss(ctx context.Context, id string, newStop float64) error {
	const query = `UPDATE positions SET stop_loss = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, decStr(newStop), id)
	if err != nil {
		return fmt.Errorf("failed to update stop loss for position %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", id, ports.ErrNotFound)
	}
	return nil
}

// FindOpen retrieves all open positions, oldest first.
func (r *Repository) FindOpen(ctx context.Context) ([]*domain.Position, error) {
	const query = positionColumns + ` WHERE closed_at IS NULL ORDER BY opened_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpen: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// FindOpenBySymbol retrieves the open position for a symbol, if any.
func (r *Repository) FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Position, error) {
	const query = positionColumns + ` WHERE symbol = ? AND closed_at IS NULL`
	row := r.db.QueryRowContext(ctx, query, symbol)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open position for symbol %s: %w", symbol, err)
	}
	return pos, nil
}

const positionColumns = `
	SELECT id, symbol, side, entry_price, quantity, stop_loss, take_profit, mode, strategy_id, opened_at, closed_at
	FROM positions`

// --- TradeRepository ---

// CreateTrade appends an executed trade.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, symbol, type, price, quantity, timestamp, profit, profit_percent, strategy_id, mode)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.Symbol, string(trade.Type), decStr(trade.Price), decStr(trade.Quantity),
		trade.Timestamp, decStr(trade.Profit), decStr(trade.ProfitPercent), string(trade.StrategyID), string(trade.Mode))
	if err != nil {
		return fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}
	r.logger.Debug(ctx, "Trade recorded", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "type": trade.Type, "profit": trade.Profit,
	})
	return nil
}

// FindRecent retrieves the most recent trades, newest first.
func (r *Repository) FindRecent(ctx context.Context, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, symbol, type, price, quantity, timestamp, profit, profit_percent, strategy_id, mode
	FROM trades ORDER BY timestamp DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindRecent: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// CountTodayBySymbol counts trades executed today for a symbol.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND date(timestamp) = date('now', 'localtime')`
	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades today for symbol %s: %w", symbol, err)
	}
	return count, nil
}

// --- BotStateRepository ---

// GetBotState retrieves the stored engine state, or a stopped zero state
// when none has been written yet.
func (r *Repository) GetBotState(ctx context.Context) (*domain.BotState, error) {
	const query = `SELECT status, strategy_id, mode, start_time, ai_enabled FROM bot_state WHERE id = 1`

	var (
		status, strategyID, mode string
		startTime                sql.NullTime
		aiEnabled                bool
	)
	err := r.db.QueryRowContext(ctx, query).Scan(&status, &strategyID, &mode, &startTime, &aiEnabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.BotState{Status: domain.StatusStopped}, nil
		}
		return nil, fmt.Errorf("failed to query bot state: %w", err)
	}

	state := &domain.BotState{
		Status:     domain.BotStatus(status),
		StrategyID: domain.StrategyID(strategyID),
		Mode:       domain.TradeMode(mode),
		AIEnabled:  aiEnabled,
	}
	if startTime.Valid {
		t := startTime.Time
		state.StartTime = &t
	}
	return state, nil
}

// UpdateBotState overwrites the stored engine state.
func (r *Repository) UpdateBotState(ctx context.Context, state *domain.BotState) error {
	const query = `
	INSERT INTO bot_state (id, status, strategy_id, mode, start_time, ai_enabled)
	VALUES (1, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		strategy_id = excluded.strategy_id,
		mode = excluded.mode,
		start_time = excluded.start_time,
		ai_enabled = excluded.ai_enabled`

	var startTime sql.NullTime
	if state.StartTime != nil {
		startTime = sql.NullTime{Time: *state.StartTime, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		string(state.Status), string(state.StrategyID), string(state.Mode), startTime, state.AIEnabled)
	if err != nil {
		return fmt.Errorf("%w: bot state: %v", ports.ErrUpdateFailed, err)
	}
	return nil
}

// --- DecisionRepository ---

// CreateDecision appends a strategy-review decision and prunes the history
// down to the retention bound.
func (r *Repository) CreateDecision(ctx context.Context, decision *domain.AIDecision) error {
	conditions, err := json.Marshal(decision.MarketConditions)
	if err != nil {
		return fmt.Errorf("failed to marshal market conditions: %w", err)
	}
	scores, err := json.Marshal(decision.StrategyScores)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy scores: %w", err)
	}

	const query = `
	INSERT INTO ai_decisions (id, timestamp, market_conditions, strategy_scores,
	                          selected_strategy, previous_strategy, reasoning, confidence, expected_win_rate)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		decision.ID, decision.Timestamp, string(conditions), string(scores),
		string(decision.SelectedStrategy), string(decision.PreviousStrategy),
		decision.Reasoning, decision.Confidence, decision.ExpectedWinRate)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}

	const prune = `
	DELETE FROM ai_decisions WHERE id NOT IN
		(SELECT id FROM ai_decisions ORDER BY timestamp DESC LIMIT ?)`
	if _, err := r.db.ExecContext(ctx, prune, r.maxDecisions); err != nil {
		r.logger.Warn(ctx, "failed to prune decision history", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// FindRecentDecisions retrieves the most recent decisions, newest first.
func (r *Repository) FindRecentDecisions(ctx context.Context, limit int) ([]*domain.AIDecision, error) {
	const query = `
	SELECT id, timestamp, market_conditions, strategy_scores,
	       selected_strategy, previous_strategy, reasoning, confidence, expected_win_rate
	FROM ai_decisions ORDER BY timestamp DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent decisions: %w", err)
	}
	defer rows.Close()

	decisions := make([]*domain.AIDecision, 0)
	for rows.Next() {
		var (
			d                  domain.AIDecision
			conditions, scores string
			selected, previous string
		)
		if err := rows.Scan(&d.ID, &d.Timestamp, &conditions, &scores,
			&selected, &previous, &d.Reasoning, &d.Confidence, &d.ExpectedWinRate); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(conditions), &d.MarketConditions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal market conditions: %w", err)
		}
		if err := json.Unmarshal([]byte(scores), &d.StrategyScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy scores: %w", err)
		}
		d.SelectedStrategy = domain.StrategyID(selected)
		d.PreviousStrategy = domain.StrategyID(previous)
		decisions = append(decisions, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}
	return decisions, nil
}

// --- Helper Scan Functions ---

// scanner is compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var (
		side, entryPrice, quantity, stopLoss, takeProfit, mode, strategyID string
		closedAt                                                          sql.NullTime
	)
	err := s.Scan(&p.ID, &p.Symbol, &side, &entryPrice, &quantity, &stopLoss, &takeProfit,
		&mode, &strategyID, &p.OpenedAt, &closedAt)
	if err != nil {
		return nil, err
	}

	p.Side = domain.OrderSide(side)
	p.Mode = domain.TradeMode(mode)
	p.StrategyID = domain.StrategyID(strategyID)
	if p.EntryPrice, err = decVal(entryPrice); err != nil {
		return nil, fmt.Errorf("bad entry_price %q: %w", entryPrice, err)
	}
	if p.Quantity, err = decVal(quantity); err != nil {
		return nil, fmt.Errorf("bad quantity %q: %w", quantity, err)
	}
	if p.StopLoss, err = decVal(stopLoss); err != nil {
		return nil, fmt.Errorf("bad stop_loss %q: %w", stopLoss, err)
	}
	if p.TakeProfit, err = decVal(takeProfit); err != nil {
		return nil, fmt.Errorf("bad take_profit %q: %w", takeProfit, err)
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	// A stop above entry can only come from trailing; restore it so trailing
	// exits survive restarts.
	if p.StopLoss > p.EntryPrice {
		p.TrailingStop = p.StopLoss
	}
	return p, nil
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var tradeType, price, quantity, profit, profitPercent, strategyID, mode string
	err := s.Scan(&t.ID, &t.Symbol, &tradeType, &price, &quantity, &t.Timestamp,
		&profit, &profitPercent, &strategyID, &mode)
	if err != nil {
		return nil, err
	}

	t.Type = domain.OrderSide(tradeType)
	t.StrategyID = domain.StrategyID(strategyID)
	t.Mode = domain.TradeMode(mode)
	if t.Price, err = decVal(price); err != nil {
		return nil, fmt.Errorf("bad price %q: %w", price, err)
	}
	if t.Quantity, err = decVal(quantity); err != nil {
		return nil, fmt.Errorf("bad quantity %q: %w", quantity, err)
	}
	if t.Profit, err = decVal(profit); err != nil {
		return nil, fmt.Errorf("bad profit %q: %w", profit, err)
	}
	if t.ProfitPercent, err = decVal(profitPercent); err != nil {
		return nil, fmt.Errorf("bad profit_percent %q: %w", profitPercent, err)
	}
	return t, nil
}
