package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"coinPilot/internal/domain"
	"coinPilot/internal/events"
	"coinPilot/internal/market"
	"coinPilot/internal/ports"
	"coinPilot/internal/risk"
	"coinPilot/internal/strategy"
)

// Config holds the orchestrator settings.
type Config struct {
	Symbols         []string
	QuoteAsset      string
	TradingInterval time.Duration // fast loop: prices, lifecycle, entries
	ReviewInterval  time.Duration // slow loop: market analysis, strategy scoring
	PriceBatchSize  int
	PriceBatchDelay time.Duration

	// Gates on review-driven strategy switches. Operator switches bypass both.
	MinReviewConfidence float64
	MinStrategyDwell    time.Duration

	RecentTradeWindow int // trades inspected for sizing and breaker checks
}

// DefaultConfig returns the standard orchestrator settings.
func DefaultConfig() Config {
	return Config{
		Symbols:             []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT"},
		QuoteAsset:          "USDT",
		TradingInterval:     30 * time.Second,
		ReviewInterval:      5 * time.Minute,
		PriceBatchSize:      5,
		PriceBatchDelay:     200 * time.Millisecond,
		MinReviewConfidence: 70,
		MinStrategyDwell:    30 * time.Minute,
		RecentTradeWindow:   20,
	}
}

// Deps are the collaborators injected into the engine.
type Deps struct {
	Logger    ports.Logger
	Exchanges map[domain.TradeMode]ports.ExchangeClient
	Positions ports.PositionRepository
	Trades    ports.TradeRepository
	State     ports.BotStateRepository
	Decisions ports.DecisionRepository
	Publisher ports.EventPublisher
	Admission AdmissionPolicy           // nil means admit every tick
	News      *market.NewsAggregator    // nil means an empty aggregator
	Risk      *risk.Manager             // nil means default limits
}

// Engine is the trading orchestrator. It runs two periodic loops while
// started: the trading tick (refresh prices, manage open positions, attempt
// at most one new entry) and the strategy-review tick (analyze the market,
// score the catalog, switch strategy when the gates allow). All public
// operations are safe for concurrent use.
type Engine struct {
	cfg       Config
	logger    ports.Logger
	exchanges map[domain.TradeMode]ports.ExchangeClient
	feeds     map[domain.TradeMode]*PriceFeed
	trades    ports.TradeRepository
	stateRepo ports.BotStateRepository
	decisions ports.DecisionRepository
	publisher ports.EventPublisher

	history   *market.HistoryStore
	calc      *market.Calculator
	news      *market.NewsAggregator
	scorer    *strategy.Scorer
	selector  *strategy.Selector
	signals   *strategy.Generator
	riskMgr   *risk.Manager
	lifecycle *Lifecycle
	admission AdmissionPolicy

	mu                 sync.Mutex
	state              domain.BotState
	runCtx             context.Context
	cancel             context.CancelFunc
	reviewCancel       context.CancelFunc
	lastStrategyChange time.Time
	lastScores         []domain.StrategyScore
	lastConditions     domain.MarketConditions
	initialBalance     float64
	dailyStart         float64
	dailyDate          string
	lastBalance        float64

	tickBusy atomic.Bool
}

// New wires an engine from its dependencies. Missing optional dependencies
// get working defaults.
func New(cfg Config, deps Deps) *Engine {
	def := DefaultConfig()
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = def.Symbols
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = def.QuoteAsset
	}
	if cfg.TradingInterval <= 0 {
		cfg.TradingInterval = def.TradingInterval
	}
	if cfg.ReviewInterval <= 0 {
		cfg.ReviewInterval = def.ReviewInterval
	}
	if cfg.PriceBatchSize <= 0 {
		cfg.PriceBatchSize = def.PriceBatchSize
	}
	if cfg.MinReviewConfidence <= 0 {
		cfg.MinReviewConfidence = def.MinReviewConfidence
	}
	if cfg.MinStrategyDwell <= 0 {
		cfg.MinStrategyDwell = def.MinStrategyDwell
	}
	if cfg.RecentTradeWindow <= 0 {
		cfg.RecentTradeWindow = def.RecentTradeWindow
	}

	news := deps.News
	if news == nil {
		news = market.NewNewsAggregator(0)
	}
	riskMgr := deps.Risk
	if riskMgr == nil {
		riskMgr = risk.NewManager(risk.DefaultConfig())
	}
	admission := deps.Admission
	if admission == nil {
		admission = AdmitAll{}
	}

	history := market.NewHistoryStore(0)
	feeds := make(map[domain.TradeMode]*PriceFeed, len(deps.Exchanges))
	for mode, exchange := range deps.Exchanges {
		feeds[mode] = NewPriceFeed(exchange, history, deps.Logger, cfg.PriceBatchSize, cfg.PriceBatchDelay)
	}

	return &Engine{
		cfg:       cfg,
		logger:    deps.Logger,
		exchanges: deps.Exchanges,
		feeds:     feeds,
		trades:    deps.Trades,
		stateRepo: deps.State,
		decisions: deps.Decisions,
		publisher: deps.Publisher,
		history:   history,
		calc:      market.NewCalculator(market.DefaultCalculatorConfig()),
		news:      news,
		scorer:    strategy.NewScorer(),
		selector:  strategy.NewSelector(strategy.DefaultSelectorConfig(), news),
		signals:   strategy.NewGenerator(news),
		riskMgr:   riskMgr,
		lifecycle: NewLifecycle(deps.Positions, deps.Logger),
		admission: admission,
		state: domain.BotState{
			Status:     domain.StatusStopped,
			StrategyID: domain.StrategyAdaptive,
			Mode:       domain.ModePaper,
		},
	}
}

// Restore loads the persisted engine state and resumes trading if the
// process previously went down while running.
func (e *Engine) Restore(ctx context.Context) error {
	stored, err := e.stateRepo.GetBotState(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.state.AIEnabled = stored.AIEnabled
	if stored.StrategyID.IsValid() {
		e.state.StrategyID = stored.StrategyID
	}
	if stored.Mode.IsValid() {
		e.state.Mode = stored.Mode
	}
	wasRunning := stored.Status == domain.StatusRunning
	strategyID, mode := e.state.StrategyID, e.state.Mode
	e.mu.Unlock()

	if wasRunning {
		e.logger.Info(ctx, "resuming engine from persisted state", map[string]interface{}{
			"strategy": strategyID, "mode": mode,
		})
		return e.Start(ctx, strategyID, mode)
	}
	return nil
}

// Start transitions the engine to running and launches the periodic loops.
// Starting an already running engine is a no-op.
func (e *Engine) Start(ctx context.Context, strategyID domain.StrategyID, mode domain.TradeMode) error {
	if !strategyID.IsValid() {
		strategyID = domain.StrategyAdaptive
	}
	if !mode.IsValid() {
		mode = domain.ModePaper
	}

	e.mu.Lock()
	if e.state.Status == domain.StatusRunning {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	exchange := e.exchanges[mode]
	if exchange == nil {
		return fmt.Errorf("%w: no %s execution backend", ports.ErrConfigurationError, mode)
	}
	if !exchange.IsConnected(ctx) {
		return ports.ErrNotConnected
	}
	if err := e.lifecycle.Load(ctx); err != nil {
		return fmt.Errorf("loading open positions: %w", err)
	}
	balance := e.fetchBalance(ctx, exchange)

	e.mu.Lock()
	// Re-check under the lock; a concurrent Start may have won the race.
	if e.state.Status == domain.StatusRunning {
		e.mu.Unlock()
		return nil
	}
	now := time.Now()
	if e.initialBalance == 0 {
		e.initialBalance = balance
	}
	e.rollDailyBaselineLocked(balance, now)
	e.state.Status = domain.StatusRunning
	e.state.StrategyID = strategyID
	e.state.Mode = mode
	e.state.StartTime = &now
	e.lastStrategyChange = now

	runCtx, cancel := context.WithCancel(context.Background())
	e.runCtx = runCtx
	e.cancel = cancel
	go e.tradingLoop(runCtx)
	if e.state.AIEnabled {
		e.startReviewLoopLocked(runCtx)
	}
	snapshot := e.state
	e.mu.Unlock()

	e.persistState(ctx, snapshot)
	e.publisher.Publish(events.Event{
		Type:    events.EventEngineStarted,
		Payload: events.EnginePayload{StrategyID: strategyID, Mode: mode},
	})
	e.logger.Info(ctx, "engine started", map[string]interface{}{
		"strategy": strategyID, "mode": mode, "balance": balance, "symbols": e.cfg.Symbols,
	})
	return nil
}

// Stop halts the loops and transitions to stopped. Open positions are left
// untouched; they resume management on the next Start. Stopping a stopped
// engine is a no-op.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state.Status != domain.StatusRunning {
		e.mu.Unlock()
		return nil
	}
	e.state.Status = domain.StatusStopped
	e.state.StartTime = nil
	cancel := e.cancel
	e.cancel = nil
	e.runCtx = nil
	e.reviewCancel = nil
	snapshot := e.state
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.persistState(ctx, snapshot)
	e.publisher.Publish(events.Event{
		Type:    events.EventEngineStopped,
		Payload: events.EnginePayload{StrategyID: snapshot.StrategyID, Mode: snapshot.Mode},
	})
	e.logger.Info(ctx, "engine stopped", nil)
	return nil
}

// ChangeStrategy is the operator path for switching strategies. It bypasses
// the confidence and dwell gates that bind review-driven switches; the new
// strategy takes effect on the next tick.
func (e *Engine) ChangeStrategy(ctx context.Context, id domain.StrategyID) error {
	if !id.IsValid() {
		return fmt.Errorf("%w: unknown strategy %q", ports.ErrInvalidRequest, id)
	}
	e.mu.Lock()
	previous := e.state.StrategyID
	e.state.StrategyID = id
	e.lastStrategyChange = time.Now()
	snapshot := e.state
	e.mu.Unlock()

	e.persistState(ctx, snapshot)
	e.logger.Info(ctx, "strategy changed by operator", map[string]interface{}{
		"from": previous, "to": id,
	})
	return nil
}

// SetAutoSelect toggles the review loop. While the engine runs, enabling
// starts the loop and disabling stops it; otherwise only the flag changes.
func (e *Engine) SetAutoSelect(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	e.state.AIEnabled = enabled
	if e.state.Status == domain.StatusRunning {
		if enabled && e.reviewCancel == nil && e.runCtx != nil {
			e.startReviewLoopLocked(e.runCtx)
		}
		if !enabled && e.reviewCancel != nil {
			e.reviewCancel()
			e.reviewCancel = nil
		}
	}
	snapshot := e.state
	e.mu.Unlock()

	e.persistState(ctx, snapshot)
	e.logger.Info(ctx, "automatic strategy selection toggled", map[string]interface{}{
		"enabled": enabled,
	})
	return nil
}

// Status returns a copy of the engine state.
func (e *Engine) Status() domain.BotState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RiskMetrics builds the on-demand risk snapshot from current balance and
// market conditions.
func (e *Engine) RiskMetrics(ctx context.Context) domain.RiskMetrics {
	snap := e.Status()
	exchange := e.exchanges[snap.Mode]

	balance := 0.0
	if exchange != nil {
		balance = e.fetchBalance(ctx, exchange)
	}
	e.mu.Lock()
	volatility := e.lastConditions.Volatility
	e.mu.Unlock()

	return e.riskMgr.Metrics(balance, volatility, snap.StrategyID, e.recentTrades(ctx))
}

// ResetCircuitBreaker clears an active protective halt. Operator action; the
// engine must still be started again separately.
func (e *Engine) ResetCircuitBreaker(ctx context.Context) {
	e.riskMgr.Reset()
	e.publisher.Publish(events.Event{
		Type:    events.EventCircuitBreaker,
		Payload: events.CircuitBreakerPayload{Active: false},
	})
	e.logger.Info(ctx, "circuit breaker reset by operator", nil)
}

// RecordNews feeds a sentiment reading into the aggregator.
func (e *Engine) RecordNews(symbol string, sentiment, relevance float64) {
	e.news.Record(symbol, sentiment, relevance)
}

// CurrentPrices returns the latest price per tracked symbol.
func (e *Engine) CurrentPrices() map[string]float64 {
	return e.history.CurrentPrices()
}

// PriceHistory returns the retained history for one symbol, oldest first.
func (e *Engine) PriceHistory(symbol string) []domain.PricePoint {
	return e.history.History(symbol)
}

// OpenPositions returns the open positions in stable order.
func (e *Engine) OpenPositions() []*domain.Position {
	return e.lifecycle.All()
}

// Trades returns the latest executed trades, newest first.
func (e *Engine) Trades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return e.trades.FindRecent(ctx, limit)
}

// RecentDecisions returns the latest strategy-review decisions.
func (e *Engine) RecentDecisions(ctx context.Context, limit int) ([]*domain.AIDecision, error) {
	return e.decisions.FindRecentDecisions(ctx, limit)
}

// LastScores returns the strategy ranking from the most recent review.
func (e *Engine) LastScores() []domain.StrategyScore {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.StrategyScore(nil), e.lastScores...)
}

// tradingLoop drives the fast tick. Ticks run on their own goroutine guarded
// by a busy flag: when a tick overruns the interval, the overlapping firing
// is skipped rather than queued.
func (e *Engine) tradingLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TradingInterval)
	defer ticker.Stop()

	e.guardedTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.guardedTick(ctx)
		}
	}
}

func (e *Engine) guardedTick(ctx context.Context) {
	if !e.tickBusy.CompareAndSwap(false, true) {
		e.logger.Debug(ctx, "trading tick still in flight, skipping", nil)
		return
	}
	go func() {
		defer e.tickBusy.Store(false)
		e.runTick(ctx)
	}()
}

// runTick is one pass of the trading loop: refresh prices, evaluate the
// circuit breaker, manage open positions, then attempt at most one entry.
func (e *Engine) runTick(ctx context.Context) {
	snap := e.Status()
	if snap.Status != domain.StatusRunning {
		return
	}
	exchange := e.exchanges[snap.Mode]
	feed := e.feeds[snap.Mode]
	if exchange == nil || feed == nil {
		return
	}

	prices := feed.Refresh(ctx, e.cfg.Symbols)
	e.publisher.Publish(events.Event{
		Type:    events.EventPriceUpdate,
		Payload: events.PriceUpdatePayload{Prices: prices},
	})

	balance := e.fetchBalance(ctx, exchange)
	e.mu.Lock()
	e.rollDailyBaselineLocked(balance, time.Now())
	initial, dailyStart := e.initialBalance, e.dailyStart
	e.mu.Unlock()

	recent := e.recentTrades(ctx)
	if e.riskMgr.CircuitBreaker(balance, initial, dailyStart, recent) {
		reason := e.riskMgr.BreakerReason()
		e.publisher.Publish(events.Event{
			Type:    events.EventCircuitBreaker,
			Payload: events.CircuitBreakerPayload{Active: true, Reason: reason},
		})
		e.logger.Warn(ctx, "circuit breaker tripped, halting", map[string]interface{}{
			"reason": reason, "balance": balance,
		})
		_ = e.Stop(ctx)
		return
	}

	e.managePositions(ctx, exchange, snap, prices)
	e.attemptEntry(ctx, exchange, snap, prices, balance, recent)
}

// managePositions runs the exit policy over every open position: profit
// exits through the signal generator, then the lifecycle's stop and time
// rules for whatever remains open.
func (e *Engine) managePositions(ctx context.Context, exchange ports.ExchangeClient, snap domain.BotState, prices map[string]float64) {
	for _, pos := range e.lifecycle.All() {
		price, ok := prices[pos.Symbol]
		if !ok || price <= 0 {
			continue
		}

		sig := e.signals.Exit(pos.EntryPrice, price, pos.StrategyID)
		if sig.Action == domain.ActionSell {
			reason := domain.CloseReasonProfitTarget
			if pos.ProfitPercent(price) >= domain.EmergencyProfitCeiling {
				reason = domain.CloseReasonEmergencyLimit
			}
			e.executeSell(ctx, exchange, pos, reason, sig.Reasons)
			continue
		}

		dec := e.lifecycle.Evaluate(ctx, pos, price)
		if dec.close {
			e.executeSell(ctx, exchange, pos, dec.reason, nil)
		}
	}
}

// attemptEntry opens at most one new position per tick, subject to the
// position cap and the admission policy.
func (e *Engine) attemptEntry(ctx context.Context, exchange ports.ExchangeClient, snap domain.BotState, prices map[string]float64, balance float64, recent []*domain.Trade) {
	maxOpen := e.riskMgr.MaxOpenPositions(balance, snap.StrategyID)
	if e.lifecycle.Count() >= maxOpen {
		return
	}
	if !e.admission.Admit(time.Now()) {
		e.logger.Debug(ctx, "entry throttled by admission policy", nil)
		return
	}

	metrics := e.computeMetrics()
	sel := e.selector.SelectWithFallback(metrics, prices, e.rankedStrategies(snap.StrategyID), balance)
	entryStrategy := sel.StrategyID
	if !entryStrategy.IsValid() {
		entryStrategy = snap.StrategyID
	}
	for _, symbol := range sel.Symbols {
		if e.lifecycle.Get(symbol) != nil {
			continue
		}
		sig := e.signals.Entry(metrics[symbol], prices[symbol], entryStrategy)
		if sig.Action != domain.ActionBuy {
			continue
		}
		size := e.riskMgr.PositionSize(balance, metrics[symbol].Volatility, entryStrategy, recent)
		if size > balance {
			e.logger.Warn(ctx, "skipping entry", map[string]interface{}{
				"symbol": symbol, "size": size, "balance": balance,
				"error": ports.ErrInsufficientBalance.Error(),
			})
			continue
		}
		e.executeBuy(ctx, exchange, snap, entryStrategy, symbol, sig, size)
		return
	}
}

// rankedStrategies builds the fallback chain for candidate selection: the
// active strategy first, then the remaining strategies from the last review
// ranking.
func (e *Engine) rankedStrategies(current domain.StrategyID) []domain.StrategyScore {
	e.mu.Lock()
	last := e.lastScores
	e.mu.Unlock()

	ranked := []domain.StrategyScore{{StrategyID: current}}
	for _, s := range last {
		if s.StrategyID != current {
			ranked = append(ranked, s)
		}
	}
	return ranked
}

func (e *Engine) executeBuy(ctx context.Context, exchange ports.ExchangeClient, snap domain.BotState, strategyID domain.StrategyID, symbol string, sig domain.Signal, quoteAmount float64) {
	res, err := exchange.PlaceBuyOrder(ctx, symbol, quoteAmount)
	if err != nil {
		e.reportTradeError(ctx, symbol, domain.Buy, err)
		return
	}
	qty, err := sanitizePositive("filledQty", res.FilledQty)
	if err != nil {
		e.reportTradeError(ctx, symbol, domain.Buy, err)
		return
	}
	avgPrice, err := sanitizePositive("avgPrice", res.AvgPrice)
	if err != nil {
		e.reportTradeError(ctx, symbol, domain.Buy, err)
		return
	}

	now := time.Now()
	pos := &domain.Position{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       domain.Buy,
		EntryPrice: avgPrice,
		Quantity:   qty,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Mode:       snap.Mode,
		StrategyID: strategyID,
		OpenedAt:   now,
	}
	if err := e.lifecycle.repo.CreatePosition(ctx, pos); err != nil {
		e.logger.Error(ctx, err, "order filled but position not persisted", map[string]interface{}{
			"symbol": symbol, "qty": qty, "price": avgPrice,
		})
		return
	}
	e.lifecycle.Track(pos)

	trade := &domain.Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Type:       domain.Buy,
		Price:      avgPrice,
		Quantity:   qty,
		Timestamp:  now,
		StrategyID: strategyID,
		Mode:       snap.Mode,
	}
	if err := e.trades.CreateTrade(ctx, trade); err != nil {
		e.logger.Error(ctx, err, "failed to record buy trade", map[string]interface{}{"symbol": symbol})
	}
	e.publisher.Publish(events.Event{
		Type:    events.EventTradeExecuted,
		Payload: events.TradeExecutedPayload{Trade: trade},
	})
	e.logger.Info(ctx, "position opened", map[string]interface{}{
		"symbol": symbol, "qty": qty, "price": avgPrice, "spent": quoteAmount,
		"strategy": strategyID, "reasons": sig.Reasons,
	})
}

func (e *Engine) executeSell(ctx context.Context, exchange ports.ExchangeClient, pos *domain.Position, reason domain.CloseReason, reasons []string) {
	if !pos.IsOpen() {
		return
	}
	res, err := exchange.PlaceSellOrder(ctx, pos.Symbol, pos.Quantity)
	if err != nil {
		e.reportTradeError(ctx, pos.Symbol, domain.Sell, err)
		return
	}
	avgPrice, err := sanitizePositive("avgPrice", res.AvgPrice)
	if err != nil {
		e.reportTradeError(ctx, pos.Symbol, domain.Sell, err)
		return
	}

	now := time.Now()
	if err := e.lifecycle.Close(ctx, pos, now); err != nil {
		e.logger.Error(ctx, err, "asset sold but position not closed on record", map[string]interface{}{
			"symbol": pos.Symbol, "positionId": pos.ID,
		})
		return
	}

	profit := (avgPrice - pos.EntryPrice) * pos.Quantity
	trade := &domain.Trade{
		ID:            uuid.NewString(),
		Symbol:        pos.Symbol,
		Type:          domain.Sell,
		Price:         avgPrice,
		Quantity:      pos.Quantity,
		Timestamp:     now,
		Profit:        profit,
		ProfitPercent: pos.ProfitPercent(avgPrice) * 100,
		StrategyID:    pos.StrategyID,
		Mode:          pos.Mode,
	}
	if err := e.trades.CreateTrade(ctx, trade); err != nil {
		e.logger.Error(ctx, err, "failed to record sell trade", map[string]interface{}{"symbol": pos.Symbol})
	}
	e.publisher.Publish(events.Event{
		Type:    events.EventTradeExecuted,
		Payload: events.TradeExecutedPayload{Trade: trade},
	})
	e.logger.Info(ctx, "position closed", map[string]interface{}{
		"symbol": pos.Symbol, "price": avgPrice, "profit": profit,
		"profitPct": trade.ProfitPercent, "closeReason": reason, "reasons": reasons,
	})
}

func (e *Engine) reportTradeError(ctx context.Context, symbol string, side domain.OrderSide, err error) {
	e.publisher.Publish(events.Event{
		Type:    events.EventTradeError,
		Payload: events.TradeErrorPayload{Symbol: symbol, Side: string(side), Reason: err.Error()},
	})
	e.logger.Error(ctx, err, "trade attempt failed", map[string]interface{}{
		"symbol": symbol, "side": side,
	})
}

// startReviewLoopLocked launches the strategy-review loop. Caller holds mu.
func (e *Engine) startReviewLoopLocked(parent context.Context) {
	reviewCtx, cancel := context.WithCancel(parent)
	e.reviewCancel = cancel
	go e.reviewLoop(reviewCtx)
}

func (e *Engine) reviewLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReviewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.runReview(ctx)
		}
	}
}

// runReview is one pass of the slow loop: analyze conditions, score the
// catalog and switch strategy when the top pick clears the confidence and
// dwell gates. Every review produces a persisted decision record whether or
// not a switch happened.
func (e *Engine) runReview(ctx context.Context) {
	snap := e.Status()
	if snap.Status != domain.StatusRunning || !snap.AIEnabled {
		return
	}

	e.news.Prune()
	metrics := e.computeMetrics()
	if len(metrics) == 0 {
		return
	}
	cond := e.scorer.Analyze(metrics, e.news)
	scores := e.scorer.Score(cond)
	if len(scores) == 0 {
		return
	}
	top := scores[0]
	now := time.Now()

	e.mu.Lock()
	previous := e.state.StrategyID
	dwellOK := now.Sub(e.lastStrategyChange) >= e.cfg.MinStrategyDwell
	confOK := top.Confidence >= e.cfg.MinReviewConfidence
	applied := false
	if top.StrategyID != previous && dwellOK && confOK {
		e.state.StrategyID = top.StrategyID
		e.lastStrategyChange = now
		applied = true
	}
	e.lastScores = scores
	e.lastConditions = cond
	snapshot := e.state
	e.mu.Unlock()

	selected := previous
	var reasoning string
	switch {
	case applied:
		selected = top.StrategyID
		reasoning = fmt.Sprintf("switched to %s: score %.0f, confidence %.0f in %s market",
			top.StrategyID, top.Score, top.Confidence, cond.MarketRegime)
		e.persistState(ctx, snapshot)
		e.logger.Info(ctx, "strategy changed by review", map[string]interface{}{
			"from": previous, "to": top.StrategyID, "confidence": top.Confidence,
		})
	case top.StrategyID == previous:
		reasoning = fmt.Sprintf("keeping %s: still the top-scoring strategy", previous)
	case !confOK:
		reasoning = fmt.Sprintf("keeping %s: %s scored higher but confidence %.0f is below the %.0f threshold",
			previous, top.StrategyID, top.Confidence, e.cfg.MinReviewConfidence)
	default:
		reasoning = fmt.Sprintf("keeping %s: %s scored higher but the last switch was too recent",
			previous, top.StrategyID)
	}

	decision := &domain.AIDecision{
		ID:               uuid.NewString(),
		Timestamp:        now,
		MarketConditions: cond,
		StrategyScores:   scores,
		SelectedStrategy: selected,
		PreviousStrategy: previous,
		Reasoning:        reasoning,
		Confidence:       top.Confidence,
		ExpectedWinRate:  strategy.ExpectedWinRate(top.Score),
	}
	if err := e.decisions.CreateDecision(ctx, decision); err != nil {
		e.logger.Error(ctx, err, "failed to persist review decision", nil)
	}
	e.publisher.Publish(events.Event{
		Type:    events.EventAIDecision,
		Payload: events.AIDecisionPayload{Decision: decision},
	})
}

// computeMetrics derives per-symbol indicators from the retained histories.
func (e *Engine) computeMetrics() map[string]domain.SymbolMetrics {
	histories := e.history.Histories()
	out := make(map[string]domain.SymbolMetrics, len(histories))
	for symbol, hist := range histories {
		m := e.calc.Compute(hist)
		m.Symbol = symbol
		out[symbol] = m
	}
	return out
}

// fetchBalance returns the free quote-asset balance, falling back to the
// last known value when the backend cannot answer.
func (e *Engine) fetchBalance(ctx context.Context, exchange ports.ExchangeClient) float64 {
	balances, err := exchange.GetBalances(ctx)
	if err != nil {
		e.mu.Lock()
		last := e.lastBalance
		e.mu.Unlock()
		e.logger.Warn(ctx, "balance fetch failed, using last known", map[string]interface{}{
			"error": err.Error(), "balance": last,
		})
		return last
	}
	balance := balances[e.cfg.QuoteAsset]
	e.mu.Lock()
	e.lastBalance = balance
	e.mu.Unlock()
	return balance
}

// rollDailyBaselineLocked resets the daily loss baseline on a calendar-day
// change. Caller holds mu.
func (e *Engine) rollDailyBaselineLocked(balance float64, now time.Time) {
	today := now.Format("2006-01-02")
	if e.dailyDate != today {
		e.dailyDate = today
		e.dailyStart = balance
	}
}

func (e *Engine) recentTrades(ctx context.Context) []*domain.Trade {
	trades, err := e.trades.FindRecent(ctx, e.cfg.RecentTradeWindow)
	if err != nil {
		e.logger.Warn(ctx, "failed to load recent trades", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return trades
}

func (e *Engine) persistState(ctx context.Context, state domain.BotState) {
	if err := e.stateRepo.UpdateBotState(ctx, &state); err != nil {
		e.logger.Error(ctx, err, "failed to persist engine state", nil)
	}
}
