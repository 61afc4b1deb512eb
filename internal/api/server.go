package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"coinPilot/internal/domain"
	"coinPilot/internal/engine"
	"coinPilot/internal/events"
	"coinPilot/internal/ports"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
}

// Server exposes the engine over HTTP plus a WebSocket event stream.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	engine     *engine.Engine
	hub        *WSHub
	logger     ports.Logger
}

// NewServer wires the routes and subscribes the WebSocket hub to the event
// bus.
func NewServer(cfg ServerConfig, eng *engine.Engine, bus *events.Bus, logger ports.Logger) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	hub := NewWSHub(logger)
	bus.SubscribeAll(hub.BroadcastEvent)

	s := &Server{
		router: router,
		engine: eng,
		hub:    hub,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: router,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	{
		bot := api.Group("/bot")
		{
			bot.POST("/start", s.startBot)
			bot.POST("/stop", s.stopBot)
			bot.GET("/status", s.botStatus)
			bot.POST("/strategy", s.changeStrategy)
			bot.POST("/auto-select", s.setAutoSelect)
		}

		riskGroup := api.Group("/risk")
		{
			riskGroup.GET("/metrics", s.riskMetrics)
			riskGroup.POST("/reset-circuit-breaker", s.resetCircuitBreaker)
		}

		api.GET("/prices", s.prices)
		api.GET("/prices/history", s.priceHistory)
		api.GET("/positions", s.positions)
		api.GET("/trades", s.trades)
		api.GET("/decisions", s.decisions)
		api.GET("/strategies", s.strategies)
		api.POST("/news", s.recordNews)
	}

	s.router.GET("/ws", s.hub.handleWS)
}

// Start runs the hub and the HTTP listener. Blocks until the listener
// stops.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.logger.Info(ctx, "API server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- Handlers ---

type startRequest struct {
	Strategy string `json:"strategy"`
	Mode     string `json:"mode"`
}

func (s *Server) startBot(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := s.engine.Start(c.Request.Context(), domain.StrategyID(req.Strategy), domain.TradeMode(req.Mode))
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ports.ErrNotConnected), errors.Is(err, ports.ErrExchangeUnavailable):
			status = http.StatusServiceUnavailable
		case errors.Is(err, ports.ErrConfigurationError), errors.Is(err, ports.ErrInvalidRequest):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) stopBot(c *gin.Context) {
	if err := s.engine.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) botStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) statusBody() gin.H {
	state := s.engine.Status()
	body := gin.H{
		"status":        state.Status,
		"strategy":      state.StrategyID,
		"mode":          state.Mode,
		"aiEnabled":     state.AIEnabled,
		"openPositions": len(s.engine.OpenPositions()),
	}
	if state.StartTime != nil {
		body["startTime"] = state.StartTime
		body["uptime"] = time.Since(*state.StartTime).Round(time.Second).String()
	}
	return body
}

type strategyRequest struct {
	Strategy string `json:"strategy"`
}

func (s *Server) changeStrategy(c *gin.Context) {
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.engine.ChangeStrategy(c.Request.Context(), domain.StrategyID(req.Strategy)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ports.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

type autoSelectRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setAutoSelect(c *gin.Context) {
	var req autoSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := s.engine.SetAutoSelect(c.Request.Context(), req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.statusBody())
}

func (s *Server) riskMetrics(c *gin.Context) {
	m := s.engine.RiskMetrics(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"volatility":              m.Volatility,
		"recommendedPositionSize": m.RecommendedPositionSize,
		"maxDrawdown":             m.MaxDrawdown,
		"currentRiskLevel":        m.CurrentRiskLevel,
		"dailyLossLimit":          m.DailyLossLimit,
		"circuitBreakerActive":    m.CircuitBreakerActive,
		"maxOpenTrades":           m.MaxOpenTrades,
		"positionSizing":          m.PositionSizing,
	})
}

func (s *Server) resetCircuitBreaker(c *gin.Context) {
	s.engine.ResetCircuitBreaker(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"circuitBreakerActive": false})
}

func (s *Server) prices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prices": s.engine.CurrentPrices()})
}

func (s *Server) priceHistory(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol query parameter is required"})
		return
	}
	history := s.engine.PriceHistory(symbol)
	points := make([]gin.H, 0, len(history))
	for _, p := range history {
		points = append(points, gin.H{
			"price":     p.Price,
			"volume":    p.Volume,
			"timestamp": p.Timestamp,
		})
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "history": points})
}

func (s *Server) positions(c *gin.Context) {
	open := s.engine.OpenPositions()
	prices := s.engine.CurrentPrices()
	out := make([]gin.H, 0, len(open))
	for _, pos := range open {
		entry := gin.H{
			"id":         pos.ID,
			"symbol":     pos.Symbol,
			"entryPrice": pos.EntryPrice,
			"quantity":   pos.Quantity,
			"stopLoss":   pos.StopLoss,
			"takeProfit": pos.TakeProfit,
			"strategy":   pos.StrategyID,
			"mode":       pos.Mode,
			"openedAt":   pos.OpenedAt,
		}
		if price, ok := prices[pos.Symbol]; ok {
			entry["currentPrice"] = price
			entry["profitPercent"] = pos.ProfitPercent(price) * 100
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (s *Server) trades(c *gin.Context) {
	limit := queryLimit(c, 50)
	trades, err := s.engine.Trades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, 0, len(trades))
	for _, t := range trades {
		out = append(out, gin.H{
			"id":            t.ID,
			"symbol":        t.Symbol,
			"type":          t.Type,
			"price":         t.Price,
			"quantity":      t.Quantity,
			"timestamp":     t.Timestamp,
			"profit":        t.Profit,
			"profitPercent": t.ProfitPercent,
			"strategy":      t.StrategyID,
			"mode":          t.Mode,
		})
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

func (s *Server) decisions(c *gin.Context) {
	limit := queryLimit(c, 20)
	decisions, err := s.engine.RecentDecisions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

func (s *Server) strategies(c *gin.Context) {
	state := s.engine.Status()
	out := make([]gin.H, 0, len(domain.Catalog()))
	for _, id := range domain.Catalog() {
		params := domain.Params(id)
		out = append(out, gin.H{
			"id":              id,
			"name":            params.Name,
			"minProfitTarget": params.MinProfitTarget,
			"takeProfit":      params.TakeProfit,
			"stopLossPct":     params.StopLossPct,
			"maxHoldDuration": params.MaxHoldDuration.String(),
			"riskFactor":      params.RiskFactor,
			"active":          id == state.StrategyID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"strategies": out})
}

type newsRequest struct {
	Symbol    string  `json:"symbol"`
	Sentiment float64 `json:"sentiment"`
	Relevance float64 `json:"relevance"`
}

func (s *Server) recordNews(c *gin.Context) {
	var req newsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol, sentiment and relevance are required"})
		return
	}
	s.engine.RecordNews(req.Symbol, req.Sentiment, req.Relevance)
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return fallback
	}
	return limit
}
