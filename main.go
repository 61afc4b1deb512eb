package main

import (
	"context"
	"log" // Standard log only for fatal errors before the logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinPilot/config"
	"coinPilot/internal/adapters/binanceclient"
	"coinPilot/internal/adapters/logger"
	"coinPilot/internal/adapters/paperexchange"
	"coinPilot/internal/adapters/sqlite"
	"coinPilot/internal/api"
	"coinPilot/internal/domain"
	"coinPilot/internal/engine"
	"coinPilot/internal/events"
	"coinPilot/internal/market"
	"coinPilot/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewZeroLogger(cfg.LogLevel, cfg.LogPretty)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Clients. Paper trading is always available;
	// the live client is wired only when API keys are configured.
	exchanges := make(map[domain.TradeMode]ports.ExchangeClient)

	paper, err := paperexchange.New(paperexchange.Config{
		InitialBalance: cfg.PaperInitialBalance,
		QuoteAsset:     cfg.QuoteAsset,
		Logger:         appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper exchange: %v", err)
	}
	exchanges[domain.ModePaper] = paper

	if cfg.APIKey != "" && cfg.SecretKey != "" {
		binanceClient, err := binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		exchanges[domain.ModeReal] = binanceClient
	} else {
		appLogger.Warn(ctx, "No API keys configured, real trading disabled")
	}

	// 5. Event Bus and engine collaborators
	bus := events.NewBus()
	news := market.NewNewsAggregator(0)

	var admission engine.AdmissionPolicy
	if cfg.AdmissionPolicy == "token_bucket" {
		admission = engine.NewTokenBucket(cfg.EntryBurst, cfg.EntryInterval)
	}

	// 6. Initialize the Trading Engine
	eng := engine.New(engine.Config{
		Symbols:             cfg.Symbols,
		QuoteAsset:          cfg.QuoteAsset,
		TradingInterval:     cfg.TradingInterval,
		ReviewInterval:      cfg.ReviewInterval,
		PriceBatchSize:      cfg.PriceBatchSize,
		PriceBatchDelay:     cfg.PriceBatchDelay,
		MinReviewConfidence: cfg.MinReviewConfidence,
		MinStrategyDwell:    cfg.MinStrategyDwell,
	}, engine.Deps{
		Logger:    appLogger,
		Exchanges: exchanges,
		Positions: repo,
		Trades:    repo,
		State:     repo,
		Decisions: repo,
		Publisher: bus,
		Admission: admission,
		News:      news,
	})

	if cfg.AutoSelect {
		if err := eng.SetAutoSelect(ctx, true); err != nil {
			appLogger.Error(ctx, err, "Failed to enable automatic strategy selection")
		}
	}
	if err := eng.Restore(ctx); err != nil {
		appLogger.Error(ctx, err, "Failed to restore engine state")
	}
	if cfg.AutoStart && eng.Status().Status != domain.StatusRunning {
		if err := eng.Start(ctx, cfg.DefaultStrategy, cfg.DefaultMode); err != nil {
			appLogger.Error(ctx, err, "Auto-start failed")
		}
	}

	// 7. HTTP API
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerHost,
		Port:           cfg.ServerPort,
		ProductionMode: cfg.ProductionMode,
	}, eng, bus, appLogger)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(serverCtx)
	}()

	// 8. Wait for shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		appLogger.Info(ctx, "Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			appLogger.Error(ctx, err, "API server exited with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Error stopping engine")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, err, "Error shutting down API server")
	}
	appLogger.Info(ctx, "Application finished gracefully.")
}
