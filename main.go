package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"perpRiskBot/config"
	"perpRiskBot/internal/adapters/binanceclient"
	"perpRiskBot/internal/adapters/bybitclient"
	"perpRiskBot/internal/adapters/httpapi"
	"perpRiskBot/internal/adapters/logger"
	"perpRiskBot/internal/adapters/metrics"
	"perpRiskBot/internal/adapters/sqlite"
	"perpRiskBot/internal/app"
	"perpRiskBot/internal/domain"
	"perpRiskBot/internal/execution"
	"perpRiskBot/internal/ports"
	"perpRiskBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Repository (Database Adapter)
	defaults := domain.DefaultSettings()
	defaults.Symbol = cfg.DefaultSymbol
	defaults.Timeframe = cfg.DefaultTimeframe
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath:   cfg.DBPath,
		Logger:   appLogger,
		Defaults: &defaults,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client
	exchange, err := newExchange(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize exchange client")
		log.Fatalf("FATAL: Failed to initialize exchange client: %v", err)
	}
	appLogger.Info(ctx, "Exchange client initialized", map[string]interface{}{"exchange": cfg.Exchange, "testnet": cfg.IsTestnet})

	// 5. Initialize Strategy
	strat, err := strategy.New(strategy.Config{
		FastEMAPeriod: cfg.StrategyFastEMA,
		SlowEMAPeriod: cfg.StrategySlowEMA,
		MinCloses:     cfg.StrategyMinCloses,
		RSIPeriod:     cfg.StrategyRSIPeriod,
		RSIOverbought: cfg.StrategyRSIOverbought,
		RSIOversold:   cfg.StrategyRSIOversold,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading strategy")
		log.Fatalf("FATAL: Failed to initialize trading strategy: %v", err)
	}

	// 6. Initialize Engine
	promMetrics := metrics.NewPrometheus()
	engine, err := app.NewEngine(app.Config{
		OHLCVLimit:        cfg.OHLCVLimit,
		ErrorBackoff:      cfg.ErrorBackoff,
		EntryPollInterval: cfg.EntryPollInterval,
	}, appLogger, exchange, repo, strat, promMetrics)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	// 7. Initialize Control Surface
	server, err := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.HTTPAddr,
		Bot:            engine,
		Store:          repo,
		Journal:        execution.NewJournal(repo, appLogger, promMetrics),
		MetricsHandler: promMetrics.Handler(),
		Logger:         appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	if cfg.AutoStart {
		if err := engine.Start(ctx); err != nil {
			appLogger.Error(ctx, err, "Failed to auto-start engine")
		}
	}

	// 8. Serve until a signal arrives
	if err := server.Run(ctx); err != nil {
		appLogger.Error(ctx, err, "HTTP server exited with error")
	}

	shutdownCtx := context.WithoutCancel(ctx)
	engine.Stop(shutdownCtx)
	engine.Wait()
	appLogger.Info(shutdownCtx, "Application finished gracefully.")
}

func newExchange(cfg *config.Config, l ports.Logger) (ports.Exchange, error) {
	switch cfg.Exchange {
	case config.ExchangeBybit:
		return bybitclient.New(bybitclient.Config{
			APIKey:     cfg.APIKey,
			APISecret:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			QuoteAsset: cfg.QuoteAsset,
			Logger:     l,
		})
	case config.ExchangeBinance:
		return binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			QuoteAsset: cfg.QuoteAsset,
			Logger:     l,
		})
	default:
		return nil, errors.New("unsupported exchange " + cfg.Exchange)
	}
}
