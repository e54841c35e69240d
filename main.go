package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"dexpilot/config"
	"dexpilot/internal/adapters/binanceclient"
	"dexpilot/internal/adapters/helius"
	"dexpilot/internal/adapters/jupiter"
	"dexpilot/internal/adapters/logger"
	"dexpilot/internal/adapters/pricecache"
	"dexpilot/internal/adapters/sqlite"
	"dexpilot/internal/adapters/wallet"
	"dexpilot/internal/app"
	cronrunner "dexpilot/internal/cron"
	"dexpilot/internal/detector"
	"dexpilot/internal/execution"
	"dexpilot/internal/ports"
	"dexpilot/internal/registry"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
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

	// 4. Initialize Binance client (price oracle, optional exchange executor)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.BinanceAPIKey,
		SecretKey:  cfg.BinanceSecretKey,
		UseTestnet: cfg.BinanceUseTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized")

	var oracle ports.PriceOracle = binanceClient
	if cfg.RedisAddr != "" {
		cached, err := pricecache.New(pricecache.Config{
			Inner:  binanceClient,
			Client: redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}),
			TTL:    cfg.PriceCacheTTL,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize price cache")
			log.Fatalf("FATAL: Failed to initialize price cache: %v", err)
		}
		oracle = cached
		appLogger.Info(ctx, "Price cache enabled", map[string]interface{}{"redis_addr": cfg.RedisAddr})
	}

	var exchange ports.ExchangeExecutor
	if cfg.ExchangeEnabled {
		exchange = binanceClient
	}

	// 5. Initialize Swap Venue (Jupiter + Solana RPC)
	venue, err := jupiter.New(jupiter.Config{
		BaseURL: cfg.JupiterBaseURL,
		RPCURL:  cfg.SolanaRPCURL,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize swap venue")
		log.Fatalf("FATAL: Failed to initialize swap venue: %v", err)
	}

	// 6. Initialize Wallet Feed (Helius)
	feed, err := helius.New(helius.Config{
		BaseURL: cfg.HeliusBaseURL,
		APIKey:  cfg.HeliusAPIKey,
		Logger:  appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize wallet feed")
		log.Fatalf("FATAL: Failed to initialize wallet feed: %v", err)
	}

	// 7. Initialize Signer
	signer, err := wallet.New(wallet.Config{
		SeedHex:   cfg.WalletSeedHex,
		PublicKey: cfg.WalletPublicKey,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signer")
		log.Fatalf("FATAL: Failed to initialize signer: %v", err)
	}

	// 8. Assemble the engine: pipeline -> registry/detector -> engine
	pipeline, err := execution.NewPipeline(execution.Config{
		Logger:             appLogger,
		Venue:              venue,
		Signer:             signer,
		Exchange:           exchange,
		Orders:             repo,
		Trades:             repo,
		Configs:            repo,
		Positions:          repo,
		Receipts:           repo,
		DefaultSlippageBps: cfg.DefaultSlippageBps,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize execution pipeline")
		log.Fatalf("FATAL: Failed to initialize execution pipeline: %v", err)
	}

	reg, err := registry.New(appLogger, oracle, pipeline)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order registry")
		log.Fatalf("FATAL: Failed to initialize order registry: %v", err)
	}

	det, err := detector.New(detector.Config{
		Logger:         appLogger,
		Feed:           feed,
		Trades:         repo,
		Configs:        repo,
		Positions:      repo,
		Executor:       pipeline,
		TxWindow:       cfg.TxWindow,
		Freshness:      cfg.FreshnessWindow,
		PendingTTL:     cfg.PendingTradeTTL,
		AutoExecCutoff: cfg.AutoExecCutoff,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize copy-trade detector")
		log.Fatalf("FATAL: Failed to initialize copy-trade detector: %v", err)
	}

	engine, err := app.NewEngine(app.Config{
		Logger:          appLogger,
		Registry:        reg,
		Pipeline:        pipeline,
		Detector:        det,
		Oracle:          oracle,
		Venue:           venue,
		Orders:          repo,
		Trades:          repo,
		Configs:         repo,
		Positions:       repo,
		Receipts:        repo,
		MonitorInterval: cfg.MonitorInterval,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize engine")
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	// 9. Schedule background cycles
	runner := cronrunner.New(appLogger, ctx)
	if _, err := runner.Add("copy-trade-detector", cfg.DetectorCronSpec, engine.RunDetectorCycle); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to schedule detector cycle")
		log.Fatalf("FATAL: Failed to schedule detector cycle: %v", err)
	}
	if _, err := runner.Add("ledger-reconciler", cfg.ReconcileCronSpec, engine.ReconcileLedger); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to schedule ledger reconciler")
		log.Fatalf("FATAL: Failed to schedule ledger reconciler: %v", err)
	}

	// 10. Start the engine and run until interrupted
	if err := engine.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to start engine")
		log.Fatalf("FATAL: Failed to start engine: %v", err)
	}
	runner.Start()
	appLogger.Info(ctx, "Engine started", map[string]interface{}{
		"monitor_interval": cfg.MonitorInterval.String(),
		"detector_cron":    cfg.DetectorCronSpec,
		"reconcile_cron":   cfg.ReconcileCronSpec,
	})

	<-ctx.Done()

	appLogger.Info(context.Background(), "Shutdown signal received, stopping")
	runner.Stop()
	engine.Stop()
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
