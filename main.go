package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/sreeduggirala/polytrade/config"
	"github.com/sreeduggirala/polytrade/internal/adapters/logger"
	"github.com/sreeduggirala/polytrade/internal/adapters/notify"
	"github.com/sreeduggirala/polytrade/internal/adapters/polymarket"
	"github.com/sreeduggirala/polytrade/internal/adapters/sqlite"
	"github.com/sreeduggirala/polytrade/internal/app"
	"github.com/sreeduggirala/polytrade/internal/feed"
	"github.com/sreeduggirala/polytrade/internal/mirror"
	"github.com/sreeduggirala/polytrade/internal/points"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Market Client (Polymarket Adapter)
	market, err := polymarket.New(polymarket.Config{
		DataAPIURL: cfg.DataAPIURL,
		CLOBURL:    cfg.ClobAPIURL,
		RelayURL:   cfg.RelayURL,
		Timeout:    cfg.HTTPTimeout,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Polymarket client")
		log.Fatalf("FATAL: Failed to initialize Polymarket client: %v", err)
	}
	appLogger.Info(context.Background(), "Polymarket client initialized")

	// 5. Assemble the feed: dedup filter, polling session, optional stream
	filter := feed.NewFilter(cfg.SeenHorizon, appLogger)
	session, err := feed.NewSession(feed.SessionConfig{
		Client:     market,
		Filter:     filter,
		Wallets:    cfg.TrackedWallets,
		Interval:   cfg.PollInterval,
		FetchLimit: cfg.FetchLimit,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize polling session")
		log.Fatalf("FATAL: Failed to initialize polling session: %v", err)
	}
	var stream app.TradeStream
	if cfg.EnableStream {
		s, err := polymarket.NewStream(polymarket.StreamConfig{
			URL:     cfg.StreamURL,
			Wallets: cfg.TrackedWallets,
			Out:     session.Intake(),
			Logger:  appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize live trade stream")
			log.Fatalf("FATAL: Failed to initialize live trade stream: %v", err)
		}
		stream = s
	}
	appLogger.Info(context.Background(), "Trade feed initialized", map[string]interface{}{
		"wallets": len(cfg.TrackedWallets), "streamEnabled": cfg.EnableStream})

	// 6. Initialize the mirror and points engines
	notifier := notify.NewLogNotifier(appLogger)
	mirrorEngine, err := mirror.New(mirror.Config{
		UserID:   cfg.UserID,
		Market:   market,
		Executor: market,
		Orders:   repo,
		Wallets:  repo,
		Notifier: notifier,
		Limits: mirror.Limits{
			ScaleFactor:     cfg.ScaleFactor,
			MinNotional:     cfg.MinNotional,
			MaxNotional:     cfg.MaxNotional,
			MaxOrdersPerDay: cfg.MaxOrdersPerDay,
		},
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize mirror engine")
		log.Fatalf("FATAL: Failed to initialize mirror engine: %v", err)
	}
	pointsEngine, err := points.New(repo, repo, notifier, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize points engine")
		log.Fatalf("FATAL: Failed to initialize points engine: %v", err)
	}
	appLogger.Info(context.Background(), "Mirror and points engines initialized")

	// 7. Initialize and start the Application Service
	service, err := app.NewCopyTradingService(app.ServiceConfig{
		Cfg:     cfg,
		Logger:  appLogger,
		Filter:  filter,
		Session: session,
		Stream:  stream,
		Mirror:  mirrorEngine,
		Points:  pointsEngine,
		Wallets: repo,
		Ledger:  repo,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize copy trading service")
		log.Fatalf("FATAL: Failed to initialize copy trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Copy trading service initialized")

	// Use context.Background() as the base context for the application run
	if err := service.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Copy trading service exited with error")
		log.Fatalf("FATAL: Copy trading service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
