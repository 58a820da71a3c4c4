package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sreeduggirala/polytrade/config"
	"github.com/sreeduggirala/polytrade/internal/adapters/logger"
	"github.com/sreeduggirala/polytrade/internal/adapters/polymarket"
	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/utils"
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

	// 3. Initialize Market Client (Polymarket Adapter)
	market, err := polymarket.New(polymarket.Config{
		DataAPIURL: cfg.DataAPIURL,
		CLOBURL:    cfg.ClobAPIURL,
		Timeout:    cfg.HTTPTimeout,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Polymarket client")
		log.Fatalf("FATAL: Failed to initialize Polymarket client: %v", err)
	}
	appLogger.Info(context.Background(), "Polymarket client initialized")

	// 4. Fetch recent trades for every tracked wallet
	var trades []*domain.TradeEvent
	for _, wallet := range cfg.TrackedWallets {
		fmt.Printf("Fetching up to %d trades for %s...\n", cfg.FetchLimit, wallet)
		fetched, err := market.RecentTrades(context.Background(), wallet, cfg.FetchLimit)
		if err != nil {
			appLogger.Error(context.Background(), err, "Error fetching trades", map[string]interface{}{"wallet": wallet})
			log.Fatalf("Error fetching trades for %s: %v", wallet, err)
		}
		trades = append(trades, fetched...)
	}
	appLogger.Info(context.Background(), "Fetched trades", map[string]interface{}{"count": len(trades)})

	filename := fmt.Sprintf("data/trades_%s.csv", time.Now().Format("20060102_150405"))
	if err := utils.WriteTradesToCSV(trades, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
