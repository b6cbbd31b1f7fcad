package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"perpRiskBot/config"
	"perpRiskBot/internal/adapters/logger"
	"perpRiskBot/internal/adapters/sqlite"
	"perpRiskBot/internal/report"
)

func main() {
	tradesLimit := flag.Int("trades", 50, "number of most recent trades to show")
	eventsLimit := flag.Int("events", 30, "number of most recent events to show (0 hides them)")
	csvPath := flag.String("csv", "", "also export the listed trades to this CSV file")
	dbPath := flag.String("db", "", "database path (defaults to DB_PATH)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// 2. Initialize Logger (warnings only; stdout is for the report)
	appLogger := logger.NewZapLogger(logger.LevelWarn, cfg.LogFormat)
	defer func() { _ = appLogger.Sync() }()

	// 3. Open the Repository
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open database %s: %v", cfg.DBPath, err)
	}
	defer repo.Close()

	ctx := context.Background()
	trades, err := repo.ListTrades(ctx, *tradesLimit)
	if err != nil {
		log.Fatalf("Error listing trades: %v", err)
	}

	report.RenderTrades(os.Stdout, trades)
	fmt.Println()
	report.RenderStats(os.Stdout, report.CalculateTradeStats(trades))

	if *eventsLimit > 0 {
		events, err := repo.ListEvents(ctx, *eventsLimit)
		if err != nil {
			log.Fatalf("Error listing events: %v", err)
		}
		fmt.Println()
		report.RenderEvents(os.Stdout, events)
	}

	if *csvPath != "" {
		f, err := os.Create(*csvPath)
		if err != nil {
			log.Fatalf("Error creating CSV: %v", err)
		}
		defer f.Close()
		if err := report.WriteTradesCSV(f, trades); err != nil {
			log.Fatalf("Error writing CSV: %v", err)
		}
		fmt.Printf("\nSaved %d trades to %s\n", len(trades), *csvPath)
	}
}
