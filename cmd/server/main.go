package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stocksim/stocksim/internal/config"
	"github.com/stocksim/stocksim/internal/infrastructure/logger"
	"github.com/stocksim/stocksim/internal/infrastructure/quotes"
	"github.com/stocksim/stocksim/internal/infrastructure/storage"
	"github.com/stocksim/stocksim/internal/realtime"
	"github.com/stocksim/stocksim/internal/usecase"
	"github.com/stocksim/stocksim/internal/web"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Quote Sources (primary with transparent fallback)
	chain := quotes.NewChainSource(log,
		quotes.NewYahooSource(cfg.Quotes.YahooEndpoint),
		quotes.NewFinnhubSource(cfg.Quotes.FinnhubEndpoint, cfg.Quotes.FinnhubAPIKey),
	)
	quoteSource := quotes.NewCachingSource(chain)

	// 5. Init Services
	hub := realtime.NewHub(log)
	executor := usecase.NewTradeExecutor(store, quoteSource, hub, log)
	monitor := usecase.NewPriceMonitor(
		store,
		quoteSource,
		executor,
		time.Duration(cfg.Monitor.IntervalSeconds)*time.Second,
		cfg.Monitor.QuoteConcurrency,
		log,
	)

	startingBalance, err := decimal.NewFromString(cfg.Simulation.StartingBalance)
	if err != nil {
		log.Fatal("Invalid starting balance in config", zap.Error(err))
	}

	// 6. Start Monitor
	monitor.Start()

	// 7. Init Web Server
	server := web.NewServer(cfg.Server.Port, store, executor, monitor, quoteSource, hub, startingBalance, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	monitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
