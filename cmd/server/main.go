package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HikmatBaniya/NorthstarCapital/internal/config"
	"github.com/HikmatBaniya/NorthstarCapital/internal/events"
	httpserver "github.com/HikmatBaniya/NorthstarCapital/internal/http"
	"github.com/HikmatBaniya/NorthstarCapital/internal/paper"
	"github.com/HikmatBaniya/NorthstarCapital/internal/postgres"
	"github.com/HikmatBaniya/NorthstarCapital/internal/pricing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var journal paper.Journal
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db", zap.Error(err))
		}
		defer pool.Close()
		journal = postgres.NewJournal(pool)
	} else {
		logger.Warn("DATABASE_URL not set, ledger state will not survive restarts")
		journal = paper.NewMemoryJournal()
	}

	store, err := paper.NewStore(ctx, journal, logger, cfg.DefaultCurrency)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}

	oracle := pricing.NewHTTPOracle(cfg.QuoteBaseURL, cfg.QuoteTimeout, logger)
	quotes, err := pricing.NewCachedQuoter(oracle, cfg.QuoteCacheTTL)
	if err != nil {
		logger.Fatal("quote cache", zap.Error(err))
	}

	var feed paper.Feed
	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		c, cancelTopic := context.WithTimeout(ctx, 5*time.Second)
		events.EnsureTopic(c, brokers[0], cfg.KafkaTopic, logger)
		cancelTopic()

		pub := events.NewPublisher(brokers, cfg.KafkaTopic, logger)
		defer pub.Close()
		feed = pub
	}

	executor := paper.NewExecutor(store, quotes, feed, logger)
	s := httpserver.NewServer(store, executor, logger, cfg.CORSOrigin)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: s.R}
	go func() {
		logger.Info("http listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http", zap.Error(err))
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()
	_ = server.Shutdown(ctxShut)
	logger.Info("shutdown complete")
}
