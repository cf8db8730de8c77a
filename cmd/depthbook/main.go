package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbitcex/depthbook/internal/api"
	"github.com/orbitcex/depthbook/internal/config"
	"github.com/orbitcex/depthbook/internal/feed"
	"github.com/orbitcex/depthbook/internal/metrics"
	"github.com/orbitcex/depthbook/internal/orderbook"
	"github.com/orbitcex/depthbook/internal/sequencer"
	"github.com/orbitcex/depthbook/pkg/logger"
	"github.com/orbitcex/depthbook/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	manager := orderbook.NewManager(cfg.Instruments, zapLogger)
	client := feed.NewClient(cfg.Feed.WSURL, cfg.Feed.SnapshotURL, cfg.Instruments, zapLogger)
	group := sequencer.NewGroup(manager, client, sequencer.Config{
		RetryMin:  cfg.Sequencer.RetryMin,
		RetryMax:  cfg.Sequencer.RetryMax,
		BufferCap: cfg.Sequencer.BufferCap,
	}, zapLogger, m)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group.Start(ctx)

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			zapLogger.Error("feed client stopped", zap.Error(err))
		}
	}()

	// Single writer: one goroutine drains the feed and drives the
	// per-instrument sequencers.
	go func() {
		for ev := range client.Events() {
			group.Handle(ctx, ev)
		}
	}()

	go collectBookGauges(ctx, manager, m)

	server := api.NewServer(zapLogger, manager, group, cfg.DepthTiers, reg)
	httpServer := &http.Server{Addr: cfg.API.Addr, Handler: server.Router()}
	go func() {
		zapLogger.Info("api listening", zap.String("addr", cfg.API.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("api server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("api shutdown failed", zap.Error(err))
	}
}

func collectBookGauges(ctx context.Context, manager *orderbook.Manager, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ins := range manager.Instruments() {
				book, ok := manager.Book(ins)
				if !ok {
					continue
				}
				orders, bidLevels, askLevels := book.Counts()
				m.BookOrders.WithLabelValues(ins).Set(float64(orders))
				m.BookLevels.WithLabelValues(ins, models.SideBid.String()).Set(float64(bidLevels))
				m.BookLevels.WithLabelValues(ins, models.SideAsk.String()).Set(float64(askLevels))
				m.PoolHits.WithLabelValues(ins).Set(float64(book.PoolStats().Hits))
			}
		}
	}
}
