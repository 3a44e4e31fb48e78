package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/predictbot/config"
	"github.com/alejandrodnm/predictbot/internal/adapters/clock"
	"github.com/alejandrodnm/predictbot/internal/adapters/events"
	"github.com/alejandrodnm/predictbot/internal/adapters/funds"
	"github.com/alejandrodnm/predictbot/internal/adapters/notify"
	"github.com/alejandrodnm/predictbot/internal/adapters/postgres"
	"github.com/alejandrodnm/predictbot/internal/adapters/pricefeed"
	"github.com/alejandrodnm/predictbot/internal/adapters/scheduler"
	"github.com/alejandrodnm/predictbot/internal/adapters/storage"
	"github.com/alejandrodnm/predictbot/internal/application/market"
	"github.com/alejandrodnm/predictbot/internal/metrics"
	"github.com/alejandrodnm/predictbot/internal/ports"
)

// app holds everything a command needs.
type app struct {
	cfg      *config.Config
	engine   *market.Engine
	slots    *scheduler.SlotScheduler
	vault    *funds.Vault
	metrics  *metrics.MarketMetrics
	notifier *notify.Console
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(ctx context.Context, cfg *config.Config, table bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		metrics:  metrics.New(),
		notifier: notify.NewConsole(table).WithDecimals(cfg.Price.Decimals),
	}

	sinks := events.Multi{events.NewLogSink(slog.Default()), a.metrics}

	store, err := openStore(ctx, cfg, a)
	if err != nil {
		a.close()
		return nil, err
	}
	if sq, ok := store.(*storage.SQLiteStorage); ok && cfg.Events.Journal {
		sinks = append(sinks, sq)
	}

	if cfg.Events.PostgresDSN != "" {
		j, err := postgres.Open(ctx, cfg.Events.PostgresDSN)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("events: %w", err)
		}
		a.closers = append(a.closers, j.Close)
		sinks = append(sinks, j)
	}

	var prices ports.PriceSource
	if cfg.Price.Fixed > 0 {
		prices = pricefeed.NewFixed(cfg.Price.Fixed)
	} else {
		prices = pricefeed.NewClient(cfg.Price.BaseURL, pricefeed.WithDecimals(cfg.Price.Decimals))
	}

	clk := clock.System{}
	a.slots = scheduler.New(clk, scheduler.Config{
		Genesis:  cfg.Genesis(),
		Capacity: cfg.Scheduler.SlotCapacity,
	})

	a.vault = funds.NewVault(store)
	a.engine = market.New(store, clk, prices, a.vault, sinks, a.slots,
		market.WithObserver(a.metrics))
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, a *app) (ports.KVStore, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "redis":
		rs, err := storage.NewRedisStorage(ctx, storage.RedisConfig{
			Addr:      cfg.Storage.Redis.Addr,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rs.Close() })
		return rs, nil
	case "sqlite":
		sq, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.closers = append(a.closers, func() { _ = sq.Close() })
		return sq, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Storage.Driver)
	}
}
