package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"registryd/internal/flows"
	"registryd/internal/platform/config"
	"registryd/internal/platform/logger"
	"registryd/internal/platform/metrics"
	"registryd/internal/queue"
	"registryd/internal/registries"
	"registryd/internal/session"
	"registryd/internal/store"
	"registryd/internal/store/memory"
	"registryd/internal/store/postgres"
	"registryd/internal/watch"
)

// deps is the dependency graph shared by every subcommand. Dev mode swaps
// the external backends for in-memory ones so the binary runs standalone.
type deps struct {
	cfg        config.Config
	logger     *slog.Logger
	store      store.Store
	dns        queue.DNS
	async      queue.Async
	sessions   flows.Sessions
	registries *registries.Registries
	metrics    *metrics.Metrics
	promReg    *prometheus.Registry
	history    *watch.KafkaSink

	closers []func()
}

func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	d := &deps{
		cfg:     cfg,
		logger:  logger.New(cfg.LogLevel, cfg.DevMode),
		promReg: prometheus.NewRegistry(),
	}
	d.promReg.MustRegister(collectors.NewGoCollector())
	d.metrics = metrics.New(d.promReg)

	d.registries, err = registries.New(registries.FileLoader(cfg.TLDConfigPath))
	if err != nil {
		return nil, err
	}

	if cfg.DevMode {
		d.store = memory.New()
		mem := queue.NewMemory()
		d.dns, d.async = mem, mem
		d.sessions = session.NewMemory(cfg.SessionTTL, session.WithGauge(d.metrics.SessionsActive))
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.closers = append(d.closers, pool.Close)
		pg := postgres.New(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			d.close()
			return nil, err
		}
		d.store = pg

		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("parse redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			d.close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		rq := queue.NewRedis(client)
		d.dns, d.async = rq, rq
		d.sessions = session.NewRedis(client, cfg.SessionTTL,
			session.WithRedisGauge(d.metrics.SessionsActive))
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := watch.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaHistoryTopic, d.logger)
		if err != nil {
			d.close()
			return nil, err
		}
		d.history = sink
		d.closers = append(d.closers, sink.Close)
	}

	return d, nil
}

func (d *deps) runnerOptions() []flows.RunnerOption {
	if d.history == nil {
		return nil
	}
	return []flows.RunnerOption{flows.WithHistoryPublisher(d.history)}
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}
