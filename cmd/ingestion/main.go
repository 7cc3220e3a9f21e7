// The ingestion stage consumes submitted events from notifications.events,
// validates and deduplicates them, attaches the recipient's contact
// snapshot, and publishes enriched events downstream.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaypoint/notifier/internal/analytics"
	"github.com/relaypoint/notifier/internal/config"
	"github.com/relaypoint/notifier/internal/ingestion"
	"github.com/relaypoint/notifier/internal/logger"
	"github.com/relaypoint/notifier/internal/messaging/rabbitmq"
	"github.com/relaypoint/notifier/internal/ops"
	"github.com/relaypoint/notifier/internal/storage/postgres"
	redisstore "github.com/relaypoint/notifier/internal/storage/redis"
)

func main() {
	boot := logger.New("info", "json")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "ingestion").Logger()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		lg.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(db); err != nil {
			lg.Fatal().Err(err).Msg("migrations failed")
		}
		lg.Info().Msg("migrations applied")
	}

	rdb, err := redisstore.New(cfg.RedisURL)
	if err != nil {
		lg.Fatal().Err(err).Msg("redis connect failed")
	}
	defer rdb.Close()

	conn, ch, err := rabbitmq.Connect(cfg.BrokerURL, cfg.Exchange)
	if err != nil {
		lg.Fatal().Err(err).Msg("rabbitmq connect failed")
	}
	defer conn.Close()
	defer ch.Close()

	pub, err := rabbitmq.NewPublisher(ch, cfg.Exchange, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("publisher init failed")
	}

	svc := ingestion.NewService(
		postgres.NewUserRepo(db),
		redisstore.NewDedupStore(rdb, cfg.DedupTTL),
		pub,
		lg,
	)

	consumer := rabbitmq.NewConsumer(rabbitmq.Config{
		URL:      cfg.BrokerURL,
		Exchange: cfg.Exchange,
		Queue:    rabbitmq.QueueIngestion,
		BindKey:  rabbitmq.SubjectEvents,
		Prefetch: config.GetInt("PREFETCH", 10),
		Tag:      "ingestion",
	}, svc.Handle, lg)

	opsSrv := ops.NewServer(cfg.OpsAddr, analytics.NewReader(db), lg)
	opsSrv.AddCheck("rabbitmq", func(ctx context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	})
	opsSrv.AddCheck("postgres", db.PingContext)
	opsSrv.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	opsSrv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		lg.Fatal().Err(err).Msg("consumer start failed")
	}
	lg.Info().Msg("ingestion stage running")

	<-ctx.Done()
	lg.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		lg.Warn().Err(err).Msg("consumer stop timed out")
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn().Err(err).Msg("ops server shutdown failed")
	}
	lg.Info().Msg("shutdown complete")
}
