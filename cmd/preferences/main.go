// The preferences stage consumes enriched events from
// notifications.enriched, applies per-user delivery rules and the sliding
// rate limit, and publishes one routed event per allowed channel.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaypoint/notifier/internal/analytics"
	"github.com/relaypoint/notifier/internal/config"
	"github.com/relaypoint/notifier/internal/logger"
	"github.com/relaypoint/notifier/internal/messaging/rabbitmq"
	"github.com/relaypoint/notifier/internal/ops"
	"github.com/relaypoint/notifier/internal/preferences"
	"github.com/relaypoint/notifier/internal/storage/postgres"
	redisstore "github.com/relaypoint/notifier/internal/storage/redis"
)

func main() {
	boot := logger.New("info", "json")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "preferences").Logger()

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

	filter := preferences.NewFilter(
		postgres.NewPreferenceRepo(db),
		redisstore.NewRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow),
		pub,
		lg,
	)

	consumer := rabbitmq.NewConsumer(rabbitmq.Config{
		URL:      cfg.BrokerURL,
		Exchange: cfg.Exchange,
		Queue:    rabbitmq.QueuePreferences,
		BindKey:  rabbitmq.SubjectEnriched,
		Prefetch: config.GetInt("PREFETCH", 8),
		Tag:      "preferences",
	}, filter.Handle, lg)

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
	lg.Info().Msg("preferences stage running")

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
