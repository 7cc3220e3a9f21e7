// A delivery worker consumes rendered notifications for one channel,
// selected by NOTIFY_CHANNEL, sends them through the channel's transport,
// and writes the audit row before acking.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/analytics"
	"github.com/relaypoint/notifier/internal/config"
	"github.com/relaypoint/notifier/internal/delivery"
	"github.com/relaypoint/notifier/internal/delivery/transport"
	"github.com/relaypoint/notifier/internal/domain"
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

	channel := domain.Channel(config.GetString("NOTIFY_CHANNEL", "email"))
	if !channel.Valid() {
		boot.Fatal().Str("channel", string(channel)).Msg("unknown NOTIFY_CHANNEL")
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat).With().
		Str("service", "worker").
		Str("channel", string(channel)).
		Logger()

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

	opsSrv := ops.NewServer(cfg.OpsAddr, analytics.NewReader(db), lg)
	opsSrv.AddCheck("rabbitmq", func(ctx context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	})
	opsSrv.AddCheck("postgres", db.PingContext)

	adapter, broadcaster, err := buildTransport(channel, cfg, opsSrv, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("transport init failed")
	}

	worker := delivery.NewWorker(
		channel,
		adapter,
		postgres.NewDeliveryRepo(db),
		pub,
		broadcaster,
		cfg.MaxRetries,
		lg,
	)

	// The in_app transport is a local row write, so it takes bigger batches.
	defaultPrefetch := 5
	if channel == domain.ChannelInApp {
		defaultPrefetch = 10
	}

	consumer := rabbitmq.NewConsumer(rabbitmq.Config{
		URL:      cfg.BrokerURL,
		Exchange: cfg.Exchange,
		Queue:    rabbitmq.WorkerQueue(channel),
		BindKey:  rabbitmq.DeliverySubject(channel),
		Prefetch: config.GetInt("PREFETCH", defaultPrefetch),
		Tag:      string(channel) + "-worker",
	}, worker.Handle, lg)

	opsSrv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		lg.Fatal().Err(err).Msg("consumer start failed")
	}
	lg.Info().Msg("delivery worker running")

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

// buildTransport picks the channel's adapter. The in_app worker also opens
// redis so stored notifications reach the realtime fan-out layer.
func buildTransport(channel domain.Channel, cfg *config.Config, opsSrv *ops.Server, lg zerolog.Logger) (transport.Adapter, delivery.Broadcaster, error) {
	switch channel {
	case domain.ChannelEmail:
		adapter, err := transport.NewEmailAdapter(config.LoadSMTP())
		return adapter, nil, err
	case domain.ChannelSMS:
		return transport.NewSMSAdapter(lg), nil, nil
	case domain.ChannelPush:
		return transport.NewPushAdapter(lg), nil, nil
	case domain.ChannelInApp:
		rdb, err := redisstore.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		opsSrv.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		return transport.NewInAppAdapter(lg), redisstore.NewBroadcaster(rdb), nil
	default:
		return nil, nil, errors.New("unsupported channel")
	}
}
