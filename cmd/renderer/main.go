// The renderer consumes routed events, one durable consumer per channel,
// fills the channel's template with event data, and publishes rendered
// notifications to the delivery subjects.
package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaypoint/notifier/internal/analytics"
	"github.com/relaypoint/notifier/internal/config"
	"github.com/relaypoint/notifier/internal/domain"
	"github.com/relaypoint/notifier/internal/logger"
	"github.com/relaypoint/notifier/internal/messaging/rabbitmq"
	"github.com/relaypoint/notifier/internal/ops"
	"github.com/relaypoint/notifier/internal/render"
	"github.com/relaypoint/notifier/internal/storage/postgres"
)

func main() {
	boot := logger.New("info", "json")
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	lg := logger.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", "renderer").Logger()

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

	templates := postgres.NewTemplateRepo(db)
	prefetch := config.GetInt("PREFETCH", 5)

	var consumers []*rabbitmq.Consumer
	for _, channel := range domain.Channels() {
		svc := render.NewService(channel, templates, pub, lg)
		consumers = append(consumers, rabbitmq.NewConsumer(rabbitmq.Config{
			URL:      cfg.BrokerURL,
			Exchange: cfg.Exchange,
			Queue:    rabbitmq.RouterQueue(channel),
			BindKey:  rabbitmq.RoutedSubject(channel),
			Prefetch: prefetch,
			Tag:      "renderer-" + string(channel),
		}, svc.Handle, lg))
	}

	opsSrv := ops.NewServer(cfg.OpsAddr, analytics.NewReader(db), lg)
	opsSrv.AddCheck("rabbitmq", func(ctx context.Context) error {
		if conn.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	})
	opsSrv.AddCheck("postgres", db.PingContext)
	opsSrv.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			lg.Fatal().Err(err).Msg("consumer start failed")
		}
	}
	lg.Info().Int("consumers", len(consumers)).Msg("renderer running")

	<-ctx.Done()
	lg.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, c := range consumers {
		if err := c.Stop(shutdownCtx); err != nil {
			lg.Warn().Err(err).Msg("consumer stop timed out")
		}
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		lg.Warn().Err(err).Msg("ops server shutdown failed")
	}
	lg.Info().Msg("shutdown complete")
}
