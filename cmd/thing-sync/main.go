package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gormdb "thing-sync/internal/adapters/gorm"
	"thing-sync/internal/adapters/registry"
	"thing-sync/internal/adapters/thingsboard"
	"thing-sync/internal/adapters/wot"
	"thing-sync/internal/config"
	"thing-sync/internal/core/events"
	"thing-sync/internal/core/journal"
	tdsync "thing-sync/internal/core/sync"
	"thing-sync/internal/core/td"
	api "thing-sync/internal/delivery/http"
	"thing-sync/internal/delivery/kafka"
	"thing-sync/internal/delivery/nats"

	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().
		Str("svc", "thing-sync").Logger()

	cfg := config.MustLoad()
	log.Info().Interface("cfg", cfg).Msg("boot")

	hc := &http.Client{Timeout: cfg.HTTPTimeout}

	resolver := wot.NewResolver(hc, log)
	gen := td.NewGenerator(resolver, td.Endpoints{
		HTTPTelemetry: cfg.TBHTTPEndpoint,
		MQTTTelemetry: cfg.TBMQTTEndpoint,
		History:       cfg.TBHistoryEndpoint,
		Latest:        cfg.TBLatestEndpoint,
	}, log)

	tenantHeader := "x-tenant-id"
	if cfg.TenantAddressing == "name" {
		tenantHeader = "x-tenant-name"
	}
	reg := registry.New(registry.Config{
		BaseURL:      cfg.RegistryURL,
		Addressing:   registry.Addressing(cfg.RegistryAddressing),
		TenantHeader: tenantHeader,
	}, hc, log)

	reporter := thingsboard.NewReporter(cfg.TBDeviceAPIURL, hc, log)

	var store journal.Store = journal.Nop{}
	if cfg.JournalDSN != "" {
		db, err := gormdb.New(cfg.JournalDSN, log)
		if err != nil {
			log.Fatal().Err(err).Msg("journal db")
		}
		store = gormdb.NewJournal(db)
	}

	classifier := events.NewClassifier(events.TenantAddressing(cfg.TenantAddressing), log)
	reconciler := tdsync.NewReconciler(gen, reg, tdsync.Options{
		AssignEnabled:    cfg.AssignEnabled,
		ProbeBeforeWrite: cfg.ProbeBeforeWrite,
	}, log)
	proc := tdsync.NewProcessor(classifier, reconciler, reporter, store, log)

	// graceful-shutdown
	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Transport {
	case config.TransportKafka:
		ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := kafka.EnsureTopic(ensureCtx, cfg.KafkaBrokers, cfg.KafkaTopic, 3); err != nil {
			log.Warn().Err(err).Str("topic", cfg.KafkaTopic).Msg("ensure topic")
		}
		cancel()

		consumer := kafka.New(kafka.Config{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaTopic,
		}, proc, log)
		defer consumer.Close()

		log.Info().Str("topic", cfg.KafkaTopic).Msg("kafka consumer up")
		if err := consumer.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("kafka consumer")
		}

	case config.TransportNATS:
		consumer, err := nats.New(nats.Config{
			URL:     cfg.NATSURL,
			Stream:  cfg.NATSStream,
			Subject: cfg.NATSSubject,
			Durable: cfg.NATSDurable,
		}, proc, log)
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		defer consumer.Close()

		log.Info().Str("subject", cfg.NATSSubject).Msg("nats consumer up")
		if err := consumer.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("nats consumer")
		}

	case config.TransportWebhook:
		srv := &http.Server{Addr: cfg.ListenAddr, Handler: api.New(proc, log)}

		go func() {
			log.Info().Str("listen", cfg.ListenAddr).Msg("HTTP up")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("http")
			}
		}()

		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}

	log.Info().Msg("bye")
}
