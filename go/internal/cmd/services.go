package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mcdev12/tourney-auction/go/internal/auction/config"
	"github.com/mcdev12/tourney-auction/go/internal/auction/coordinator"
	"github.com/mcdev12/tourney-auction/go/internal/auction/gateway"
	"github.com/mcdev12/tourney-auction/go/internal/auction/metrics"
	"github.com/mcdev12/tourney-auction/go/internal/auction/outbox"
	"github.com/mcdev12/tourney-auction/go/internal/auction/preference"
	"github.com/mcdev12/tourney-auction/go/internal/auction/service"
	"github.com/mcdev12/tourney-auction/go/internal/auction/store"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Store       store.Store
	DB          *sql.DB
	NATS        *nats.Conn
	Metrics     *metrics.Prometheus
	Broker      *gateway.Broker
	Relay       *outbox.Relay
	Coordinator *coordinator.Coordinator
	Auction     *service.Service
	Gateway     *gateway.Handler
	Health      *outbox.HealthChecker

	// Optional, depending on store and transport.
	Listener   *outbox.Listener
	Consumer   *gateway.EventConsumer
	TimerRelay *gateway.TimerRelay
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Relay/Broker → Coordinator → Service layer
	st, db, err := setupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Services{
		Store:   st,
		DB:      db,
		Metrics: metrics.New(),
		Broker:  gateway.NewBroker(cfg.Broker, nil),
	}

	var (
		publisher outbox.Publisher     = s.Broker
		ticks     coordinator.TickSink = s.Broker
	)
	if cfg.Transport == config.TransportNATS {
		if s.NATS, err = outbox.Connect(cfg.NATS); err != nil {
			s.Close()
			return nil, err
		}
		js, err := outbox.NewJetStreamPublisher(ctx, s.NATS, cfg.NATS)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create jetstream publisher: %w", err)
		}
		if s.Consumer, err = gateway.NewEventConsumer(ctx, s.Broker, s.NATS, cfg.Consumer); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.TimerRelay = gateway.NewTimerRelay(s.NATS, cfg.Timer.SubjectPrefix, s.Broker)
		publisher, ticks = js, s.TimerRelay
	}

	s.Relay = outbox.NewRelay(st, publisher, cfg.Outbox, outbox.WithMetrics(s.Metrics))
	if db != nil {
		s.Listener, err = outbox.NewListener(s.Relay, outbox.ListenerConfig{
			DatabaseURL:   cfg.Database.DSN(),
			NotifyChannel: cfg.Store.NotifyChannel,
			PingInterval:  cfg.Store.PingInterval,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	s.Coordinator = coordinator.New(st, cfg.Auction,
		coordinator.WithNotifier(s.Relay),
		coordinator.WithTickSink(ticks),
		coordinator.WithMetrics(s.Metrics),
	)
	s.Auction = service.NewService(s.Coordinator, preference.NewMonitor(st))
	s.Gateway = gateway.NewHandler(s.Broker, s.Coordinator, cfg.WebSocket)
	s.Health = outbox.NewHealthChecker(s.Relay, st, s.NATS)

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("transport", cfg.Transport).
		Msg("services wired")
	return s, nil
}

// Close releases connections opened by setupServices.
func (s *Services) Close() {
	if s.NATS != nil {
		if err := s.NATS.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
