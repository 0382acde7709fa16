package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/clients/weather"
	"github.com/sigmateam/endurance/internal/drivers"
	"github.com/sigmateam/endurance/internal/events"
	"github.com/sigmateam/endurance/internal/gateway"
	"github.com/sigmateam/endurance/internal/laps"
	"github.com/sigmateam/endurance/internal/races"
	"github.com/sigmateam/endurance/internal/sqlutil"
)

// Services bundles the wired application layers.
type Services struct {
	Drivers *drivers.Handler
	Races   *races.Handler
	Laps    *laps.Handler
	Gateway *gateway.Service
	Weather *weather.Client

	publisher *events.NATSPublisher
}

func setupServices(config *Config, pool *pgxpool.Pool) (*Services, error) {
	// Wire up the dependency chain:
	// pool → repositories → apps → HTTP handlers

	clock := clockwork.NewRealClock()

	driversRepo := drivers.NewRepository(pool)
	racesRepo := races.NewRepository(pool)
	lapsRepo := laps.NewRepository(pool)

	var publisher events.Publisher = events.NoopPublisher{}
	var natsPublisher *events.NATSPublisher
	if config.Gateway.NATSURL != "" {
		var err error
		natsPublisher, err = events.NewNATSPublisher(config.Gateway.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		publisher = natsPublisher
	} else {
		log.Warn().Msg("NATS_URL not set, race events will not be published")
	}

	raceTx := func(ctx context.Context, fn func(s races.Stores) error) error {
		return sqlutil.Run(ctx, pool, func(tx pgx.Tx) error {
			return fn(races.Stores{
				Races: racesRepo.WithTx(tx),
				Laps:  lapsRepo.WithTx(tx),
			})
		})
	}
	lapTx := func(ctx context.Context, fn func(s laps.Stores) error) error {
		return sqlutil.Run(ctx, pool, func(tx pgx.Tx) error {
			return fn(laps.Stores{
				Laps:    lapsRepo.WithTx(tx),
				Races:   racesRepo.WithTx(tx),
				Drivers: driversRepo.WithTx(tx),
			})
		})
	}

	driversApp := drivers.NewApp(driversRepo, lapsRepo)
	racesApp := races.NewApp(racesRepo, lapsRepo, driversRepo, raceTx, clock, publisher)
	lapsApp := laps.NewApp(lapsRepo, lapTx, clock, publisher)

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.DisableConsumer = config.Gateway.DisableConsumer || config.Gateway.NATSURL == ""
	if config.Gateway.NATSURL != "" {
		gatewayConfig.ConsumerConfig.URL = config.Gateway.NATSURL
	}
	stateProvider := gateway.NewRaceStateProvider(racesApp, lapsApp)
	gatewayService, err := gateway.NewService(gatewayConfig, stateProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &Services{
		Drivers:   drivers.NewHandler(driversApp),
		Races:     races.NewHandler(racesApp),
		Laps:      laps.NewHandler(lapsApp),
		Gateway:   gatewayService,
		Weather:   weather.NewClient(getEnv("OPENWEATHER_API_KEY", "")),
		publisher: natsPublisher,
	}, nil
}

// Close releases service-held connections.
func (s *Services) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}
