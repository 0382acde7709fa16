package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/events"
)

// ConsumerConfig holds configuration for the NATS event consumer.
type ConsumerConfig struct {
	URL           string
	SubjectFilter string // e.g. "race.events.>"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConsumerConfig returns default NATS consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		SubjectFilter: events.SubjectPrefix + ".>",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer subscribes to the race event subjects on core NATS and
// broadcasts authoritative server events onto the matching websocket
// room. Plain pub/sub: a message missed while disconnected is gone,
// clients reconcile through the state snapshot endpoint.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	config            ConsumerConfig
}

// NewEventConsumer connects to NATS and returns a consumer.
func NewEventConsumer(cm *ConnectionManager, config ConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &EventConsumer{
		connectionManager: cm,
		nc:                nc,
		config:            config,
	}, nil
}

// Start subscribes and relays messages until the context is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("subject", ec.config.SubjectFilter).
		Msg("starting NATS event consumer")

	messageCh := make(chan *nats.Msg, 100)
	sub, err := ec.nc.ChanSubscribe(ec.config.SubjectFilter, messageCh)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", ec.config.SubjectFilter, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject).
					Msg("failed to process bus message")
			}
		}
	}
}

// processMessage turns one bus envelope into a room broadcast. Server
// events go to the whole room, originator included: the apply side is
// idempotent, so an echo is harmless.
func (ec *EventConsumer) processMessage(msg *nats.Msg) error {
	var env struct {
		EventID   string          `json:"eventId"`
		EventType string          `json:"eventType"`
		RaceID    string          `json:"raceId"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	raceID, err := uuid.Parse(env.RaceID)
	if err != nil {
		return fmt.Errorf("parse race ID: %w", err)
	}

	timestamp := env.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	ec.connectionManager.BroadcastToRace(raceID, &RaceEvent{
		ID:        env.EventID,
		RaceID:    env.RaceID,
		Type:      events.Kind(env.EventType),
		Timestamp: timestamp,
		Data:      env.Payload,
	})

	log.Debug().
		Str("event_id", env.EventID).
		Str("race_id", env.RaceID).
		Str("event_type", env.EventType).
		Msg("bus event broadcasted to websocket clients")

	return nil
}

// Stop closes the NATS connection.
func (ec *EventConsumer) Stop() error {
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
