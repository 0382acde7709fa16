package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher moves server-originated race events onto the bus. Publishing
// is best-effort notification, never part of the authoritative write:
// callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// envelope is the bus message shape consumed by the gateway.
type envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RaceID    string          `json:"raceId"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SubjectPrefix is the NATS subject root for race events; the full
// subject is SubjectPrefix + "." + raceID.
const SubjectPrefix = "race.events"

// NATSPublisher publishes race events to core NATS. Plain pub/sub, not
// JetStream: the sync channel makes no delivery guarantee and the store
// stays the only source of truth.
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to NATS and returns a publisher.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	data, err := json.Marshal(envelope{
		EventID:   event.ID.String(),
		EventType: string(event.Type),
		RaceID:    event.RaceID.String(),
		Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.RaceID)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the NATS connection.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// NoopPublisher discards events; used when the gateway runs in-process
// relay only, and in tests.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// Emit publishes best-effort and logs the failure. Mutations must never
// fail because the notification channel is down.
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Warn().
			Err(err).
			Str("race_id", event.RaceID.String()).
			Str("event_type", string(event.Type)).
			Msg("failed to publish race event")
	}
}
