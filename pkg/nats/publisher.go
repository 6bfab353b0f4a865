// Package nats publishes committed ledger events to a JetStream stream so
// external consumers can follow the log. Delivery here is a notification
// channel only: the SQLite event log remains the source of truth, and
// in-process read models never depend on it.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/corebank/ledger/pkg/eventsourcing"
)

// Config holds publisher configuration.
type Config struct {
	// URL is the NATS server URL.
	URL string

	// StreamName is the JetStream stream events are published into.
	StreamName string

	// SubjectPrefix is prepended to every event subject. Events land on
	// "<prefix>.<AggregateType>.<EventType>".
	SubjectPrefix string

	// MaxAge is how long the stream retains events.
	MaxAge time.Duration

	// MaxBytes caps the stream's storage.
	MaxBytes int64
}

// DefaultConfig returns the defaults for the ledger event stream.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StreamName:    "LEDGER_EVENTS",
		SubjectPrefix: "ledger.events",
		MaxAge:        7 * 24 * time.Hour,
		MaxBytes:      1024 * 1024 * 1024,
	}
}

// Envelope is the wire format for a published event.
type Envelope struct {
	MessageID     string          `json:"messageId"`
	EventID       string          `json:"eventId"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	EventNumber   int64           `json:"eventNumber"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// Publisher writes committed events to JetStream. Duplicate publishes of
// the same event are deduplicated by the event ID.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(config Config) (*Publisher, error) {
	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js, config: config}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      p.config.StreamName,
		Subjects:  []string{p.config.SubjectPrefix + ".>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    p.config.MaxAge,
		MaxBytes:  p.config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	_, err := p.js.StreamInfo(p.config.StreamName)
	if err != nil {
		if _, err := p.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("create stream %s: %w", p.config.StreamName, err)
		}
		return nil
	}

	if _, err := p.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("update stream %s: %w", p.config.StreamName, err)
	}
	return nil
}

// PublishEvent publishes one committed event. The subject encodes the
// aggregate and event type so consumers can subscribe selectively.
func (p *Publisher) PublishEvent(ctx context.Context, event *eventsourcing.Event) error {
	envelope := Envelope{
		MessageID:     uuid.NewString(),
		EventID:       event.ID,
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		EventNumber:   event.EventNumber,
		Timestamp:     event.Timestamp,
		Data:          json.RawMessage(event.Data),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope for event %s: %w", event.ID, err)
	}

	subject := fmt.Sprintf("%s.%s.%s", p.config.SubjectPrefix, event.AggregateType, event.EventType)
	_, err = p.js.Publish(subject, payload, nats.MsgId(event.ID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
