package nats_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/corebank/ledger/pkg/idgen"
	ledgernats "github.com/corebank/ledger/pkg/nats"
)

func TestPublisherDeliversEnvelope(t *testing.T) {
	srv, err := ledgernats.StartEmbeddedServer()
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	defer srv.Shutdown()

	config := ledgernats.DefaultConfig()
	config.URL = srv.URL()
	publisher, err := ledgernats.NewPublisher(config)
	if err != nil {
		t.Fatalf("create publisher: %v", err)
	}
	defer publisher.Close()

	nc, err := natsgo.Connect(srv.URL())
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("ledger.events.BankAccount.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	event := &eventsourcing.Event{
		ID:            idgen.NewID(),
		AggregateID:   "acc-1",
		AggregateType: "BankAccount",
		EventType:     "MoneyDeposited",
		EventNumber:   2,
		Version:       2,
		Timestamp:     time.Now().UTC(),
		Data:          []byte(`{"amount":"50","transactionId":"tx-1"}`),
	}
	if err := publisher.PublishEvent(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.Subject != "ledger.events.BankAccount.MoneyDeposited" {
		t.Errorf("unexpected subject %s", msg.Subject)
	}

	var envelope ledgernats.Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.EventID != event.ID {
		t.Errorf("expected event ID %s, got %s", event.ID, envelope.EventID)
	}
	if envelope.EventNumber != 2 {
		t.Errorf("expected event number 2, got %d", envelope.EventNumber)
	}
	if envelope.MessageID == "" {
		t.Error("expected a message ID")
	}
	if string(envelope.Data) != string(event.Data) {
		t.Errorf("payload not passed through verbatim: %s", envelope.Data)
	}
}
