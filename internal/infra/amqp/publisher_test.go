package amqp_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/infra/amqp"
	"github.com/rabbitmq/amqp091-go"
)

func TestRoutingKey(t *testing.T) {
	got := amqp.RoutingKey(domain.Event{Name: domain.EventTransactionAdded})
	if got != "finance.transactionAdded" {
		t.Errorf("expected finance.transactionAdded, got %s", got)
	}
}

func TestNewPublishing(t *testing.T) {
	at := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	e := domain.Event{
		Name:       domain.EventMerchantsChanged,
		UserID:     "u1",
		SubjectID:  "m1",
		OccurredAt: at,
	}

	msg, err := amqp.NewPublishing(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ContentType != "application/json" {
		t.Errorf("expected json content type, got %s", msg.ContentType)
	}
	if msg.DeliveryMode != amqp091.Persistent {
		t.Errorf("expected persistent delivery, got %d", msg.DeliveryMode)
	}
	if !msg.Timestamp.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, msg.Timestamp)
	}

	var decoded domain.Event
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.SubjectID != "m1" || decoded.Name != domain.EventMerchantsChanged {
		t.Errorf("unexpected body %+v", decoded)
	}
}
