// Package amqp forwards change events to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"

	"github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var amqpTracer = otel.Tracer("infra/amqp")

const publishTimeout = 5 * time.Second

// Publisher implements port.EventPublisher.
type Publisher struct {
	conn     *amqp091.Connection
	mu       sync.Mutex // amqp channels are not safe for concurrent publish
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("amqp publisher ready", zap.String("exchange", exchange))
	return &Publisher{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// RoutingKey is "finance.<event name>", e.g. finance.transactionAdded.
func RoutingKey(e domain.Event) string {
	return "finance." + string(e.Name)
}

// NewPublishing encodes e as a persistent JSON message.
func NewPublishing(e domain.Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Name),
		Body:         body,
	}, nil
}

// Publish sends e to the exchange.
func (p *Publisher) Publish(ctx context.Context, e domain.Event) error {
	ctx, span := amqpTracer.Start(ctx, "AMQP.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("event", string(e.Name)))

	msg, err := NewPublishing(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.channel.PublishWithContext(ctx,
		p.exchange,    // exchange
		RoutingKey(e), // routing key
		false,         // mandatory
		false,         // immediate
		msg,
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("event", string(e.Name)),
		zap.String("user_id", e.UserID),
		zap.String("exchange", p.exchange),
	)
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
