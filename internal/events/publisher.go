package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"tienditabot/internal/domain"
)

// Config selects the broker and where turns are published.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	Producer   string
}

// amqpChannel is the part of *amqp091.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher implements domain.ConversationLog on a RabbitMQ topic exchange.
type Publisher struct {
	conn       *amqp091.Connection
	channel    func() (amqpChannel, error)
	exchange   string
	routingKey string
	producer   string
	logger     *slog.Logger
}

// NewPublisher dials the broker and declares the durable topic exchange.
func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	p := newPublisher(cfg, logger, func() (amqpChannel, error) { return conn.Channel() })
	p.conn = conn
	return p, nil
}

func newPublisher(cfg Config, logger *slog.Logger, open func() (amqpChannel, error)) *Publisher {
	key := cfg.RoutingKey
	if key == "" {
		key = "conversation.turn"
	}
	return &Publisher{
		channel:    open,
		exchange:   cfg.Exchange,
		routingKey: key,
		producer:   cfg.Producer,
		logger:     logger,
	}
}

// Record publishes ex as a conversation.turn.v1 event.
func (p *Publisher) Record(ctx context.Context, ex domain.Exchange) error {
	return p.Publish(ctx, p.routingKey, NewTurnEnvelope(ex, p.producer, time.Now()))
}

// Publish sends a persistent JSON message on a short-lived channel.
func (p *Publisher) Publish(ctx context.Context, key string, env Envelope[domain.Exchange]) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	msgID := env.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if env.Meta.CorrelationID != nil {
		cid = *env.Meta.CorrelationID
	}

	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	p.logger.Debug("event published", "exchange", p.exchange, "key", key, "id", msgID)
	return nil
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
