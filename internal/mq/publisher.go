package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/codec"
)

// Режимы доставки.
const (
	Transient  = amqp.Transient
	Persistent = amqp.Persistent
)

// PublishOptions — параметры публикуемого сообщения.
type PublishOptions struct {
	// ContentType — по умолчанию "application/json".
	ContentType string

	// DeliveryMode — Transient или Persistent; 0 — на усмотрение брокера.
	DeliveryMode uint8

	// MessageID — по умолчанию генерируется uuid.
	MessageID string
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn     *Connection
	exchange string
	logger   *slog.Logger
}

// NewPublisher создаёт новый Publisher.
// exchange — exchange по умолчанию для адресов без "/" (пусто — default exchange).
func NewPublisher(conn *Connection, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger,
	}
}

// Publish публикует сырые байты по адресу ("queue" или "exchange/routing").
func (p *Publisher) Publish(ctx context.Context, address string, body []byte, opts PublishOptions) error {
	addr := p.resolve(address)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	messageID := opts.MessageID
	if messageID == "" {
		messageID = uuid.New().String()
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			addr.Exchange,   // exchange
			addr.RoutingKey, // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:     contentType,
				ContentEncoding: "utf-8",
				DeliveryMode:    opts.DeliveryMode,
				MessageId:       messageID,
				Timestamp:       time.Now(),
				Body:            body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s: %w", addr, err)
		}

		p.logger.Debug("published message",
			"exchange", addr.Exchange,
			"routing_key", addr.RoutingKey,
			"message_id", messageID,
			"size", len(body),
		)

		return nil
	})
}

// PublishValue кодирует значение через codec и публикует его.
func (p *Publisher) PublishValue(ctx context.Context, address string, v any, opts PublishOptions) error {
	body, err := codec.Encode(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.Publish(ctx, address, body, opts)
}

// resolve подставляет exchange по умолчанию для адресов без "/".
func (p *Publisher) resolve(address string) Address {
	addr := ParseAddress(address)
	if !addr.HasExchange() {
		addr.Exchange = p.exchange
	}
	return addr
}
