package mq

import (
	"context"
	"log/slog"
	"time"
)

// Config — конфигурация брокера.
type Config struct {
	// URL — amqp:// или amqps:// адрес RabbitMQ.
	URL string

	// Exchange — exchange по умолчанию для адресов без "/" (опционально).
	Exchange string

	// Prefetch — prefetch для consumer'ов (default: 1).
	Prefetch int

	// RetryDelay — пауза перед повторной подпиской (default: 5s).
	RetryDelay time.Duration
}

// Broker — граница с брокером сообщений: publish и receive.
type Broker struct {
	conn      *Connection
	publisher *Publisher
	cfg       Config
	logger    *slog.Logger
}

// NewBroker подключается к RabbitMQ.
func NewBroker(cfg Config, logger *slog.Logger) (*Broker, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL()
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := NewConnection(cfg.URL, logger)
	if err != nil {
		return nil, err
	}

	return &Broker{
		conn:      conn,
		publisher: NewPublisher(conn, cfg.Exchange, logger),
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Publish публикует байты по адресу.
func (b *Broker) Publish(ctx context.Context, address string, body []byte, opts PublishOptions) error {
	return b.publisher.Publish(ctx, address, body, opts)
}

// Receive подписывается на адрес и возвращает поток сообщений.
// Поток закрывается при отмене ctx или закрытии брокера.
func (b *Broker) Receive(ctx context.Context, address string) (<-chan Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	consumer := NewConsumer(b.conn, b.logger, ConsumerConfig{
		Address:    address,
		Exchange:   b.cfg.Exchange,
		Prefetch:   b.cfg.Prefetch,
		RetryDelay: b.cfg.RetryDelay,
	})

	return consumer.Stream(ctx), nil
}

// SetupTopology объявляет durable-очереди для именованных адресов.
func (b *Broker) SetupTopology(ctx context.Context, addresses []string) error {
	return SetupTopology(ctx, b.conn, addresses)
}

// Connection возвращает соединение (для health-check).
func (b *Broker) Connection() *Connection {
	return b.conn
}

// IsConnected — есть ли живое соединение с RabbitMQ.
func (b *Broker) IsConnected() bool {
	return b.conn.IsConnected()
}

// Close закрывает соединение.
func (b *Broker) Close() error {
	return b.conn.Close()
}
