package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultRetryDelay = 5 * time.Second

// Delivery — доставленное сообщение с методами ack/nack.
type Delivery struct {
	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// NewDelivery оборачивает AMQP сообщение.
func NewDelivery(raw amqp.Delivery) Delivery {
	return Delivery{Raw: raw}
}

// Body возвращает тело сообщения.
func (d Delivery) Body() []byte {
	return d.Raw.Body
}

// Ack подтверждает успешную обработку сообщения.
func (d Delivery) Ack() error {
	return d.Raw.Ack(false)
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отбросить (или в DLX, если настроен).
func (d Delivery) Nack(requeue bool) error {
	return d.Raw.Nack(false, requeue)
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Address — "queue" или "exchange/routing[,routing...]".
	Address string

	// Exchange — exchange по умолчанию для адресов без "/".
	Exchange string

	// Prefetch — количество неподтверждённых сообщений (default: 1).
	Prefetch int

	// RetryDelay — пауза перед повторной подпиской после ошибки (default: 5s).
	RetryDelay time.Duration
}

// Consumer превращает очередь RabbitMQ в поток Delivery.
//
// Consumer сам переподписывается после разрыва соединения или канала,
// поэтому поток не прерывается, пока не отменён контекст.
type Consumer struct {
	conn       *Connection
	logger     *slog.Logger
	addr       Address
	exchange   string
	prefetch   int
	retryDelay time.Duration
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:       conn,
		logger:     logger.With("address", cfg.Address),
		addr:       ParseAddress(cfg.Address),
		exchange:   cfg.Exchange,
		prefetch:   prefetch,
		retryDelay: retryDelay,
	}
}

// Stream запускает потребление. Канал закрывается, когда ctx отменён
// или соединение закрыто.
func (c *Consumer) Stream(ctx context.Context) <-chan Delivery {
	out := make(chan Delivery)
	go c.consume(ctx, out)
	return out
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context, out chan<- Delivery) {
	defer close(out)

	for {
		if ctx.Err() != nil {
			return
		}

		// Открываем канал и подписываемся
		ch, deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "error", err)
			if !c.waitRetry(ctx) {
				return
			}
			continue
		}

		c.logger.Info("consumer started")

		c.forward(ctx, deliveries, out)
		ch.Close()

		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("deliveries channel closed, resubscribing")
		if !c.waitRetry(ctx) {
			return
		}
	}
}

// setupConsume открывает отдельный канал, объявляет очередь и начинает потребление.
func (c *Consumer) setupConsume() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return nil, nil, err
	}

	// Устанавливаем prefetch
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	queue, err := declareReceiveQueue(ch, c.addr, c.exchange)
	if err != nil {
		ch.Close()
		return nil, nil, err
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer tag (auto-generated)
		false, // auto-ack (мы ack вручную)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return ch, deliveries, nil
}

// forward перекладывает сообщения в out, пока канал доставки открыт.
func (c *Consumer) forward(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- Delivery) {
	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-deliveries:
			if !ok {
				return
			}

			// Неподтверждённое сообщение вернётся в очередь при закрытии канала
			select {
			case out <- NewDelivery(raw):
			case <-ctx.Done():
				return
			}
		}
	}
}

// waitRetry ждёт переподключения или паузы перед новой попыткой.
// Возвращает false, если продолжать не нужно.
func (c *Consumer) waitRetry(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.conn.Done():
		return false
	case <-c.conn.Reconnected():
		c.logger.Info("reconnected, restarting consumer")
		return true
	case <-time.After(c.retryDelay):
		return true
	}
}
