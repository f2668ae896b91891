package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SetupTopology объявляет durable-очереди для адресов без exchange.
//
// Адреса вида "exchange/routing" пропускаются: для них consumer
// создаёт временную exclusive-очередь при подписке.
func SetupTopology(ctx context.Context, conn *Connection, addresses []string) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, address := range addresses {
			addr := ParseAddress(address)
			if addr.HasExchange() || addr.RoutingKey == "" {
				continue
			}

			_, err := ch.QueueDeclare(
				addr.RoutingKey, // name
				true,            // durable
				false,           // delete when unused
				false,           // exclusive
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", addr.RoutingKey, err)
			}
		}
		return nil
	})
}

// declareReceiveQueue готовит очередь для потребления и возвращает её имя.
//
//   - "queue" — существующая именованная очередь (проверяется passive declare)
//   - "exchange/k1,k2" — временная exclusive-очередь, привязанная к exchange
//     по каждому ключу (без ключей — привязка с пустым ключом)
//
// Если задан defaultExchange, именованная очередь дополнительно
// привязывается к нему по своему имени.
func declareReceiveQueue(ch *amqp.Channel, addr Address, defaultExchange string) (string, error) {
	var queue amqp.Queue
	var err error

	if !addr.HasExchange() && addr.RoutingKey != "" {
		queue, err = ch.QueueDeclarePassive(
			addr.RoutingKey, // name
			true,            // durable
			false,           // delete when unused
			false,           // exclusive
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return "", fmt.Errorf("queue %s: %w", addr.RoutingKey, err)
		}
	} else {
		queue, err = ch.QueueDeclare(
			"",    // server-named
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return "", fmt.Errorf("declare temporary queue: %w", err)
		}
	}

	exchange := addr.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}
	if exchange == "" {
		return queue.Name, nil
	}

	keys := addr.Bindings()
	if len(keys) == 0 {
		keys = []string{""}
	}
	for _, key := range keys {
		if err := ch.QueueBind(queue.Name, key, exchange, false, nil); err != nil {
			return "", fmt.Errorf("bind %s to %s [%s]: %w", queue.Name, exchange, key, err)
		}
	}

	return queue.Name, nil
}
