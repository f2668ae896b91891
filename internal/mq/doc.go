// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - address.go    — разбор адресов "queue" и "exchange/routing"
//   - topology.go   — объявление очередей и привязок
//   - publisher.go  — публикация сообщений
//   - consumer.go   — поток сообщений из очереди с ручным ack/nack
//   - broker.go     — Broker: publish(address, bytes) и receive(address) → поток
//
// Адресация:
//   - "test"              — именованная очередь на default exchange
//   - "events/a.b,a.c"    — временная очередь, привязанная к exchange events
//     по ключам a.b и a.c
//
// Wire-протокол целиком на стороне amqp091-go, пакет только
// переводит адреса и подтверждения в термины AMQP.
package mq
