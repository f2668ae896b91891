package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/database"
	"github.com/shaiso/Conveyor/internal/mq"
)

// events — общий журнал вызовов фейков, чтобы проверять порядок.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(s string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, s)
}

func (e *events) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

// --- Acknowledger ---

type outcome struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu       sync.Mutex
	outcomes []outcome
	notify   chan outcome
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{notify: make(chan outcome, 100)}
}

func (a *fakeAcknowledger) record(o outcome) error {
	a.mu.Lock()
	a.outcomes = append(a.outcomes, o)
	a.mu.Unlock()
	a.notify <- o
	return nil
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	return a.record(outcome{tag: tag, ack: true})
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	return a.record(outcome{tag: tag, requeue: requeue})
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.record(outcome{tag: tag, requeue: requeue})
}

func (a *fakeAcknowledger) all() []outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]outcome(nil), a.outcomes...)
}

// wait ждёт следующий ack/nack.
func (a *fakeAcknowledger) wait(t *testing.T) outcome {
	t.Helper()
	select {
	case o := <-a.notify:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for ack/nack")
		return outcome{}
	}
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) mq.Delivery {
	return mq.NewDelivery(amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Body:         []byte(body),
	})
}

// --- Broker ---

type published struct {
	address string
	body    []byte
}

type fakeBroker struct {
	mu         sync.Mutex
	streams    map[string]chan mq.Delivery
	published  []published
	publishErr error
	closed     int
	log        *events
}

func newFakeBroker(log *events) *fakeBroker {
	return &fakeBroker{streams: make(map[string]chan mq.Delivery), log: log}
}

func (b *fakeBroker) stream(address string) chan mq.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.streams[address]
	if !ok {
		ch = make(chan mq.Delivery, 16)
		b.streams[address] = ch
	}
	return ch
}

func (b *fakeBroker) Publish(_ context.Context, address string, body []byte, _ mq.PublishOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{address: address, body: body})
	return nil
}

func (b *fakeBroker) Receive(_ context.Context, address string) (<-chan mq.Delivery, error) {
	return b.stream(address), nil
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	b.closed++
	b.mu.Unlock()
	b.log.add("close broker")
	return nil
}

func (b *fakeBroker) publishedMessages() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.published...)
}

// --- Databases ---

type fakeDatabases struct {
	mu       sync.Mutex
	restarts int
	closed   int
	log      *events
}

func (d *fakeDatabases) Pool(name string) (*pgxpool.Pool, error) {
	return nil, database.ErrUnknownDatabase
}

func (d *fakeDatabases) Acquire(_ context.Context, name string) (*pgxpool.Conn, error) {
	return nil, database.ErrUnknownDatabase
}

func (d *fakeDatabases) Restart(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restarts++
	return nil
}

func (d *fakeDatabases) Close() {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	d.log.add("close databases")
}

func (d *fakeDatabases) restartCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.restarts
}

// --- Cache ---

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	log  *events
}

func newFakeCache(log *events) *fakeCache {
	return &fakeCache{data: make(map[string][]byte), log: log}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Close() error {
	c.log.add("close cache")
	return nil
}

// --- helpers ---

var errBoom = errors.New("boom")

func newTestResources(t *testing.T, broker *fakeBroker, dbs *fakeDatabases) *Resources {
	t.Helper()

	cfg := ResourcesConfig{}
	if broker != nil {
		cfg.BrokerBackend = broker
	}
	if dbs != nil {
		cfg.DatabaseSet = dbs
	}

	res := NewResources(cfg)
	if err := res.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize resources: %v", err)
	}
	return res
}
