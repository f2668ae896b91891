package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Conveyor/internal/database"
	"github.com/shaiso/Conveyor/internal/domain"
)

const testEntry = `{"task":"test","identity":"abc","data":{}}`

type consumerFixture struct {
	broker   *fakeBroker
	dbs      *fakeDatabases
	ack      *fakeAcknowledger
	registry *Registry
	consumer *Consumer
}

func newConsumerFixture(t *testing.T, handler TaskHandler, mutate func(*ConsumerConfig)) *consumerFixture {
	t.Helper()

	f := &consumerFixture{
		broker:   newFakeBroker(nil),
		dbs:      &fakeDatabases{},
		ack:      newFakeAcknowledger(),
		registry: NewRegistry(),
	}
	if handler != nil {
		f.registry.Register("test", handler)
	}

	cfg := ConsumerConfig{
		Queue:          "test",
		Registry:       f.registry,
		Resources:      newTestResources(t, f.broker, f.dbs),
		FailureBackoff: time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.consumer = NewConsumer(cfg)
	return f
}

// handle вызывает Handle и проверяет, что он не заснул.
func (f *consumerFixture) handle(t *testing.T, body string) error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.consumer.Handle(context.Background(), delivery(f.ack, 1, body))
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not return")
		return nil
	}
}

func TestConsumer_SuccessAcks(t *testing.T) {
	var calls int
	f := newConsumerFixture(t, func(context.Context, *Resources, domain.TaskEntry) error {
		calls++
		return nil
	}, nil)

	if err := f.handle(t, testEntry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcomes := f.ack.all()
	if len(outcomes) != 1 || !outcomes[0].ack {
		t.Errorf("expected exactly one ack, got %+v", outcomes)
	}
	if calls != 1 {
		t.Errorf("expected 1 handler call, got %d", calls)
	}
	if n := len(f.broker.publishedMessages()); n != 0 {
		t.Errorf("expected no alerts, got %d", n)
	}
}

func TestConsumer_UnregisteredAcks(t *testing.T) {
	f := newConsumerFixture(t, nil, nil)

	if err := f.handle(t, `{"task":"unknown","identity":"x","data":{}}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes := f.ack.all(); len(outcomes) != 1 || !outcomes[0].ack {
		t.Errorf("expected ack, got %+v", outcomes)
	}
}

func TestConsumer_DatabaseErrorRequeuesAndRestarts(t *testing.T) {
	f := newConsumerFixture(t, func(context.Context, *Resources, domain.TaskEntry) error {
		return fmt.Errorf("load: %w", &database.Error{Kind: database.KindConnection, Err: errBoom})
	}, nil)

	// FailureBackoff = 1h: если бы путь БД спал, handle упал бы по таймауту
	if err := f.handle(t, testEntry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcomes := f.ack.all()
	if len(outcomes) != 1 || outcomes[0].ack || !outcomes[0].requeue {
		t.Errorf("expected nack(requeue=true), got %+v", outcomes)
	}
	if f.dbs.restartCount() != 1 {
		t.Errorf("expected 1 restart, got %d", f.dbs.restartCount())
	}
	if n := len(f.broker.publishedMessages()); n != 0 {
		t.Errorf("database errors should not be alerted, got %d", n)
	}
}

func TestConsumer_DatabaseRestartThrottled(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	f := newConsumerFixture(t, func(context.Context, *Resources, domain.TaskEntry) error {
		return &database.Error{Kind: database.KindPool, Err: errBoom}
	}, func(cfg *ConsumerConfig) {
		cfg.RestartLimiter = limiter
	})

	for i := 0; i < 3; i++ {
		if err := f.handle(t, testEntry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if f.dbs.restartCount() != 1 {
		t.Errorf("expected 1 restart within the interval, got %d", f.dbs.restartCount())
	}
	if n := len(f.ack.all()); n != 3 {
		t.Errorf("every message should still be nacked, got %d outcomes", n)
	}
}

func TestConsumer_HandlerErrorAlertsRequeuesAndBacksOff(t *testing.T) {
	backoff := 50 * time.Millisecond
	f := newConsumerFixture(t, func(context.Context, *Resources, domain.TaskEntry) error {
		return errBoom
	}, func(cfg *ConsumerConfig) {
		cfg.FailureBackoff = backoff
	})

	start := time.Now()
	if err := f.handle(t, testEntry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < backoff {
		t.Errorf("expected backoff >= %v, got %v", backoff, elapsed)
	}

	outcomes := f.ack.all()
	if len(outcomes) != 1 || outcomes[0].ack || !outcomes[0].requeue {
		t.Errorf("expected nack(requeue=true), got %+v", outcomes)
	}
	if f.dbs.restartCount() != 0 {
		t.Error("generic errors should not restart databases")
	}

	msgs := f.broker.publishedMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(msgs))
	}
	if msgs[0].address != DefaultAlertAddress {
		t.Errorf("expected alert to %s, got %s", DefaultAlertAddress, msgs[0].address)
	}

	var record domain.ErrorLog
	if err := json.Unmarshal(msgs[0].body, &record); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if record.Title != alertTitle || record.MsgType != domain.ErrorLogMsgType {
		t.Errorf("unexpected alert %+v", record)
	}
	if len(record.Content) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(record.Content))
	}
	if record.Content[2][0].Text != "test-Worker is blocked, please handle" {
		t.Errorf("unexpected last paragraph %q", record.Content[2][0].Text)
	}
	wantIdentity := domain.AlertIdentity("test", "test", "abc", fmt.Errorf("task test: %w", errBoom))
	if record.Identity != wantIdentity {
		t.Errorf("alert identity = %s, want %s", record.Identity, wantIdentity)
	}
}

func TestConsumer_AlertFailureDoesNotBlockNack(t *testing.T) {
	f := newConsumerFixture(t, func(context.Context, *Resources, domain.TaskEntry) error {
		return errBoom
	}, func(cfg *ConsumerConfig) {
		cfg.FailureBackoff = 10 * time.Millisecond
	})
	f.broker.publishErr = errors.New("broker down")

	if err := f.handle(t, testEntry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcomes := f.ack.all()
	if len(outcomes) != 1 || !outcomes[0].requeue {
		t.Errorf("expected nack(requeue=true), got %+v", outcomes)
	}
}

func TestConsumer_MalformedDefaultsToFailurePath(t *testing.T) {
	f := newConsumerFixture(t, nil, func(cfg *ConsumerConfig) {
		cfg.FailureBackoff = 10 * time.Millisecond
	})

	if err := f.handle(t, "not-json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcomes := f.ack.all()
	if len(outcomes) != 1 || outcomes[0].ack || !outcomes[0].requeue {
		t.Errorf("expected nack(requeue=true), got %+v", outcomes)
	}
	if n := len(f.broker.publishedMessages()); n != 1 {
		t.Errorf("expected 1 alert, got %d", n)
	}
}

func TestConsumer_MalformedRejected(t *testing.T) {
	f := newConsumerFixture(t, nil, func(cfg *ConsumerConfig) {
		cfg.RejectMalformed = true
	})

	if err := f.handle(t, `{"task":"test"}`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcomes := f.ack.all()
	if len(outcomes) != 1 || outcomes[0].ack || outcomes[0].requeue {
		t.Errorf("expected nack(requeue=false), got %+v", outcomes)
	}
	if n := len(f.broker.publishedMessages()); n != 0 {
		t.Errorf("rejected messages should not be alerted, got %d", n)
	}
}

func TestConsumer_CancellationPropagates(t *testing.T) {
	started := make(chan struct{})
	f := newConsumerFixture(t, func(ctx context.Context, _ *Resources, _ domain.TaskEntry) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.consumer.Handle(ctx, delivery(f.ack, 1, testEntry))
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not return after cancel")
	}

	if outcomes := f.ack.all(); len(outcomes) != 0 {
		t.Errorf("cancelled message should stay unacked, got %+v", outcomes)
	}
}

func TestConsumer_RunProcessesInOrder(t *testing.T) {
	var order []string
	f := newConsumerFixture(t, func(_ context.Context, _ *Resources, entry domain.TaskEntry) error {
		order = append(order, entry.Identity)
		return nil
	}, nil)

	stream := f.broker.stream("test")
	for i, id := range []string{"a", "b", "c"} {
		body := fmt.Sprintf(`{"task":"test","identity":%q,"data":{}}`, id)
		stream <- delivery(f.ack, uint64(i+1), body)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.consumer.Run(ctx) }()

	for i := 0; i < 3; i++ {
		if o := f.ack.wait(t); !o.ack || o.tag != uint64(i+1) {
			t.Errorf("unexpected outcome #%d: %+v", i, o)
		}
	}
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if fmt.Sprint(order) != "[a b c]" {
		t.Errorf("unexpected order %v", order)
	}
}

func TestConsumer_RunStreamClosed(t *testing.T) {
	f := newConsumerFixture(t, nil, nil)
	close(f.broker.stream("test"))

	if err := f.consumer.Run(context.Background()); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
}

func TestConsumer_RunWithoutBroker(t *testing.T) {
	consumer := NewConsumer(ConsumerConfig{
		Queue:     "test",
		Resources: newTestResources(t, nil, nil),
	})

	if err := consumer.Run(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
