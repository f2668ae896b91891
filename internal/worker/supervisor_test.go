package worker

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestParseQueues(t *testing.T) {
	tests := map[string][]string{
		"test":          {"test"},
		"q1;q2":         {"q1", "q2"},
		" q1 ; ;q2; ":   {"q1", "q2"},
		"events/a,b;q3": {"events/a,b", "q3"},
		"":              nil,
	}

	for in, want := range tests {
		if got := ParseQueues(in); !reflect.DeepEqual(got, want) {
			t.Errorf("ParseQueues(%q) = %v, want %v", in, got, want)
		}
	}
}

func newTestSupervisor(name string, res *Resources) *Supervisor {
	return NewSupervisor(SupervisorConfig{
		Name:            name,
		Resources:       res,
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
}

func runSupervisor(ctx context.Context, s *Supervisor) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not stop")
		return nil
	}
}

func TestSupervisor_Lifecycle(t *testing.T) {
	log := &events{}
	broker := newFakeBroker(log)
	res := NewResources(ResourcesConfig{BrokerBackend: broker})
	s := newTestSupervisor("q1;q2", res)

	s.OnStartup(func(context.Context, *Resources) error { log.add("startup 1"); return nil })
	s.OnStartup(func(context.Context, *Resources) error { log.add("startup 2"); return nil })
	s.OnShutdown(func(context.Context, *Resources) error { log.add("shutdown"); return nil })

	handled := make(chan string, 2)
	s.Register("test", func(_ context.Context, _ *Resources, entry domain.TaskEntry) error {
		handled <- entry.Identity
		return nil
	})

	ack := newFakeAcknowledger()
	broker.stream("q1") <- delivery(ack, 1, `{"task":"test","identity":"from-q1","data":{}}`)
	broker.stream("q2") <- delivery(ack, 2, `{"task":"test","identity":"from-q2","data":{}}`)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runSupervisor(ctx, s)

	ack.wait(t)
	ack.wait(t)
	cancel()

	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]bool{<-handled: true, <-handled: true}
	if !got["from-q1"] || !got["from-q2"] {
		t.Errorf("expected both queues to be consumed, got %v", got)
	}

	want := []string{"startup 1", "startup 2", "shutdown", "close broker"}
	if events := log.get(); !reflect.DeepEqual(events, want) {
		t.Errorf("lifecycle = %v, want %v", events, want)
	}
}

func TestSupervisor_StartupHookErrorStillShutsDown(t *testing.T) {
	log := &events{}
	res := NewResources(ResourcesConfig{BrokerBackend: newFakeBroker(log)})
	s := newTestSupervisor("test", res)

	s.OnStartup(func(context.Context, *Resources) error { return errBoom })
	s.OnStartup(func(context.Context, *Resources) error { log.add("startup 2"); return nil })
	s.OnShutdown(func(context.Context, *Resources) error { log.add("shutdown"); return nil })

	err := s.Run(context.Background())
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	want := []string{"shutdown", "close broker"}
	if events := log.get(); !reflect.DeepEqual(events, want) {
		t.Errorf("lifecycle = %v, want %v", events, want)
	}
}

func TestSupervisor_NoTasks(t *testing.T) {
	s := newTestSupervisor("", newTestResources(t, newFakeBroker(nil), nil))
	if err := s.Run(context.Background()); !errors.Is(err, ErrNoTasks) {
		t.Errorf("expected ErrNoTasks, got %v", err)
	}
}

func TestSupervisor_LoopFailuresAreContained(t *testing.T) {
	res := NewResources(ResourcesConfig{})
	s := newTestSupervisor("", res)

	var ticks atomic.Int32
	var gotSupervisor atomic.Pointer[Supervisor]

	_ = s.Loop("fails", func(context.Context, *Supervisor, *Resources) error { return errBoom })
	_ = s.Loop("panics", func(context.Context, *Supervisor, *Resources) error { panic("kaboom") })
	_ = s.Loop("ticker", func(ctx context.Context, sup *Supervisor, _ *Resources) error {
		gotSupervisor.Store(sup)
		for {
			ticks.Add(1)
			if err := sleep(ctx, 5*time.Millisecond); err != nil {
				return err
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := runSupervisor(ctx, s)

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := waitRun(t, errCh); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticks.Load() < 5 {
		t.Errorf("ticker loop should keep running after other loops fail, ticks=%d", ticks.Load())
	}
	if gotSupervisor.Load() != s {
		t.Error("loop should receive its supervisor")
	}
}

func TestSupervisor_AllTasksFinish(t *testing.T) {
	s := newTestSupervisor("", NewResources(ResourcesConfig{}))
	_ = s.Loop("once", func(context.Context, *Supervisor, *Resources) error { return nil })

	if err := waitRun(t, runSupervisor(context.Background(), s)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSupervisor_TaskNames(t *testing.T) {
	s := newTestSupervisor("q1;q2", NewResources(ResourcesConfig{}))
	_ = s.Loop("heartbeat", func(context.Context, *Supervisor, *Resources) error { return nil })

	var keys, names []string
	for _, task := range s.tasks() {
		keys = append(keys, task.key)
		names = append(names, task.name)
	}

	wantKeys := []string{"heartbeat", "q1.worker", "q2.worker"}
	wantNames := []string{"Worker-q1;q2-Loop.heartbeat", "Worker-q1", "Worker-q2"}
	if !reflect.DeepEqual(keys, wantKeys) {
		t.Errorf("keys = %v, want %v", keys, wantKeys)
	}
	if !reflect.DeepEqual(names, wantNames) {
		t.Errorf("names = %v, want %v", names, wantNames)
	}
}
