package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/cache"
)

func TestResources_NotInitialized(t *testing.T) {
	res := NewResources(ResourcesConfig{BrokerBackend: newFakeBroker(nil)})

	_, err := res.Broker()
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestResources_NotConfigured(t *testing.T) {
	res := newTestResources(t, nil, nil)

	checks := map[string]func() error{
		"cache":     func() error { _, err := res.Cache(); return err },
		"broker":    func() error { _, err := res.Broker(); return err },
		"databases": func() error { _, err := res.Databases(); return err },
		"pool":      func() error { _, err := res.Pool("main"); return err },
		"restart":   func() error { return res.RestartDatabases(context.Background()) },
	}

	for name, check := range checks {
		err := check()
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("%s: expected ErrNotConfigured, got %v", name, err)
		}
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigurationError, got %T", name, err)
		}
	}

	// HTTP-клиент есть всегда
	if _, err := res.Client(); err != nil {
		t.Errorf("client should always be available: %v", err)
	}
}

func TestResources_InitializeIdempotent(t *testing.T) {
	broker := newFakeBroker(nil)
	res := NewResources(ResourcesConfig{BrokerBackend: broker})

	for i := 0; i < 3; i++ {
		if err := res.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize #%d: %v", i, err)
		}
	}

	client1, _ := res.Client()
	_ = res.Initialize(context.Background())
	client2, _ := res.Client()
	if client1 != client2 {
		t.Error("repeated Initialize should not recreate resources")
	}
}

func TestResources_CacheFromConfig(t *testing.T) {
	res := NewResources(ResourcesConfig{Cache: &cache.Config{URL: "redis://127.0.0.1:6379/1"}})
	if err := res.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer res.Close()

	c, err := res.Cache()
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	if _, ok := c.(*cache.Redis); !ok {
		t.Errorf("expected *cache.Redis, got %T", c)
	}
}

func TestResources_CloseOrder(t *testing.T) {
	log := &events{}
	res := NewResources(ResourcesConfig{
		CacheBackend:  newFakeCache(log),
		BrokerBackend: newFakeBroker(log),
		DatabaseSet:   &fakeDatabases{log: log},
	})
	if err := res.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := res.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	want := []string{"close cache", "close broker", "close databases"}
	if got := log.get(); !reflect.DeepEqual(got, want) {
		t.Errorf("close order = %v, want %v", got, want)
	}
}

func TestResources_RestartDatabases(t *testing.T) {
	dbs := &fakeDatabases{}
	res := newTestResources(t, nil, dbs)

	if err := res.RestartDatabases(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if dbs.restartCount() != 1 {
		t.Errorf("expected 1 restart, got %d", dbs.restartCount())
	}
}

func TestResources_Values(t *testing.T) {
	res := NewResources(ResourcesConfig{})
	res.Set("region", "eu")

	if v, ok := res.Get("region"); !ok || v != "eu" {
		t.Errorf("unexpected value %v, %v", v, ok)
	}
	if _, ok := res.Get("missing"); ok {
		t.Error("missing key should not be found")
	}
}

func TestResources_NowMillis(t *testing.T) {
	res := NewResources(ResourcesConfig{})
	if res.NowMillis() < 1_600_000_000_000 {
		t.Errorf("unexpected timestamp %d", res.NowMillis())
	}
}

func TestTraceback(t *testing.T) {
	if Traceback(nil) != "" {
		t.Error("nil error should have empty traceback")
	}

	err := fmt.Errorf("task test: %w", errBoom)
	tb := Traceback(err)
	lines := strings.Split(tb, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", tb)
	}
	if !strings.Contains(lines[0], "task test: boom") || !strings.Contains(lines[1], "boom") {
		t.Errorf("unexpected traceback %q", tb)
	}

	panicErr := &PanicError{Value: "kaboom", Stack: []byte("goroutine 1 [running]")}
	tb = Traceback(fmt.Errorf("task test: %w", panicErr))
	if !strings.Contains(tb, "panic: kaboom") || !strings.Contains(tb, "goroutine 1") {
		t.Errorf("panic traceback should include stack: %q", tb)
	}
}
