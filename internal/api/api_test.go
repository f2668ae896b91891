package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/security"
	"github.com/shaiso/Conveyor/internal/worker"
)

type publishedTask struct {
	queue string
	entry domain.TaskEntry
	opts  mq.PublishOptions
}

type fakeBroker struct {
	mu        sync.Mutex
	published []publishedTask
	connected atomic.Bool
}

func (b *fakeBroker) tasks() []publishedTask {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]publishedTask(nil), b.published...)
}

func (b *fakeBroker) Publish(_ context.Context, address string, body []byte, opts mq.PublishOptions) error {
	var entry domain.TaskEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedTask{queue: address, entry: entry, opts: opts})
	return nil
}

func (b *fakeBroker) Receive(context.Context, string) (<-chan mq.Delivery, error) { return nil, nil }
func (b *fakeBroker) Close() error                                                  { return nil }
func (b *fakeBroker) IsConnected() bool                                             { return b.connected.Load() }

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error { return nil }
func (c *memCache) Close() error                               { return nil }

// tokenScheme принимает только токен "good".
var tokenScheme = security.Schemes{
	"token": security.CheckerFunc(func(token string, _ http.Header) security.Data {
		if token == "good" {
			return security.OK(token, map[string]any{"sub": "user-1"})
		}
		return security.Failed(token, security.StatusAuthFailed)
	}),
}

func newTestServer(t *testing.T, cfg worker.ResourcesConfig) *httptest.Server {
	t.Helper()

	res := worker.NewResources(cfg)
	if err := res.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	mux := http.NewServeMux()
	NewHandler(Config{Resources: res, Schemes: tokenScheme}).RegisterRoutes(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, auth, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPing(t *testing.T) {
	server := newTestServer(t, worker.ResourcesConfig{})
	if resp := do(t, http.MethodGet, server.URL+"/ping", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestPublishTask(t *testing.T) {
	broker := &fakeBroker{}
	server := newTestServer(t, worker.ResourcesConfig{BrokerBackend: broker})

	resp := do(t, http.MethodPost, server.URL+"/api/v1/tasks/reports", "Token good",
		`{"task":"build","identity":"r-1","data":{"day":"2024-01-01"}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var body struct {
		Data TaskResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Queue != "reports" || body.Data.Identity != "r-1" {
		t.Errorf("unexpected response %+v", body.Data)
	}

	published := broker.tasks()
	if len(published) != 1 {
		t.Fatalf("expected 1 published task, got %d", len(published))
	}
	got := published[0]
	if got.queue != "reports" || got.entry.Task != "build" || got.entry.Data["day"] != "2024-01-01" {
		t.Errorf("unexpected published task %+v", got)
	}
	if got.opts.DeliveryMode != mq.Persistent {
		t.Errorf("tasks should be persistent, got %d", got.opts.DeliveryMode)
	}
}

func TestUploadTestTask_GeneratesIdentity(t *testing.T) {
	broker := &fakeBroker{}
	server := newTestServer(t, worker.ResourcesConfig{BrokerBackend: broker})

	resp := do(t, http.MethodPost, server.URL+"/api/v1/test/task", "Token good",
		`{"task":"test","identity":"","data":{}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	published := broker.tasks()
	if len(published) != 1 {
		t.Fatalf("expected 1 published task, got %d", len(published))
	}
	if got := published[0]; got.queue != TestQueue || len(got.entry.Identity) != 36 {
		t.Errorf("expected uuid identity on queue test, got %+v", got)
	}
}

func TestPublishTask_Rejections(t *testing.T) {
	broker := &fakeBroker{}
	server := newTestServer(t, worker.ResourcesConfig{BrokerBackend: broker})
	url := server.URL + "/api/v1/tasks/test"

	tests := []struct {
		name   string
		auth   string
		body   string
		status int
	}{
		{"no auth", "", `{"task":"t","identity":"i","data":{}}`, http.StatusUnauthorized},
		{"bad token", "Token bad", `{"task":"t","identity":"i","data":{}}`, http.StatusUnauthorized},
		{"unsupported scheme", "Basic x", `{"task":"t","identity":"i","data":{}}`, http.StatusNotImplemented},
		{"empty body", "Token good", "", http.StatusBadRequest},
		{"not json", "Token good", "not-json", http.StatusBadRequest},
		{"missing data", "Token good", `{"task":"t","identity":"i"}`, http.StatusBadRequest},
		{"too large", "Token good", strings.Repeat("x", maxTaskSize+1), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, url, tt.auth, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}

	if n := len(broker.tasks()); n != 0 {
		t.Errorf("rejected requests should not publish, got %d", n)
	}
}

func TestAuth_ResponseBody(t *testing.T) {
	server := newTestServer(t, worker.ResourcesConfig{})

	resp := do(t, http.MethodGet, server.URL+"/api/v1/test/security", "", "")
	var body security.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != 100101 || body.Message != "No auth" || body.Status != http.StatusUnauthorized {
		t.Errorf("unexpected auth response %+v", body)
	}
}

func TestTestSecurity_ReturnsClaims(t *testing.T) {
	server := newTestServer(t, worker.ResourcesConfig{})

	resp := do(t, http.MethodGet, server.URL+"/api/v1/test/security", "Token good", "")
	var body struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["sub"] != "user-1" {
		t.Errorf("unexpected claims %v", body.Data)
	}
}

func TestHealth(t *testing.T) {
	broker := &fakeBroker{}
	broker.connected.Store(true)
	server := newTestServer(t, worker.ResourcesConfig{BrokerBackend: broker})

	resp := do(t, http.MethodGet, server.URL+"/api/v1/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Checks["broker"] || body.Checks["cache"] {
		t.Errorf("unexpected checks %v", body.Checks)
	}

	broker.connected.Store(false)
	if resp := do(t, http.MethodGet, server.URL+"/api/v1/health", "", ""); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without broker connection, got %d", resp.StatusCode)
	}
}

func TestTestCache(t *testing.T) {
	c := &memCache{data: map[string][]byte{}}
	server := newTestServer(t, worker.ResourcesConfig{CacheBackend: c})

	if resp := do(t, http.MethodPost, server.URL+"/api/v1/test/cache", "", "hello"); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp := do(t, http.MethodGet, server.URL+"/api/v1/test/cache", "", "")
	var body struct {
		Data CacheResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Cache == nil || *body.Data.Cache != "hello" {
		t.Errorf("unexpected cache value %v", body.Data.Cache)
	}

	if resp := do(t, http.MethodPost, server.URL+"/api/v1/test/cache", "", strings.Repeat("x", 1025)); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for oversized value, got %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, server.URL+"/api/v1/test/cache", "", "\xff\xfe"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid utf-8, got %d", resp.StatusCode)
	}
}

func TestNotConfigured(t *testing.T) {
	server := newTestServer(t, worker.ResourcesConfig{})

	for _, path := range []string{"/api/v1/test/cache", "/api/v1/test/database"} {
		if resp := do(t, http.MethodGet, server.URL+path, "", ""); resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, resp.StatusCode)
		}
	}
}
