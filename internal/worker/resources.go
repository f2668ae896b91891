package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/cache"
	"github.com/shaiso/Conveyor/internal/database"
	"github.com/shaiso/Conveyor/internal/fetch"
	"github.com/shaiso/Conveyor/internal/mq"
)

// Broker — граница с брокером сообщений.
type Broker interface {
	Publish(ctx context.Context, address string, body []byte, opts mq.PublishOptions) error
	Receive(ctx context.Context, address string) (<-chan mq.Delivery, error)
	Close() error
}

// Cache — граница с key-value кэшем.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Databases — именованные пулы соединений.
type Databases interface {
	Pool(name string) (*pgxpool.Pool, error)
	Acquire(ctx context.Context, name string) (*pgxpool.Conn, error)
	Restart(ctx context.Context) error
	Close()
}

// ResourcesConfig — конфигурация общих ресурсов процесса.
//
// Ресурс создаётся, только если передана его конфигурация.
// Готовые реализации (CacheBackend, DatabaseSet, BrokerBackend)
// имеют приоритет над конфигурацией.
type ResourcesConfig struct {
	Cache     *cache.Config
	Databases map[string]database.Config
	Broker    *mq.Config

	// Client — настройки HTTP-клиента; клиент создаётся всегда.
	Client fetch.Config

	CacheBackend  Cache
	DatabaseSet   Databases
	BrokerBackend Broker

	Logger *slog.Logger
}

// Resources — общие для всех обработчиков ресурсы процесса:
// кэш, пулы БД, брокер и HTTP-клиент.
//
// Resources создаётся один раз, Initialize идемпотентен,
// Close вызывается один раз при остановке supervisor'а.
// Использование после Close не поддерживается.
type Resources struct {
	cfg    ResourcesConfig
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	closed      bool

	cache     Cache
	databases Databases
	broker    Broker
	client    *fetch.Client

	valuesMu sync.RWMutex
	values   map[string]any
}

// NewResources создаёт Resources. Подключения не открываются до Initialize.
func NewResources(cfg ResourcesConfig) *Resources {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Client.Logger == nil {
		cfg.Client.Logger = logger
	}

	return &Resources{
		cfg:    cfg,
		logger: logger.With("component", "resources"),
		values: make(map[string]any),
	}
}

// Initialize создаёт сконфигурированные ресурсы. Повторный вызов — no-op.
func (r *Resources) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	// 1. Брокер
	switch {
	case r.cfg.BrokerBackend != nil:
		r.broker = r.cfg.BrokerBackend
	case r.cfg.Broker != nil:
		b, err := mq.NewBroker(*r.cfg.Broker, r.logger)
		if err != nil {
			return fmt.Errorf("init broker: %w", err)
		}
		r.broker = b
	}

	// 2. Кэш
	switch {
	case r.cfg.CacheBackend != nil:
		r.cache = r.cfg.CacheBackend
	case r.cfg.Cache != nil:
		c, err := cache.New(*r.cfg.Cache)
		if err != nil {
			r.closeBroker()
			return fmt.Errorf("init cache: %w", err)
		}
		r.cache = c
	}

	// 3. Базы данных
	switch {
	case r.cfg.DatabaseSet != nil:
		r.databases = r.cfg.DatabaseSet
	case len(r.cfg.Databases) > 0:
		set, err := database.NewSet(ctx, r.cfg.Databases, r.logger)
		if err != nil {
			r.closeBroker()
			if r.cache != nil {
				_ = r.cache.Close()
			}
			return fmt.Errorf("init databases: %w", err)
		}
		r.databases = set
	}

	// 4. HTTP-клиент
	r.client = fetch.New(r.cfg.Client)

	r.initialized = true
	r.logger.Info("resources initialized",
		"broker", r.broker != nil,
		"cache", r.cache != nil,
		"databases", r.databases != nil,
	)
	return nil
}

func (r *Resources) closeBroker() {
	if r.broker != nil {
		_ = r.broker.Close()
		r.broker = nil
	}
}

// Close закрывает кэш, брокер, базы и HTTP-клиент — в этом порядке.
// Повторный вызов — no-op.
func (r *Resources) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.initialized {
		r.closed = true
		return nil
	}
	r.closed = true

	var errs []error
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if r.broker != nil {
		if err := r.broker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}
	if r.databases != nil {
		r.databases.Close()
	}
	if r.client != nil {
		r.client.Close()
	}

	r.logger.Info("resources closed")
	return errors.Join(errs...)
}

// Cache возвращает кэш или ConfigurationError.
func (r *Resources) Cache() (Cache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check("cache", r.cache != nil); err != nil {
		return nil, err
	}
	return r.cache, nil
}

// Broker возвращает брокер или ConfigurationError.
func (r *Resources) Broker() (Broker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check("broker", r.broker != nil); err != nil {
		return nil, err
	}
	return r.broker, nil
}

// Databases возвращает набор пулов или ConfigurationError.
func (r *Resources) Databases() (Databases, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check("databases", r.databases != nil); err != nil {
		return nil, err
	}
	return r.databases, nil
}

// Pool — сокращение для Databases().Pool(name).
func (r *Resources) Pool(name string) (*pgxpool.Pool, error) {
	dbs, err := r.Databases()
	if err != nil {
		return nil, err
	}
	return dbs.Pool(name)
}

// Client возвращает HTTP-клиент с rate limit.
func (r *Resources) Client() (*fetch.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check("client", r.client != nil); err != nil {
		return nil, err
	}
	return r.client, nil
}

func (r *Resources) check(resource string, configured bool) error {
	if !r.initialized {
		return &ConfigurationError{Resource: resource, Err: ErrNotInitialized}
	}
	if !configured {
		return &ConfigurationError{Resource: resource, Err: ErrNotConfigured}
	}
	return nil
}

// RestartDatabases закрывает все пулы и объявляет их заново.
// Восстанавливает битые соединения без рестарта процесса.
func (r *Resources) RestartDatabases(ctx context.Context) error {
	dbs, err := r.Databases()
	if err != nil {
		return err
	}
	return dbs.Restart(ctx)
}

// NowMillis — текущее время в миллисекундах с начала эпохи.
func (r *Resources) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Traceback форматирует ошибку для алерта.
// Для паники обработчика — стек горутины, для остальных — цепочка Unwrap.
// nil → "".
func (r *Resources) Traceback(err error) string {
	return Traceback(err)
}

// Traceback — см. Resources.Traceback.
func Traceback(err error) string {
	if err == nil {
		return ""
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) && len(panicErr.Stack) > 0 {
		return fmt.Sprintf("%s\n\n%s", panicErr.Error(), panicErr.Stack)
	}

	var b strings.Builder
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s%T: %v", strings.Repeat("  ", i), e, e)
	}
	return b.String()
}

// Set сохраняет произвольное значение, общее для обработчиков.
func (r *Resources) Set(key string, value any) {
	r.valuesMu.Lock()
	defer r.valuesMu.Unlock()
	r.values[key] = value
}

// Get возвращает значение, сохранённое через Set.
func (r *Resources) Get(key string) (any, bool) {
	r.valuesMu.RLock()
	defer r.valuesMu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}
