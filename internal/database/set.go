// Package database — именованные пулы соединений PostgreSQL.
//
// Каждая база объявляется из DATABASE_URL_<name> и живёт в своём pgxpool.
// Set хранит исходные конфигурации, чтобы Restart мог пересоздать все пулы
// без перезапуска процесса. Ошибки драйвера классифицируются в Kind,
// по которому consumer loop выбирает путь восстановления.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Set — набор именованных пулов.
//
// configs не меняются после NewSet, под mu живёт только pools.
// Закрытие пулов всегда идёт вне mu: pgxpool.Pool.Close ждёт возврата
// всех выданных соединений.
type Set struct {
	mu      sync.RWMutex
	configs map[string]Config
	pools   map[string]*pgxpool.Pool
	logger  *slog.Logger

	// drainTimeout — сколько Restart и Close ждут закрытия старых пулов.
	drainTimeout time.Duration
}

// NewSet объявляет пул для каждой конфигурации.
// Соединения открываются лениво, при первом запросе.
func NewSet(ctx context.Context, configs map[string]Config, logger *slog.Logger) (*Set, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Set{
		configs: make(map[string]Config, len(configs)),
		pools:   make(map[string]*pgxpool.Pool, len(configs)),
		logger:  logger.With("component", "database"),

		drainTimeout: DefaultDrainTimeout,
	}

	for name, cfg := range configs {
		s.configs[name] = cfg.withDefaults()
	}

	pools, err := s.declare(ctx)
	if err != nil {
		return nil, err
	}
	s.pools = pools

	return s, nil
}

func (s *Set) declare(ctx context.Context) (map[string]*pgxpool.Pool, error) {
	pools := make(map[string]*pgxpool.Pool, len(s.configs))

	for name, cfg := range s.configs {
		pc, err := cfg.poolConfig()
		if err != nil {
			closeAll(pools)
			return nil, fmt.Errorf("database %s: %w", name, err)
		}

		pool, err := pgxpool.NewWithConfig(ctx, pc)
		if err != nil {
			closeAll(pools)
			return nil, Wrap(name, fmt.Errorf("database %s: new pool: %w", name, err))
		}
		pools[name] = pool
	}

	return pools, nil
}

// Pool возвращает пул по имени.
func (s *Set) Pool(name string) (*pgxpool.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, name)
	}
	return pool, nil
}

// Acquire берёт соединение из пула, ожидая не дольше PoolTimeout.
// Ошибки возвращаются уже классифицированными.
func (s *Set) Acquire(ctx context.Context, name string) (*pgxpool.Conn, error) {
	s.mu.RLock()
	pool, ok := s.pools[name]
	cfg := s.configs[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, name)
	}

	acquireCtx, cancel := context.WithTimeout(ctx, cfg.PoolTimeout)
	defer cancel()

	conn, err := pool.Acquire(acquireCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindPool, Name: name, Err: err}
		}
		return nil, Wrap(name, err)
	}
	return conn, nil
}

// Names возвращает имена баз в алфавитном порядке.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Restart объявляет пулы заново из сохранённых конфигураций и
// подменяет ими старые. Старые пулы закрываются после подмены: вызовы
// Pool и Acquire сразу получают новые пулы, а соединения, выданные
// старыми, дорабатывают до Release.
// При ошибке объявления старые пулы остаются на месте.
func (s *Set) Restart(ctx context.Context) error {
	pools, err := s.declare(ctx)
	if err != nil {
		return fmt.Errorf("restart databases: %w", err)
	}

	s.mu.Lock()
	old := s.pools
	s.pools = pools
	s.mu.Unlock()

	s.drain(old)

	s.logger.Info("databases restarted", "count", len(pools))
	return nil
}

// Close закрывает все пулы.
func (s *Set) Close() {
	s.mu.Lock()
	old := s.pools
	s.pools = map[string]*pgxpool.Pool{}
	s.mu.Unlock()

	s.drain(old)
}

// drain закрывает пулы, ожидая не дольше drainTimeout. Пулы с
// невозвращёнными соединениями дозакрываются в фоне.
func (s *Set) drain(pools map[string]*pgxpool.Pool) {
	if len(pools) == 0 {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		closeAll(pools)
	}()

	timer := time.NewTimer(s.drainTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("pools still have checked-out connections, closing in background",
			"count", len(pools),
			"timeout", s.drainTimeout,
		)
	}
}

func closeAll(pools map[string]*pgxpool.Pool) {
	for _, pool := range pools {
		pool.Close()
	}
}
