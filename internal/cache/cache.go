// Package cache — key-value кэш поверх Redis.
//
// Значения хранятся как байты, TTL задаётся с точностью до миллисекунд
// (SET ... PX). Отсутствующий ключ — это (nil, nil), а не ошибка.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultURL — адрес по умолчанию.
const DefaultURL = "redis://127.0.0.1:6379/0"

// Config — конфигурация кэша.
type Config struct {
	// URL — redis://[:password@]host:port/db
	URL string
}

// Redis — кэш поверх go-redis.
type Redis struct {
	client *redis.Client
}

// New создаёт клиент. Соединение устанавливается лениво при первом запросе.
func New(cfg Config) (*Redis, error) {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}

	return &Redis{client: redis.NewClient(opts)}, nil
}

// Get возвращает значение или nil, если ключа нет.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return data, nil
}

// Set сохраняет значение. ttl <= 0 — без истечения.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Ping проверяет соединение.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Backend возвращает go-redis клиент для операций вне Get/Set/Delete.
func (r *Redis) Backend() *redis.Client {
	return r.client
}

// Close закрывает пул соединений.
func (r *Redis) Close() error {
	return r.client.Close()
}

// TTLMillis переводит миллисекунды в time.Duration.
func TTLMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
