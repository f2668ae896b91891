package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Значения пула по умолчанию.
const (
	DefaultPoolSize    = 1
	DefaultMaxOverflow = 4
	DefaultPoolTimeout = 30 * time.Second
	DefaultRecycle     = time.Hour
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultDrainTimeout — ожидание закрытия старых пулов в Restart и Close.
	DefaultDrainTimeout = 5 * time.Second

	healthCheckPeriod = 30 * time.Second
	pingTimeout       = 5 * time.Second
)

// Config — конфигурация одной именованной базы.
type Config struct {
	// URL — postgres:// DSN.
	URL string

	// PoolSize — постоянное число соединений (default: 1).
	PoolSize int32

	// MaxOverflow — сколько соединений можно открыть сверх PoolSize (default: 4).
	MaxOverflow int32

	// PoolTimeout — ожидание свободного соединения в Acquire (default: 30s).
	PoolTimeout time.Duration

	// Recycle — максимальное время жизни соединения (default: 1h).
	Recycle time.Duration

	// IdleTimeout — сколько соединение может простаивать в пуле (default: 5m).
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MaxOverflow < 0 {
		c.MaxOverflow = 0
	} else if c.MaxOverflow == 0 {
		c.MaxOverflow = DefaultMaxOverflow
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = DefaultPoolTimeout
	}
	if c.Recycle <= 0 {
		c.Recycle = DefaultRecycle
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	return c
}

// poolConfig переводит Config в pgxpool.Config.
//
// MinConns остаётся 0: пул не подключается до первого Acquire,
// поэтому объявление базы не требует живого сервера.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pc.MaxConns = c.PoolSize + c.MaxOverflow
	pc.MinConns = 0
	pc.MaxConnLifetime = c.Recycle
	pc.MaxConnIdleTime = c.IdleTimeout
	pc.HealthCheckPeriod = healthCheckPeriod

	// pre-ping: битое соединение отбрасывается до выдачи из пула
	pc.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return conn.Ping(pingCtx) == nil
	}

	return pc, nil
}
