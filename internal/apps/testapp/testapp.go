// Package testapp — демонстрационное приложение worker'а.
//
// Режим task регистрирует задачи "test" и "fetch",
// режим cron — loop "heartbeat".
package testapp

import (
	"context"
	"strconv"
	"time"

	"github.com/shaiso/Conveyor/internal/apps"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Name — имя приложения.
const Name = "test"

// Ключи кэша.
const (
	LastTaskKey  = "test:last"
	HeartbeatKey = "test:heartbeat"

	lastTaskTTL = time.Minute
)

const startedAtKey = "test.started_at"

// HeartbeatInterval — период loop'а heartbeat.
var HeartbeatInterval = time.Minute

// App возвращает описание приложения для apps.Loader.
func App() apps.App {
	return apps.App{
		Name: Name,
		Hooks: map[string]apps.RegisterFunc{
			apps.HookName("task"): RegisterTasks,
			apps.HookName("cron"): RegisterLoops,
		},
	}
}

// RegisterTasks регистрирует обработчики задач.
func RegisterTasks(s *worker.Supervisor) error {
	s.Register("test", handleTest)
	s.Register("fetch", handleFetch)
	return nil
}

// RegisterLoops регистрирует heartbeat и запоминает время старта.
func RegisterLoops(s *worker.Supervisor) error {
	s.OnStartup(func(_ context.Context, res *worker.Resources) error {
		res.Set(startedAtKey, res.NowMillis())
		return nil
	})
	return s.Loop("heartbeat", worker.EveryLoop(HeartbeatInterval, heartbeat))
}

// handleTest логирует задачу и, если есть кэш, сохраняет её identity.
func handleTest(ctx context.Context, res *worker.Resources, entry domain.TaskEntry) error {
	telemetry.FromContext(ctx).Info("task worker is running", "data", entry.Data)

	c, err := res.Cache()
	if err != nil {
		// кэш необязателен
		return nil
	}
	return c.Set(ctx, LastTaskKey, []byte(entry.Identity), lastTaskTTL)
}

// heartbeat пишет текущее время в кэш или, без кэша, в лог.
func heartbeat(ctx context.Context, res *worker.Resources) error {
	now := res.NowMillis()
	logger := telemetry.FromContext(ctx)

	if started, ok := res.Get(startedAtKey); ok {
		if ms, ok := started.(int64); ok {
			logger = logger.With("uptime", time.Duration(now-ms)*time.Millisecond)
		}
	}

	c, err := res.Cache()
	if err != nil {
		logger.Info("heartbeat")
		return nil
	}
	return c.Set(ctx, HeartbeatKey, []byte(strconv.FormatInt(now, 10)), 0)
}
