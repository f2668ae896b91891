package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// LoopFunc — одна итерация периодического loop'а.
type LoopFunc func(ctx context.Context, res *Resources) error

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// everySchedule — фиксированный интервал без округления до секунд,
// в отличие от cron.Every.
type everySchedule time.Duration

// Next реализует cron.Schedule.
func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(s))
}

// EveryLoop вызывает fn раз в interval, точно, без округления.
// Первая итерация — через interval после старта. Loop с interval <= 0
// сразу завершается с ErrInvalidInterval.
func EveryLoop(interval time.Duration, fn LoopFunc) LoopHandler {
	if interval <= 0 {
		return func(context.Context, *Supervisor, *Resources) error {
			return fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
		}
	}
	return scheduleLoop(everySchedule(interval), fn)
}

// CronLoop вызывает fn по cron-выражению. Выражение может начинаться
// с CRON_TZ=<zone>; без него используется UTC.
func CronLoop(expr string, fn LoopFunc) (LoopHandler, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return scheduleLoop(schedule, fn), nil
}

// scheduleLoop крутит fn по расписанию до отмены ctx.
// Ошибка итерации логируется, loop продолжает работу.
func scheduleLoop(schedule cron.Schedule, fn LoopFunc) LoopHandler {
	return func(ctx context.Context, _ *Supervisor, res *Resources) error {
		logger := telemetry.FromContext(ctx)

		for {
			now := time.Now().UTC()
			next := schedule.Next(now)
			if next.IsZero() {
				// расписание больше никогда не сработает
				<-ctx.Done()
				return ctx.Err()
			}

			if err := sleep(ctx, next.Sub(now)); err != nil {
				return err
			}

			if err := fn(ctx, res); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("loop iteration failed", "error", err)
			}
		}
	}
}
