package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggerConfig — настройки логгера процесса.
type LoggerConfig struct {
	// Service — имя бинарника, попадает в каждую запись как "service".
	Service string

	// Level — DEBUG, INFO, WARN (WARNING), ERROR; регистр не важен.
	Level string

	// Format — "json" (по умолчанию) или "text".
	Format string

	// Output — куда писать (default: os.Stdout).
	Output io.Writer
}

// ParseLevel переводит имя уровня в slog.Level. Неизвестное имя — INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogLevel — уровень из LOG_LEVEL.
func LogLevel() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// NewLogger создаёт логгер. На DEBUG в записи добавляется источник.
func NewLogger(cfg LoggerConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service, "pid", os.Getpid())
	}
	return logger
}

// SetupLogger создаёт логгер из LOG_LEVEL и LOG_FORMAT и делает его
// глобальным: slog.Default() в пакетах без своего логгера пишет туда же.
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(LoggerConfig{
		Service: service,
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
	})
	slog.SetDefault(logger)
	return logger
}

type ctxKey struct{}

// WithLogger кладёт логгер в контекст. Consumer кладёт туда логгер
// с очередью и задачей, обработчики достают его через FromContext.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext извлекает логгер из контекста или возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithQueue добавляет очередь.
func WithQueue(logger *slog.Logger, queue string) *slog.Logger {
	return logger.With("queue", queue)
}

// WithTask добавляет имя задачи и её identity.
func WithTask(logger *slog.Logger, task, identity string) *slog.Logger {
	return logger.With("task", task, "identity", identity)
}
