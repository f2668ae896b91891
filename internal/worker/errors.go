package worker

import (
	"errors"
	"fmt"
)

// Ошибки worker'а.
var (
	// ErrNotConfigured — ресурс запрошен, но его конфигурация не передана.
	ErrNotConfigured = errors.New("resource is not configured")

	// ErrNotInitialized — ресурс запрошен до Resources.Initialize.
	ErrNotInitialized = errors.New("resources are not initialized")

	// ErrReservedLoopName — имя loop'а заканчивается на зарезервированный суффикс .worker.
	ErrReservedLoopName = errors.New("loop name uses reserved suffix " + consumerSuffix)

	// ErrStreamClosed — брокер закрыл поток сообщений до отмены контекста.
	ErrStreamClosed = errors.New("delivery stream closed")

	// ErrNoTasks — supervisor'у нечего запускать: нет ни очередей, ни loop'ов.
	ErrNoTasks = errors.New("no queues or loops to run")

	// ErrInvalidInterval — EveryLoop с неположительным интервалом.
	ErrInvalidInterval = errors.New("loop interval must be positive")
)

// ConfigurationError — обращение к ресурсу, который не сконфигурирован.
// Не ретраится: это ошибка сборки процесса, а не окружения.
type ConfigurationError struct {
	Resource string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Resource, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// PanicError — паника обработчика, перехваченная registry.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap отдаёт значение паники, если это ошибка (panic(err)).
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
