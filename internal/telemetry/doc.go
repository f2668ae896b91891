// Package telemetry обеспечивает наблюдаемость worker'а и API.
//
// Включает:
//   - logging.go — structured logging через slog, логгер в контексте
//   - metrics.go — Prometheus метрики consumer loop и supervisor
//
// Процессы экспортируют метрики на /metrics endpoint.
package telemetry
