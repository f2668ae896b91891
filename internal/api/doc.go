// Package api содержит HTTP API producer'а задач.
//
// Структура:
//   - handler.go      — Handler с DI (ресурсы worker'а, схемы авторизации, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (logging, recovery, auth)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - task_handler.go — публикация задач в очереди
//   - test_handler.go — диагностические маршруты /api/v1/test/*
//
// API не обрабатывает задачи само: оно только кладёт TaskEntry в брокер,
// откуда их забирает worker.
package api
