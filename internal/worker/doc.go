// Package worker — runtime фоновых задач: consumer loop'ы над очередями
// брокера и периодические loop'ы под общим supervisor'ом.
//
// # Обзор
//
// Producer публикует domain.TaskEntry в очередь. Consumer получает
// сообщение, декодирует его, находит обработчик в Registry и вызывает
// его с общими Resources. Исход каждого сообщения — ack или nack:
//
//   - успех → ack
//   - ошибка БД → nack(requeue=true) и перезапуск пулов, без паузы
//   - нераскодированное сообщение при RejectMalformed → nack(requeue=false)
//   - любая другая ошибка → алерт в error-log, nack(requeue=true), пауза FailureBackoff
//   - отмена контекста → сообщение остаётся неподтверждённым, loop завершается
//
// # Ключевые компоненты
//
// ## Supervisor
//
// Запускает по consumer'у на каждую очередь из имени процесса ("q1;q2")
// и все зарегистрированные loop'ы:
//
//	s := worker.NewSupervisor(worker.SupervisorConfig{
//	    Name:      "test;reports",
//	    Resources: res,
//	    Logger:    logger,
//	})
//	s.Register("test", handleTest)
//	s.Loop("heartbeat", worker.EveryLoop(time.Minute, beat))
//
//	if err := s.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// ## Resources
//
// Кэш, пулы БД, брокер и HTTP-клиент. Создаются в Initialize только
// для переданных конфигураций; обращение к несконфигурированному
// ресурсу возвращает *ConfigurationError.
//
// ## Registry
//
// Имя задачи → TaskHandler, имя loop'а → LoopHandler.
// Незарегистрированные задачи молча пропускаются (и подтверждаются).
// Имена loop'ов с суффиксом .worker зарезервированы за consumer'ами.
package worker
