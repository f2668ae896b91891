package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Значения по умолчанию supervisor'а.
const (
	DefaultRestartInterval = 15 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Hook — startup/shutdown хук.
type Hook func(ctx context.Context, res *Resources) error

// SupervisorConfig — конфигурация Supervisor.
type SupervisorConfig struct {
	// Name — имя процесса: список очередей через ";" ("q1;q2").
	Name string

	Resources *Resources
	Registry  *Registry

	// FailureBackoff — пауза consumer'а после ошибки обработчика (default: 15s).
	FailureBackoff time.Duration

	// RestartInterval — не чаще одного перезапуска пулов БД за интервал (default: 15s).
	RestartInterval time.Duration

	// RejectMalformed — см. ConsumerConfig.RejectMalformed.
	RejectMalformed bool

	// AlertAddress — адрес для ErrorLog (default: "error-log").
	AlertAddress string

	// ShutdownTimeout — лимит на shutdown-хуки и закрытие ресурсов (default: 30s).
	ShutdownTimeout time.Duration

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// task — запущенная supervisor'ом горутина.
type task struct {
	key  string // "<queue>.worker" или имя loop'а
	name string // имя для логов
	run  func(ctx context.Context) error
}

// Supervisor запускает consumer loop на каждую очередь и все
// зарегистрированные loop'ы, и управляет порядком остановки.
//
// Жизненный цикл Run:
//  1. Initialize ресурсов
//  2. startup-хуки по порядку
//  3. запуск consumer'ов и loop'ов
//  4. ожидание завершения всех задач или отмены ctx
//  5. shutdown-хуки по порядку
//  6. отмена оставшихся задач
//  7. Close ресурсов
type Supervisor struct {
	name            string
	queues          []string
	res             *Resources
	registry        *Registry
	failureBackoff  time.Duration
	rejectMalformed bool
	alertAddress    string
	restartLimiter  *rate.Limiter
	shutdownTimeout time.Duration
	metrics         *telemetry.Metrics
	logger          *slog.Logger

	mu       sync.Mutex
	startup  []Hook
	shutdown []Hook
}

// NewSupervisor создаёт Supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res := cfg.Resources
	if res == nil {
		res = NewResources(ResourcesConfig{Logger: logger})
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	restartInterval := cfg.RestartInterval
	if restartInterval <= 0 {
		restartInterval = DefaultRestartInterval
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}

	return &Supervisor{
		name:            cfg.Name,
		queues:          ParseQueues(cfg.Name),
		res:             res,
		registry:        registry,
		failureBackoff:  cfg.FailureBackoff,
		rejectMalformed: cfg.RejectMalformed,
		alertAddress:    cfg.AlertAddress,
		restartLimiter:  rate.NewLimiter(rate.Every(restartInterval), 1),
		shutdownTimeout: shutdownTimeout,
		metrics:         cfg.Metrics,
		logger:          logger.With("component", "supervisor", "worker", cfg.Name),
	}
}

// ParseQueues разбирает "q1;q2" в список очередей, пропуская пустые.
func ParseQueues(name string) []string {
	var queues []string
	for _, q := range strings.Split(name, ";") {
		if q = strings.TrimSpace(q); q != "" {
			queues = append(queues, q)
		}
	}
	return queues
}

// Name возвращает имя процесса.
func (s *Supervisor) Name() string { return s.name }

// Queues возвращает очереди, на которые подписывается supervisor.
func (s *Supervisor) Queues() []string { return append([]string(nil), s.queues...) }

// Resources возвращает общие ресурсы.
func (s *Supervisor) Resources() *Resources { return s.res }

// Registry возвращает реестр обработчиков.
func (s *Supervisor) Registry() *Registry { return s.registry }

// Logger возвращает логгер supervisor'а.
func (s *Supervisor) Logger() *slog.Logger { return s.logger }

// Register регистрирует обработчик задачи.
func (s *Supervisor) Register(taskName string, h TaskHandler) {
	s.registry.Register(taskName, h)
}

// Loop регистрирует фоновый loop.
func (s *Supervisor) Loop(name string, h LoopHandler) error {
	return s.registry.Loop(name, h)
}

// OnStartup добавляет хук, выполняемый до запуска consumer'ов.
func (s *Supervisor) OnStartup(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startup = append(s.startup, h)
}

// OnShutdown добавляет хук, выполняемый при остановке.
func (s *Supervisor) OnShutdown(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = append(s.shutdown, h)
}

func (s *Supervisor) hooks() (startup, shutdown []Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Hook(nil), s.startup...), append([]Hook(nil), s.shutdown...)
}

// Run запускает все задачи и блокируется до их завершения или отмены ctx.
// Отмена ctx — штатная остановка, Run возвращает nil.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	startup, shutdown := s.hooks()

	// 1. Ресурсы
	if err := s.res.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize resources: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	defer func() {
		// 5. shutdown-хуки выполняются и после отмены ctx
		stopCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer stop()
		for i, h := range shutdown {
			if herr := h(stopCtx, s.res); herr != nil {
				s.logger.Error("shutdown hook failed", "hook", i, "error", herr)
			}
		}

		// 6. Отмена оставшихся задач
		cancel()
		wg.Wait()

		// 7. Ресурсы
		if cerr := s.res.Close(); cerr != nil {
			s.logger.Error("failed to close resources", "error", cerr)
			err = errors.Join(err, cerr)
		}
		s.logger.Info("supervisor stopped")
	}()

	// 2. startup-хуки
	for i, h := range startup {
		if err := h(runCtx, s.res); err != nil {
			return fmt.Errorf("startup hook %d: %w", i, err)
		}
	}

	// 3. Запуск задач
	tasks := s.tasks()
	if len(tasks) == 0 {
		return ErrNoTasks
	}

	done := make(chan struct{})
	for _, t := range tasks {
		wg.Add(1)
		go s.runTask(runCtx, &wg, t)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	s.logger.Info("supervisor started", "queues", s.queues, "loops", s.registry.LoopNames())

	// 4. Ожидание
	select {
	case <-done:
		s.logger.Info("all tasks finished")
	case <-ctx.Done():
		s.logger.Info("stopping supervisor", "reason", context.Cause(ctx))
	}
	return nil
}

// tasks собирает consumer'ы очередей и loop'ы.
func (s *Supervisor) tasks() []task {
	var tasks []task

	for _, l := range s.registry.loopHandlers() {
		h := l.handler
		tasks = append(tasks, task{
			key:  l.name,
			name: fmt.Sprintf("Worker-%s-Loop.%s", s.name, l.name),
			run: func(ctx context.Context) error {
				return h(ctx, s, s.res)
			},
		})
	}

	for _, queue := range s.queues {
		consumer := NewConsumer(ConsumerConfig{
			Queue:           queue,
			Registry:        s.registry,
			Resources:       s.res,
			FailureBackoff:  s.failureBackoff,
			RejectMalformed: s.rejectMalformed,
			RestartLimiter:  s.restartLimiter,
			AlertAddress:    s.alertAddress,
			Metrics:         s.metrics,
			Logger:          s.logger,
		})
		tasks = append(tasks, task{
			key:  queue + consumerSuffix,
			name: "Worker-" + queue,
			run:  consumer.Run,
		})
	}

	return tasks
}

// runTask выполняет задачу и логирует её завершение.
// Ошибка или паника задачи не останавливает supervisor.
func (s *Supervisor) runTask(ctx context.Context, wg *sync.WaitGroup, t task) {
	defer wg.Done()

	logger := s.logger.With("task", t.key, "task_name", t.name)
	ctx = telemetry.WithLogger(ctx, logger)

	s.metrics.TaskStarted()
	defer s.metrics.TaskFinished()

	defer func() {
		if v := recover(); v != nil {
			logger.Error("task panicked", "panic", v, "stack", string(debug.Stack()))
		}
	}()

	err := t.run(ctx)
	switch {
	case err == nil:
		logger.Info("task finished")
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		logger.Info("task cancelled")
	default:
		logger.Error("task failed", "error", err)
	}
}
