package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/shaiso/Conveyor/internal/domain"
)

// consumerSuffix — суффикс имён задач consumer'ов ("<queue>.worker").
// Зарезервирован: loop с таким именем пересёкся бы с consumer'ом.
const consumerSuffix = ".worker"

// TaskHandler обрабатывает одну задачу из очереди.
// Ошибка означает неуспех: сообщение вернётся в очередь.
type TaskHandler func(ctx context.Context, res *Resources, entry domain.TaskEntry) error

// LoopHandler — долгоживущая фоновая задача supervisor'а.
// Должна работать до отмены ctx.
type LoopHandler func(ctx context.Context, s *Supervisor, res *Resources) error

// namedLoop — loop в порядке регистрации.
type namedLoop struct {
	name    string
	handler LoopHandler
}

// Registry — реестр обработчиков задач и loop'ов.
//
// Обработчики регистрируются при старте процесса; повторная
// регистрация того же имени молча заменяет обработчик.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskHandler
	loops []namedLoop
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]TaskHandler),
	}
}

// Register связывает имя задачи с обработчиком. Последняя регистрация побеждает.
func (r *Registry) Register(task string, h TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task] = h
}

// Loop регистрирует фоновый loop.
// Имена с суффиксом .worker отклоняются.
func (r *Registry) Loop(name string, h LoopHandler) error {
	if strings.HasSuffix(name, consumerSuffix) {
		return &ConfigurationError{
			Resource: "loop " + name,
			Err:      ErrReservedLoopName,
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.loops {
		if r.loops[i].name == name {
			r.loops[i].handler = h
			return nil
		}
	}
	r.loops = append(r.loops, namedLoop{name: name, handler: h})
	return nil
}

// Handler возвращает обработчик задачи.
func (r *Registry) Handler(task string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.tasks[task]
	return h, ok
}

// Tasks возвращает имена зарегистрированных задач.
func (r *Registry) Tasks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}

// LoopNames возвращает имена loop'ов в порядке регистрации.
func (r *Registry) LoopNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.loops))
	for i, l := range r.loops {
		names[i] = l.name
	}
	return names
}

func (r *Registry) loopHandlers() []namedLoop {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]namedLoop(nil), r.loops...)
}

// Invoke вызывает обработчик entry.Task.
//
// Незарегистрированная задача — no-op без ошибки: producer может
// оказаться новее consumer'а во время выкладки.
// Паника обработчика возвращается как *PanicError.
func (r *Registry) Invoke(ctx context.Context, res *Resources, entry domain.TaskEntry) (err error) {
	h, ok := r.Handler(entry.Task)
	if !ok {
		return nil
	}

	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()

	if err := h(ctx, res, entry); err != nil {
		return fmt.Errorf("task %s: %w", entry.Task, err)
	}
	return nil
}
