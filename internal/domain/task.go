package domain

import (
	"encoding/json"
	"fmt"
)

// TaskEntry — единица работы, которую producer публикует в очередь.
//
// TaskEntry создаётся producer'ом (HTTP endpoint или таймер), сериализуется
// в JSON и публикуется в именованную очередь. Consumer десериализует её,
// находит обработчик по Task и вызывает его. После получения TaskEntry
// не изменяется.
type TaskEntry struct {
	// Task — имя типа задачи, ключ в реестре обработчиков.
	Task string `json:"task"`

	// Identity — correlation id, задаваемый producer'ом.
	// Уникальность не гарантируется, это ответственность producer'а.
	Identity string `json:"identity"`

	// Data — произвольная полезная нагрузка.
	Data map[string]any `json:"data"`
}

// NewTaskEntry создаёт TaskEntry с непустым Data.
func NewTaskEntry(task, identity string, data map[string]any) TaskEntry {
	if data == nil {
		data = map[string]any{}
	}
	return TaskEntry{Task: task, Identity: identity, Data: data}
}

// UnmarshalJSON проверяет, что все три поля присутствуют.
// "data": null считается отсутствующим полем.
func (e *TaskEntry) UnmarshalJSON(b []byte) error {
	var raw struct {
		Task     *string         `json:"task"`
		Identity *string         `json:"identity"`
		Data     *map[string]any `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	switch {
	case raw.Task == nil:
		return fmt.Errorf("%w: task", ErrMissingField)
	case raw.Identity == nil:
		return fmt.Errorf("%w: identity", ErrMissingField)
	case raw.Data == nil || *raw.Data == nil:
		return fmt.Errorf("%w: data", ErrMissingField)
	}

	e.Task = *raw.Task
	e.Identity = *raw.Identity
	e.Data = *raw.Data
	return nil
}

// Validate проверяет TaskEntry перед публикацией.
func (e TaskEntry) Validate() error {
	if e.Data == nil {
		return fmt.Errorf("%w: data", ErrMissingField)
	}
	return nil
}
