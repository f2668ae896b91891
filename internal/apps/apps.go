// Package apps — подключаемые приложения worker'а.
//
// Каждое приложение объявляет набор хуков регистрации по режиму:
// "task_register" для режима task, "<mode>_register" для остальных.
// Список приложений собирается при сборке бинарника, а YAML-манифест
// позволяет отключить приложение без пересборки.
package apps

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conveyor/internal/worker"
)

// DefaultMode — режим worker'а по умолчанию.
const DefaultMode = "task"

// disabledPrefix — приложения с таким префиксом не загружаются.
const disabledPrefix = "disable_"

// RegisterFunc регистрирует задачи, loop'ы и хуки приложения в supervisor'е.
type RegisterFunc func(s *worker.Supervisor) error

// App — приложение и его хуки регистрации по имени хука.
type App struct {
	Name  string
	Hooks map[string]RegisterFunc
}

// HookName возвращает имя хука регистрации для режима.
func HookName(mode string) string {
	if mode == "" {
		mode = DefaultMode
	}
	return mode + "_register"
}

// AppManifest — настройки одного приложения в манифесте.
type AppManifest struct {
	Enabled *bool `yaml:"enabled"`
}

// Manifest — YAML-манифест приложений.
//
//	apps:
//	  test:
//	    enabled: false
type Manifest struct {
	Apps map[string]AppManifest `yaml:"apps"`
}

// LoadManifest читает манифест. Пустой путь — пустой манифест.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return &Manifest{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read apps manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse apps manifest %s: %w", path, err)
	}
	return &m, nil
}

// Enabled — false, только если приложение явно выключено.
func (m *Manifest) Enabled(name string) bool {
	if m == nil {
		return true
	}
	app, ok := m.Apps[name]
	if !ok || app.Enabled == nil {
		return true
	}
	return *app.Enabled
}

// Loader подключает приложения к supervisor'у.
type Loader struct {
	apps     []App
	manifest *Manifest
	logger   *slog.Logger
}

// NewLoader создаёт Loader. manifest может быть nil.
func NewLoader(apps []App, manifest *Manifest, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		apps:     apps,
		manifest: manifest,
		logger:   logger.With("component", "apps"),
	}
}

// Load вызывает хук режима mode у каждого включённого приложения,
// в алфавитном порядке имён. Ошибка хука логируется и не мешает
// остальным приложениям; все ошибки возвращаются вместе.
// Возвращает имена приложений, чей хук отработал.
func (l *Loader) Load(s *worker.Supervisor, mode string) ([]string, error) {
	hook := HookName(mode)

	apps := append([]App(nil), l.apps...)
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })

	var loaded []string
	var errs []error

	for _, app := range apps {
		logger := l.logger.With("app", app.Name, "hook", hook)

		if strings.HasPrefix(app.Name, disabledPrefix) || !l.manifest.Enabled(app.Name) {
			logger.Debug("app disabled")
			continue
		}

		register, ok := app.Hooks[hook]
		if !ok || register == nil {
			logger.Debug("app has no hook for mode")
			continue
		}

		if err := register(s); err != nil {
			logger.Error("app registration failed", "error", err)
			errs = append(errs, fmt.Errorf("app %s: %w", app.Name, err))
			continue
		}

		logger.Info("app registered")
		loaded = append(loaded, app.Name)
	}

	return loaded, errors.Join(errs...)
}
