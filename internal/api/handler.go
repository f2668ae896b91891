package api

import (
	"log/slog"

	"github.com/shaiso/Conveyor/internal/security"
	"github.com/shaiso/Conveyor/internal/worker"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	res     *worker.Resources
	schemes security.Schemes
	logger  *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Resources — брокер, кэш и базы; должны быть инициализированы.
	Resources *worker.Resources

	// Schemes — схемы авторизации для защищённых маршрутов.
	Schemes security.Schemes

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Schemes) == 0 {
		logger.Warn("no auth schemes configured, protected routes will reject every request")
	}

	return &Handler{
		res:     cfg.Resources,
		schemes: cfg.Schemes,
		logger:  logger,
	}
}
