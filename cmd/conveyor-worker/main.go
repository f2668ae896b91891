// Conveyor Worker — выполняет задачи из очередей RabbitMQ.
//
// Использование:
//
//	conveyor-worker [mode]
//
// mode (default: task) выбирает хук регистрации приложений
// "<mode>_register" и имя процесса из <MODE>_WORKER: список очередей
// через ";". SIGINT/SIGTERM — штатная остановка с кодом 0.
//
// Worker:
//   - Подписывается на каждую очередь из имени процесса
//   - Вызывает обработчик по имени задачи
//   - Запускает фоновые loop'ы приложений
//   - Публикует ErrorLog при сбое обработчика
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/apps"
	"github.com/shaiso/Conveyor/internal/apps/testapp"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// installed — приложения, собранные в бинарник.
func installed() []apps.App {
	return []apps.App{
		testapp.App(),
	}
}

// topology объявляет очереди; реализуется *mq.Broker.
type topology interface {
	SetupTopology(ctx context.Context, addresses []string) error
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "conveyor-worker [mode]",
		Short:         "Conveyor worker — consumes task queues and runs app loops",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := apps.DefaultMode
			if len(args) == 1 {
				mode = args[0]
			}
			return run(cmd.Context(), mode)
		},
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string) error {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("conveyor-worker")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	name := config.WorkerName(mode)
	logger.Info("starting conveyor-worker", "mode", mode, "worker", name)

	metrics := telemetry.NewMetrics(nil)

	s := worker.NewSupervisor(worker.SupervisorConfig{
		Name:            name,
		Resources:       worker.NewResources(cfg.Resources(logger)),
		FailureBackoff:  cfg.FailureBackoff,
		RestartInterval: cfg.RestartInterval,
		RejectMalformed: cfg.RejectMalformed,
		AlertAddress:    cfg.AlertAddress,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Metrics:         metrics,
		Logger:          logger,
	})

	// Очереди и error-log объявляются до запуска consumer'ов
	s.OnStartup(func(ctx context.Context, res *worker.Resources) error {
		broker, err := res.Broker()
		if err != nil {
			return err
		}
		t, ok := broker.(topology)
		if !ok {
			return nil
		}
		return t.SetupTopology(ctx, append(s.Queues(), cfg.AlertAddress))
	})

	// Приложения
	manifest, err := apps.LoadManifest(cfg.AppsManifest)
	if err != nil {
		return err
	}
	loaded, err := apps.NewLoader(installed(), manifest, logger).Load(s, mode)
	if err != nil {
		logger.Error("some apps failed to register", "error", err)
	}
	logger.Info("apps loaded", "apps", loaded)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WorkerPort),
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer shutdownServer(server, logger)

	// Запускаем supervisor; блокируется до сигнала
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("worker %s: %w", name, err)
	}

	logger.Info("conveyor-worker stopped")
	return nil
}

func shutdownServer(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
