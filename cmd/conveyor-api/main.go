// Conveyor API — HTTP-producer задач.
//
// Принимает TaskEntry по HTTP и публикует в очередь RabbitMQ.
// Защищённые маршруты требуют Authorization: Bearer <jwt> (RS256,
// ключ из JWT_PUBLIC_KEY_FILE) или Check <code> (HMAC по CHECK_SALT).
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conveyor/internal/api"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/security"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/worker"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conveyor_api_http_requests_total",
		Help: "Total HTTP requests handled by conveyor_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("conveyor-api")
	logger.Info("starting conveyor-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Брокер, кэш и базы
	res := worker.NewResources(cfg.Resources(logger))
	if err := res.Initialize(context.Background()); err != nil {
		logger.Error("failed to initialize resources", "error", err)
		os.Exit(1)
	}
	defer res.Close()
	logger.Info("resources initialized")

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Resources: res,
		Schemes:   authSchemes(cfg, logger),
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.APIPort)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// authSchemes собирает схемы авторизации. Схема без ключа или соли
// не регистрируется.
func authSchemes(cfg *config.Config, logger *slog.Logger) security.Schemes {
	schemes := security.Schemes{}

	if bearer, err := security.LoadRS256Checker(cfg.JWTPublicKeyFile); err != nil {
		logger.Warn("bearer scheme disabled", "key", cfg.JWTPublicKeyFile, "error", err)
	} else {
		schemes["bearer"] = bearer
	}

	if cfg.CheckSalt != "" {
		schemes["check"] = security.NewCheckCodeChecker([]byte(cfg.CheckSalt))
	}

	logger.Info("auth schemes configured", "schemes", schemes.Names())
	return schemes
}
