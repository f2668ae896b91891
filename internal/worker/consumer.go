package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Conveyor/internal/codec"
	"github.com/shaiso/Conveyor/internal/database"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Значения по умолчанию consumer loop.
const (
	DefaultFailureBackoff = 15 * time.Second
	DefaultAlertAddress   = "error-log"

	alertTitle      = "Worker task failed"
	alertTimeout    = 5 * time.Second
	maxPayloadInLog = 512
)

// failure — класс исхода обработки сообщения.
type failure int

const (
	failureNone failure = iota
	failureCancelled
	failureDatabase
	failureMalformed
	failureHandler
)

// ConsumerConfig — конфигурация consumer loop одной очереди.
type ConsumerConfig struct {
	// Queue — адрес очереди ("queue" или "exchange/routing").
	Queue string

	Registry  *Registry
	Resources *Resources

	// FailureBackoff — пауза после ошибки обработчика (default: 15s).
	FailureBackoff time.Duration

	// RejectMalformed — нераскодированные сообщения отбрасываются
	// nack(requeue=false) без алерта. По умолчанию они идут
	// общим путём ошибки: алерт, requeue, backoff.
	RejectMalformed bool

	// RestartLimiter ограничивает частоту перезапуска пулов БД (опционально).
	RestartLimiter *rate.Limiter

	// AlertAddress — куда публиковать ErrorLog (default: "error-log").
	AlertAddress string

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Consumer — цикл receive → decode → dispatch → ack/nack для одной очереди.
//
// Сообщения одной очереди обрабатываются строго по одному,
// в порядке доставки. Ошибки обработчиков не выходят за пределы
// цикла; наружу возвращается только отмена контекста.
type Consumer struct {
	queue           string
	registry        *Registry
	res             *Resources
	failureBackoff  time.Duration
	rejectMalformed bool
	restartLimiter  *rate.Limiter
	alertAddress    string
	metrics         *telemetry.Metrics
	logger          *slog.Logger
}

// NewConsumer создаёт consumer loop.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	backoff := cfg.FailureBackoff
	if backoff <= 0 {
		backoff = DefaultFailureBackoff
	}

	alertAddress := cfg.AlertAddress
	if alertAddress == "" {
		alertAddress = DefaultAlertAddress
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	return &Consumer{
		queue:           cfg.Queue,
		registry:        registry,
		res:             cfg.Resources,
		failureBackoff:  backoff,
		rejectMalformed: cfg.RejectMalformed,
		restartLimiter:  cfg.RestartLimiter,
		alertAddress:    alertAddress,
		metrics:         cfg.Metrics,
		logger:          telemetry.WithQueue(logger, cfg.Queue),
	}
}

// Run подписывается на очередь и обрабатывает сообщения до отмены ctx.
func (c *Consumer) Run(ctx context.Context) error {
	broker, err := c.res.Broker()
	if err != nil {
		return err
	}

	stream, err := broker.Receive(ctx, c.queue)
	if err != nil {
		return fmt.Errorf("receive %s: %w", c.queue, err)
	}

	c.logger.Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("%s: %w", c.queue, ErrStreamClosed)
			}
			if err := c.Handle(ctx, d); err != nil {
				return err
			}
		}
	}
}

// Handle обрабатывает одно сообщение и доводит его до ack или nack.
// Возвращает ошибку только при отмене ctx: тогда сообщение остаётся
// неподтверждённым и брокер передоставит его после закрытия канала.
func (c *Consumer) Handle(ctx context.Context, d mq.Delivery) error {
	entry, err := codec.DecodeRecord[domain.TaskEntry](d.Body())
	logger := c.logger
	if err == nil {
		logger = telemetry.WithTask(logger, entry.Task, entry.Identity)
		if _, ok := c.registry.Handler(entry.Task); !ok {
			logger.Warn("no handler registered, message dropped")
		}

		start := time.Now()
		err = c.registry.Invoke(telemetry.WithLogger(ctx, logger), c.res, entry)
		c.metrics.ObserveHandler(c.queue, entry.Task, time.Since(start))
	}

	switch c.classify(ctx, err) {
	case failureNone:
		c.ack(logger, d)
		return nil

	case failureCancelled:
		logger.Info("task interrupted by shutdown", "error", err)
		return ctx.Err()

	case failureDatabase:
		logger.Error("database error, restarting pools",
			"error", err,
			"kind", database.Classify(err).String(),
		)
		c.nack(logger, d, true)
		c.restartDatabases(ctx, logger)
		return nil

	case failureMalformed:
		logger.Warn("malformed message rejected",
			"error", err,
			"payload", truncate(d.Body()),
		)
		c.nack(logger, d, false)
		return nil

	default:
		logger.Error("task failed",
			"error", err,
			"traceback", Traceback(err),
		)
		c.alert(ctx, logger, entry, d.Body(), err)
		c.nack(logger, d, true)
		return sleep(ctx, c.failureBackoff)
	}
}

// classify сопоставляет ошибку с путём обработки.
func (c *Consumer) classify(ctx context.Context, err error) failure {
	switch {
	case err == nil:
		return failureNone
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return failureCancelled
	case database.IsDatabaseError(err):
		return failureDatabase
	case c.rejectMalformed && codec.IsDecodeError(err):
		return failureMalformed
	default:
		return failureHandler
	}
}

func (c *Consumer) ack(logger *slog.Logger, d mq.Delivery) {
	if err := d.Ack(); err != nil {
		logger.Error("failed to ack message", "error", err)
		return
	}
	c.metrics.Message(c.queue, telemetry.OutcomeAck)
}

func (c *Consumer) nack(logger *slog.Logger, d mq.Delivery, requeue bool) {
	if err := d.Nack(requeue); err != nil {
		logger.Error("failed to nack message", "error", err, "requeue", requeue)
		return
	}
	if requeue {
		c.metrics.Message(c.queue, telemetry.OutcomeRequeue)
	} else {
		c.metrics.Message(c.queue, telemetry.OutcomeReject)
	}
}

// restartDatabases перезапускает пулы без паузы перед следующим сообщением.
// Частота ограничена RestartLimiter: при постоянно лежащей БД
// сообщение всё равно уходит в requeue, но пулы не пересоздаются в цикле.
func (c *Consumer) restartDatabases(ctx context.Context, logger *slog.Logger) {
	if c.restartLimiter != nil && !c.restartLimiter.Allow() {
		logger.Warn("database restart throttled")
		c.metrics.DatabaseRestart("throttled")
		return
	}

	if err := c.res.RestartDatabases(ctx); err != nil {
		logger.Error("failed to restart databases", "error", err)
		c.metrics.DatabaseRestart("failed")
		return
	}
	c.metrics.DatabaseRestart("ok")
}

// alert публикует ErrorLog. Ошибка публикации только логируется.
func (c *Consumer) alert(ctx context.Context, logger *slog.Logger, entry domain.TaskEntry, body []byte, err error) {
	summary := fmt.Sprintf("queue=%s task=%s identity=%s error=%T: %v",
		c.queue, entry.Task, entry.Identity, err, err)
	if codec.IsDecodeError(err) {
		summary += "\npayload: " + truncate(body)
	}

	record := domain.NewErrorLog(alertTitle,
		summary,
		Traceback(err),
		fmt.Sprintf("%s-Worker is blocked, please handle", c.queue),
	)
	record.Identity = domain.AlertIdentity(c.queue, entry.Task, entry.Identity, err)

	if perr := c.publishAlert(ctx, record); perr != nil {
		logger.Warn("failed to publish alert", "error", perr, "alert_identity", record.Identity)
		c.metrics.Alert(telemetry.AlertFailed)
		return
	}
	c.metrics.Alert(telemetry.AlertPublished)
}

func (c *Consumer) publishAlert(ctx context.Context, record *domain.ErrorLog) error {
	broker, err := c.res.Broker()
	if err != nil {
		return err
	}

	body, err := codec.Encode(record)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	return broker.Publish(pubCtx, c.alertAddress, body, mq.PublishOptions{})
}

// sleep ждёт d или отмены ctx.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte) string {
	if len(b) > maxPayloadInLog {
		return string(b[:maxPayloadInLog]) + "..."
	}
	return string(b)
}
