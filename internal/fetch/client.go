// Package fetch — исходящий HTTP-клиент с ограничением частоты и retry.
//
// Client оборачивает http.Client:
//   - каждый запрос забирает токен у Limiter (limits запросов за period)
//   - при транспортных ошибках (сеть, TLS, оборванный поток) ждёт period
//     и повторяет, не более retries попыток
//   - после исчерпания попыток возвращает ErrRetryExceeded
//
// Client доступен обработчикам через worker.Resources.Client().
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Значения по умолчанию.
const (
	defaultLimits  = 20
	defaultPeriod  = time.Second
	defaultRetries = 3
	defaultTimeout = 60 * time.Second
)

// ErrRetryExceeded — все попытки исчерпаны на транспортных ошибках.
var ErrRetryExceeded = errors.New("retry over limit")

// Config — конфигурация Client.
type Config struct {
	Limits  int           // запросов за окно (default: 20)
	Period  time.Duration // длина окна и пауза между retry (default: 1s)
	Retries int           // максимум попыток (default: 3)
	Timeout time.Duration // таймаут одного запроса (default: 60s)

	// Auth — аутентификация по умолчанию (опционально).
	Auth Auth

	// Transport — подменяемый транспорт (опционально).
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Client — HTTP-клиент с token bucket и bounded retry.
type Client struct {
	http    *http.Client
	limiter *Limiter
	period  time.Duration
	retries int
	auth    Auth
	logger  *slog.Logger
}

// New создаёт Client.
func New(cfg Config) *Client {
	limits := cfg.Limits
	if limits <= 0 {
		limits = defaultLimits
	}

	period := cfg.Period
	if period <= 0 {
		period = defaultPeriod
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConnsPerHost = limits
		t.MaxConnsPerHost = limits
		transport = t
	}

	return &Client{
		http:    &http.Client{Timeout: timeout, Transport: transport},
		limiter: NewLimiter(limits, period),
		period:  period,
		retries: retries,
		auth:    cfg.Auth,
		logger:  logger.With("component", "fetch"),
	}
}

// Limiter возвращает limiter клиента.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// Do выполняет запрос с аутентификацией по умолчанию.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithAuth(req, c.auth)
}

// DoWithAuth выполняет запрос с указанной аутентификацией (nil — без неё).
//
// Тело запроса должно быть перечитываемым (req.GetBody), иначе повтор
// после ошибки невозможен.
func (c *Client) DoWithAuth(req *http.Request, auth Auth) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 1; attempt <= c.retries; attempt++ {
		attemptReq, err := rewind(req)
		if err != nil {
			return nil, err
		}
		if auth != nil {
			auth.Apply(attemptReq)
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		resp, err := c.http.Do(attemptReq)
		c.limiter.Release()

		if err == nil {
			return resp, nil
		}

		// Отмена вызывающим — не повод для retry
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !isTransient(err) {
			return nil, err
		}

		c.logger.Warn("request failed, retrying",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.period):
		}
	}

	return nil, fmt.Errorf("%w: %s %s", ErrRetryExceeded, req.Method, req.URL.Redacted())
}

// Get выполняет GET-запрос.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// PostJSON выполняет POST с JSON-телом.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.Do(req)
}

// Close закрывает простаивающие соединения.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// rewind готовит копию запроса для очередной попытки.
func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return clone, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// isTransient определяет, стоит ли повторять запрос.
//
// http.Client.Do оборачивает все транспортные ошибки (сеть, TLS,
// неожиданный EOF, таймаут клиента) в *url.Error.
func isTransient(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
