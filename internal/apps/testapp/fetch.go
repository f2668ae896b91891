package testapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/fetch"
	"github.com/shaiso/Conveyor/internal/worker"
)

const defaultFetchTimeout = 30 * time.Second

// FetchKeyPrefix — результат задачи fetch кладётся в кэш под "fetch:<identity>".
const FetchKeyPrefix = "fetch:"

// ErrFetch — запрос задачи fetch завершился ошибкой.
var ErrFetch = errors.New("fetch failed")

// handleFetch выполняет HTTP-запрос через общий клиент с rate limit.
//
// Data:
//   - method (string): HTTP-метод. Default: GET
//   - url (string): URL для запроса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса. Default: 30
//   - auth_scheme, auth_token (string): аутентификация запроса
//   - ttl_ms (number): TTL результата в кэше
//
// Результат (status_code, headers, body) сохраняется в кэш, если он есть.
// HTTP >= 400 — ошибка задачи.
func handleFetch(ctx context.Context, res *worker.Resources, entry domain.TaskEntry) error {
	client, err := res.Client()
	if err != nil {
		return err
	}

	url := getString(entry.Data, "url", "")
	if url == "" {
		return fmt.Errorf("%w: url is required", ErrFetch)
	}

	ctx, cancel := context.WithTimeout(ctx, getDuration(entry.Data, "timeout_sec", time.Second, defaultFetchTimeout))
	defer cancel()

	// bytes.Reader: http.NewRequest сам выставит GetBody для повторов
	var body io.Reader
	if v, ok := entry.Data["body"]; ok && v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: marshal body: %v", ErrFetch, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, getString(entry.Data, "method", http.MethodGet), url, body)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	setHeaders(req, entry.Data)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	auth := fetch.NewAuth(getString(entry.Data, "auth_scheme", ""), getString(entry.Data, "auth_token", ""))

	var resp *http.Response
	if auth != nil {
		resp, err = client.DoWithAuth(req, auth)
	} else {
		resp, err = client.Do(req)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrFetch, err)
	}

	if c, cerr := res.Cache(); cerr == nil {
		out, err := json.Marshal(buildOutputs(resp, respBody))
		if err != nil {
			return fmt.Errorf("%w: marshal outputs: %v", ErrFetch, err)
		}
		ttl := getDuration(entry.Data, "ttl_ms", time.Millisecond, 0)
		if err := c.Set(ctx, FetchKeyPrefix+entry.Identity, out, ttl); err != nil {
			return err
		}
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrFetch, resp.StatusCode, truncate(string(respBody), 200))
	}
	return nil
}

// buildOutputs формирует результат из HTTP-ответа.
func buildOutputs(resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// JSON, иначе строка
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		parsed = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsed,
	}
}

func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getDuration читает число из m[key] в единицах unit.
func getDuration(m map[string]any, key string, unit, defaultVal time.Duration) time.Duration {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(unit))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * unit
			}
		}
	}
	return defaultVal
}

func setHeaders(req *http.Request, data map[string]any) {
	headers, ok := data["headers"].(map[string]any)
	if !ok {
		return
	}
	for key, val := range headers {
		if s, ok := val.(string); ok {
			req.Header.Set(key, s)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
