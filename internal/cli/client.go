package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrDegraded — API отвечает, но его зависимости недоступны.
var ErrDegraded = errors.New("api is degraded")

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — опубликованная задача.
type TaskResponse struct {
	Queue    string `json:"queue"`
	Task     string `json:"task"`
	Identity string `json:"identity"`
}

// HealthResponse — состояние API.
type HealthResponse struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks,omitempty"`
}

// --- Request types ---

// PublishRequest — задача для публикации. Пустой Identity API
// заменяет на uuid.
type PublishRequest struct {
	Task     string         `json:"task"`
	Identity string         `json:"identity"`
	Data     map[string]any `json:"data"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// authResponse — тело 401/403/501 от middleware авторизации.
type authResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// --- Client ---

// Client — HTTP-клиент для producer API.
type Client struct {
	baseURL    string
	auth       string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. auth — значение заголовка
// Authorization, пустое — без авторизации.
func NewClient(baseURL, auth string) *Client {
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Tasks ---

// PublishTask публикует задачу в очередь.
func (c *Client) PublishTask(queue string, req PublishRequest) (*TaskResponse, error) {
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	var task TaskResponse
	err := c.post("/api/v1/tasks/"+url.PathEscape(queue), req, &task)
	return &task, err
}

// --- Health ---

// Health возвращает состояние API. При 503 возвращает и состояние,
// и ErrDegraded.
func (c *Client) Health() (*HealthResponse, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, c.checkError(resp)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return &health, ErrDegraded
	}
	return &health, nil
}

// Ping проверяет доступность API.
func (c *Client) Ping() (string, error) {
	resp, err := c.do(http.MethodGet, "/ping", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

// --- HTTP helpers ---

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}

	return c.httpClient.Do(req)
}

// checkError разбирает оба формата ошибок API: {"error":{...}} от
// обработчиков и {"code","message","status"} от авторизации.
func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Error.Code != "" {
		return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
	}

	var ar authResponse
	if err := json.Unmarshal(data, &ar); err == nil && ar.Message != "" {
		return fmt.Errorf("HTTP %d: %s (code %d)", resp.StatusCode, ar.Message, ar.Code)
	}

	return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
}
