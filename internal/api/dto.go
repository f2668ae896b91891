package api

// Task DTOs

// TaskResponse — ответ на публикацию задачи.
type TaskResponse struct {
	Queue    string `json:"queue"`
	Task     string `json:"task"`
	Identity string `json:"identity"`
}

// Health DTOs

// HealthResponse — состояние API и его зависимостей.
type HealthResponse struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks,omitempty"`
}

// Test DTOs

// CacheResponse — значение тестового ключа кэша.
type CacheResponse struct {
	Cache *string `json:"cache"`
}

// DatabaseResponse — результат тестового запроса к БД.
type DatabaseResponse struct {
	Result int `json:"result"`
}

// MessageResponse — ответ с сообщением.
type MessageResponse struct {
	Message string `json:"message"`
}
