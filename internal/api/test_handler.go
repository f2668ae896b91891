package api

import (
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/shaiso/Conveyor/internal/database"
)

// Тестовые ресурсы.
const (
	TestCacheKey = "test:cache"
	TestDatabase = "dbtest"

	testCacheTTL     = time.Minute
	maxTestCacheSize = 1024
)

// brokerHealth реализуется брокером с живым соединением.
type brokerHealth interface {
	IsConnected() bool
}

// Ping — liveness.
// GET /ping
func (h *Handler) Ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

// Health проверяет зависимости API.
// GET /api/v1/health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	checks := map[string]bool{}

	broker, err := h.res.Broker()
	switch {
	case err != nil:
		checks["broker"] = false
	default:
		if hb, ok := broker.(brokerHealth); ok {
			checks["broker"] = hb.IsConnected()
		} else {
			checks["broker"] = true
		}
	}

	_, err = h.res.Cache()
	checks["cache"] = err == nil

	status := "ok"
	code := http.StatusOK
	if !checks["broker"] {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, HealthResponse{Status: status, Checks: checks})
}

// TestHealth — проверка без зависимостей.
// GET /api/v1/test/health
func (h *Handler) TestHealth(w http.ResponseWriter, _ *http.Request) {
	Success(w, HealthResponse{Status: "ok"})
}

// TestSecurity возвращает данные токена.
// GET /api/v1/test/security
func (h *Handler) TestSecurity(w http.ResponseWriter, r *http.Request) {
	data, _ := Credentials(r.Context())
	Success(w, data.Claims)
}

// TestDatabase выполняет SELECT 1 в базе dbtest (DATABASE_URL_DBTEST).
// GET /api/v1/test/database
func (h *Handler) TestDatabase(w http.ResponseWriter, r *http.Request) {
	dbs, err := h.res.Databases()
	if HandleError(w, h.logger, err) {
		return
	}

	conn, err := dbs.Acquire(r.Context(), TestDatabase)
	if HandleError(w, h.logger, err) {
		return
	}
	defer conn.Release()

	var result int
	if err := conn.QueryRow(r.Context(), "SELECT 1").Scan(&result); err != nil {
		HandleError(w, h.logger, database.Wrap(TestDatabase, err))
		return
	}
	Success(w, DatabaseResponse{Result: result})
}

// TestGetCache возвращает тестовый ключ кэша.
// GET /api/v1/test/cache
func (h *Handler) TestGetCache(w http.ResponseWriter, r *http.Request) {
	c, err := h.res.Cache()
	if HandleError(w, h.logger, err) {
		return
	}

	value, err := c.Get(r.Context(), TestCacheKey)
	if HandleError(w, h.logger, err) {
		return
	}

	var resp CacheResponse
	if value != nil {
		s := string(value)
		resp.Cache = &s
	}
	Success(w, resp)
}

// TestSetCache сохраняет тело запроса (1..1024 байт UTF-8) на минуту.
// POST /api/v1/test/cache
func (h *Handler) TestSetCache(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxTestCacheSize+1))
	if err != nil {
		BadRequest(w, ErrCodeBadRequest, "failed to read body")
		return
	}
	if len(data) == 0 || len(data) > maxTestCacheSize {
		BadRequest(w, ErrCodeBadRequest, "data length must be between 1 and 1024")
		return
	}
	if !utf8.Valid(data) {
		BadRequest(w, ErrCodeInvalidPayload, "data must be a utf-8 string")
		return
	}

	c, err := h.res.Cache()
	if HandleError(w, h.logger, err) {
		return
	}
	if err := c.Set(r.Context(), TestCacheKey, data, testCacheTTL); HandleError(w, h.logger, err) {
		return
	}
	Success(w, MessageResponse{Message: "cache set successfully"})
}
