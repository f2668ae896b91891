package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Conveyor/internal/database"
	"github.com/shaiso/Conveyor/internal/security"
	"github.com/shaiso/Conveyor/internal/worker"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrCodeTooLarge       ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrCodeUnavailable    ErrorCode = "UNAVAILABLE"
	ErrCodePublishFailed  ErrorCode = "PUBLISH_FAILED"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Accepted отправляет ответ 202: задача принята в очередь.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, DataResponse{Data: data})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, code ErrorCode, message string) {
	Error(w, http.StatusBadRequest, code, message)
}

// Unavailable отправляет ошибку 503.
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// InternalError отправляет ошибку 500.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// Unauthorized отправляет ответ по результату проверки авторизации.
func Unauthorized(w http.ResponseWriter, data security.Data) {
	resp := data.Response()
	JSON(w, resp.Status, resp)
}

// HandleError преобразует ошибку ресурсов в HTTP ответ.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	var cfgErr *worker.ConfigurationError
	if errors.As(err, &cfgErr) {
		Unavailable(w, cfgErr.Resource+" is not configured")
		return true
	}

	if errors.Is(err, database.ErrUnknownDatabase) {
		Unavailable(w, err.Error())
		return true
	}

	if database.IsDatabaseError(err) {
		logger.Error("database error", "error", err)
		Unavailable(w, "database unavailable")
		return true
	}

	InternalError(w, logger, err)
	return true
}
