// Package security — проверка заголовка Authorization.
//
// Заголовок имеет вид "<Scheme> <token>". Scheme (без учёта регистра)
// выбирает Checker из Schemes; результат проверки — Data со статусом.
package security

import (
	"net/http"
	"strings"
)

// Status — результат проверки авторизации.
type Status int

const (
	StatusUnknown    Status = -1
	StatusAuthorized Status = 0

	StatusNoAuth            Status = 1000
	StatusInvalidSchema     Status = 1001
	StatusUnsupportedSchema Status = 1002
	StatusAuthError         Status = 1003
	StatusAuthFailed        Status = 1004
	StatusAuthExpired       Status = 1005
)

// codeOffset — смещение кода ответа для статусов ошибок.
const codeOffset = 99101

// String возвращает имя статуса.
func (s Status) String() string {
	switch s {
	case StatusAuthorized:
		return "AUTHORIZED"
	case StatusNoAuth:
		return "NO_AUTH"
	case StatusInvalidSchema:
		return "INVALID_SCHEMA"
	case StatusUnsupportedSchema:
		return "UNSUPPORTED_SCHEMA"
	case StatusAuthError:
		return "AUTH_ERROR"
	case StatusAuthFailed:
		return "AUTH_FAILED"
	case StatusAuthExpired:
		return "AUTH_EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// HTTPStatus — HTTP-код ответа для статуса.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusAuthorized:
		return http.StatusOK
	case StatusNoAuth, StatusAuthFailed, StatusAuthExpired:
		return http.StatusUnauthorized
	case StatusInvalidSchema:
		return http.StatusForbidden
	case StatusUnsupportedSchema:
		return http.StatusNotImplemented
	case StatusAuthError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code — код ошибки в теле ответа.
func (s Status) Code() int {
	if s >= 1000 {
		return int(s) + codeOffset
	}
	return int(s)
}

// Message — человекочитаемое сообщение: "AUTH_EXPIRED" → "Auth expired".
func (s Status) Message() string {
	name := strings.ToLower(strings.ReplaceAll(s.String(), "_", " "))
	return strings.ToUpper(name[:1]) + name[1:]
}

// Data — результат проверки.
type Data struct {
	// Auth — исходный заголовок или токен.
	Auth     string
	Verified bool
	Status   Status
	// Claims — данные токена при успехе.
	Claims map[string]any
}

// OK — успешная проверка.
func OK(auth string, claims map[string]any) Data {
	if claims == nil {
		claims = map[string]any{}
	}
	return Data{Auth: auth, Verified: true, Status: StatusAuthorized, Claims: claims}
}

// Failed — неуспешная проверка.
func Failed(auth string, status Status) Data {
	return Data{Auth: auth, Status: status, Claims: map[string]any{}}
}

// Response — тело ответа об ошибке авторизации.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Response формирует тело ответа для статуса.
func (d Data) Response() Response {
	return Response{
		Code:    d.Status.Code(),
		Message: d.Status.Message(),
		Status:  d.Status.HTTPStatus(),
	}
}
