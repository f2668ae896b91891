package fetch

import (
	"net/http"
	"strings"
)

// paramPrefix — префикс схемы, при которой токен передаётся query-параметром.
const paramPrefix = "param:"

// Auth добавляет учётные данные в исходящий запрос.
type Auth interface {
	Apply(req *http.Request)
}

// SchemeAuth — заголовок "Authorization: <Scheme> <token>".
type SchemeAuth struct {
	Scheme string
	Token  string
}

// Apply устанавливает заголовок Authorization.
func (a SchemeAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", capitalize(a.Scheme)+" "+a.Token)
}

// ParamAuth — токен в query-параметре Name.
type ParamAuth struct {
	Name  string
	Token string
}

// Apply добавляет query-параметр.
func (a ParamAuth) Apply(req *http.Request) {
	q := req.URL.Query()
	q.Set(a.Name, a.Token)
	req.URL.RawQuery = q.Encode()
}

// NewAuth создаёт Auth по схеме.
//
// "param:<name>" — токен в query-параметре <name>,
// любая другая схема (по умолчанию "bearer") — заголовок Authorization.
// Пустой token означает отсутствие аутентификации.
func NewAuth(scheme, token string) Auth {
	if token == "" {
		return nil
	}
	if scheme == "" {
		scheme = "bearer"
	}
	if name, ok := strings.CutPrefix(scheme, paramPrefix); ok {
		return ParamAuth{Name: strings.TrimSpace(name), Token: token}
	}
	return SchemeAuth{Scheme: scheme, Token: token}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
