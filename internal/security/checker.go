package security

import (
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Checker проверяет токен своей схемы.
type Checker interface {
	Check(token string, header http.Header) Data
}

// CheckerFunc — функция как Checker.
type CheckerFunc func(token string, header http.Header) Data

func (f CheckerFunc) Check(token string, header http.Header) Data { return f(token, header) }

// Schemes — схема (в нижнем регистре) → Checker.
type Schemes map[string]Checker

// Names возвращает поддерживаемые схемы.
func (s Schemes) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}

// Authorize разбирает Authorization и передаёт токен Checker'у схемы.
func (s Schemes) Authorize(header http.Header) Data {
	authorization := strings.TrimSpace(header.Get("Authorization"))
	if authorization == "" {
		return Failed(authorization, StatusNoAuth)
	}

	scheme, token, ok := strings.Cut(authorization, " ")
	if !ok {
		return Failed(authorization, StatusInvalidSchema)
	}

	checker, ok := s[strings.ToLower(scheme)]
	if !ok {
		return Failed(authorization, StatusUnsupportedSchema)
	}
	return checker.Check(token, header)
}

// RS256Checker проверяет JWT, подписанный RS256.
// aud не проверяется.
type RS256Checker struct {
	key *rsa.PublicKey
}

// NewRS256Checker создаёт checker из PEM публичного ключа.
func NewRS256Checker(pemKey []byte) (*RS256Checker, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &RS256Checker{key: key}, nil
}

// LoadRS256Checker читает публичный ключ из файла.
func LoadRS256Checker(path string) (*RS256Checker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return NewRS256Checker(data)
}

// Check проверяет подпись и срок действия токена.
func (c *RS256Checker) Check(token string, _ http.Header) Data {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))

	switch {
	case err == nil:
		return OK(token, claims)
	case errors.Is(err, jwt.ErrTokenExpired):
		return Failed(token, StatusAuthExpired)
	default:
		return Failed(token, StatusAuthFailed)
	}
}

// CheckCodeChecker проверяет код HMAC-SHA256(salt, начало минуты).
//
// Принимается код текущей минуты и соседней: предыдущей в первой
// половине минуты, следующей во второй.
type CheckCodeChecker struct {
	salt []byte
	now  func() time.Time
}

// NewCheckCodeChecker создаёт checker с солью.
func NewCheckCodeChecker(salt []byte) *CheckCodeChecker {
	return &CheckCodeChecker{salt: salt, now: time.Now}
}

// Check сверяет код с допустимыми минутами.
func (c *CheckCodeChecker) Check(token string, _ http.Header) Data {
	if len(c.salt) == 0 {
		return Failed(token, StatusAuthError)
	}
	if ValidCheckCode(c.salt, token, c.now().Unix()) {
		return OK(token, nil)
	}
	return Failed(token, StatusAuthFailed)
}

// CheckCode вычисляет код для минуты, начинающейся в minuteStart (unix, секунды).
func CheckCode(salt []byte, minuteStart int64) string {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(minuteStart))

	mac := hmac.New(sha256.New, salt)
	mac.Write(buf[:])
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidCheckCode проверяет код для момента timestamp (unix, секунды).
func ValidCheckCode(salt []byte, code string, timestamp int64) bool {
	now := timestamp - timestamp%60
	other := now + 60
	if timestamp%60 < 30 {
		other = now - 60
	}

	for _, ts := range []int64{now, other} {
		if hmac.Equal([]byte(CheckCode(salt, ts)), []byte(code)) {
			return true
		}
	}
	return false
}
