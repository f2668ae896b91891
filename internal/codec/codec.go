// Package codec сериализует и десериализует payload сообщений.
//
// Поддерживаемые виды:
//   - KindBytes  — сырые байты, без преобразований
//   - KindString — UTF-8 строка
//   - KindRecord — JSON-объект, проверяемый через Record.Validate
//   - KindJSON   — произвольное JSON-значение
//
// Любая ошибка декодирования возвращается как *DecodeError, чтобы consumer
// мог отличить битый payload от ошибки в обработчике.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Kind — вид payload.
type Kind int

const (
	KindBytes Kind = iota
	KindString
	KindRecord
	KindJSON
)

// String возвращает имя вида для логов и ошибок.
func (k Kind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindRecord:
		return "record"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Record — структурированная запись со схемой.
type Record interface {
	Validate() error
}

var (
	// ErrInvalidUTF8 — payload не является корректной UTF-8 строкой.
	ErrInvalidUTF8 = errors.New("invalid utf-8")

	// ErrInvalidRecord — запись не прошла валидацию при кодировании.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrRecordTarget — для KindRecord нужен DecodeInto с целевой записью.
	ErrRecordTarget = errors.New("record kind requires a target")
)

// DecodeError — payload не удалось декодировать в нужный вид.
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError проверяет, что ошибка (или её причина) — *DecodeError.
func IsDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}

// Encode сериализует значение в байты.
//
// []byte возвращается как есть, string — в UTF-8, Record валидируется
// и кодируется в JSON, всё остальное — через json.Marshal.
func Encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case Record:
		if err := val.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		return json.Marshal(val)
	default:
		return json.Marshal(v)
	}
}

// Decode декодирует payload вида KindBytes, KindString или KindJSON.
// Для KindRecord используйте DecodeInto или DecodeRecord.
func Decode(data []byte, kind Kind) (any, error) {
	switch kind {
	case KindBytes:
		return data, nil
	case KindString:
		return DecodeString(data)
	case KindJSON:
		return DecodeJSON(data)
	default:
		return nil, &DecodeError{Kind: kind, Err: ErrRecordTarget}
	}
}

// DecodeString декодирует UTF-8 строку.
func DecodeString(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", &DecodeError{Kind: KindString, Err: ErrInvalidUTF8}
	}
	return string(data), nil
}

// DecodeJSON декодирует произвольное JSON-значение.
func DecodeJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &DecodeError{Kind: KindJSON, Err: err}
	}
	return v, nil
}

// DecodeInto декодирует JSON-объект в target и валидирует его.
func DecodeInto(data []byte, target Record) error {
	if err := json.Unmarshal(data, target); err != nil {
		return &DecodeError{Kind: KindRecord, Err: err}
	}
	if err := target.Validate(); err != nil {
		return &DecodeError{Kind: KindRecord, Err: err}
	}
	return nil
}

// DecodeRecord — типизированный вариант DecodeInto.
//
//	entry, err := codec.DecodeRecord[domain.TaskEntry](body)
func DecodeRecord[T any, P interface {
	*T
	Record
}](data []byte) (T, error) {
	var v T
	if err := DecodeInto(data, P(&v)); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
