package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/puddle/v2"
)

// ErrUnknownDatabase — запрошена база, для которой нет DATABASE_URL_<name>.
var ErrUnknownDatabase = errors.New("unknown database")

// Kind — класс ошибки на границе с БД.
type Kind int

const (
	// KindNone — ошибка не относится к БД.
	KindNone Kind = iota
	// KindConnection — не удалось установить или сохранить соединение.
	KindConnection
	// KindQuery — сервер отверг запрос.
	KindQuery
	// KindPool — пул закрыт или исчерпан.
	KindPool
)

// String возвращает имя класса для логов.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	case KindPool:
		return "pool"
	default:
		return "none"
	}
}

// Error — ошибка БД с явным классом и именем базы.
type Error struct {
	Kind Kind
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("database %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("database %s %s error: %v", e.Name, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap оборачивает ошибку драйвера в *Error, если она относится к БД.
// Остальные ошибки возвращаются как есть.
func Wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}
	kind := Classify(err)
	if kind == KindNone {
		return err
	}
	return &Error{Kind: kind, Name: name, Err: err}
}

// Classify определяет класс ошибки по цепочке Unwrap.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Kind
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return KindConnection
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 — Connection Exception, 57P01..03 — сервер завершает сессию.
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return KindConnection
		}
		switch pgErr.Code {
		case "57P01", "57P02", "57P03":
			return KindConnection
		}
		return KindQuery
	}

	if errors.Is(err, puddle.ErrClosedPool) {
		return KindPool
	}

	return KindNone
}

// IsDatabaseError — true для любой ошибки, классифицированной как ошибка БД.
func IsDatabaseError(err error) bool {
	return Classify(err) != KindNone
}
