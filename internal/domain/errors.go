package domain

import "errors"

// Ошибки валидации доменных моделей.
var (
	// ErrMissingField — обязательное поле отсутствует.
	ErrMissingField = errors.New("missing required field")

	// ErrEmptyContent — у ErrorLog нет ни одного блока.
	ErrEmptyContent = errors.New("error log has no content")
)
