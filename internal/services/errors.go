package services

import "errors"

// Виды ошибок, которые видит пользователь. Проверять через errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrAuth            = errors.New("invalid credentials")
	ErrNotFound        = errors.New("not found")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Error - пользовательская ошибка: вид (Kind) и текст для показа в форме.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Message возвращает текст пользовательской ошибки или пустую строку,
// если err не является *Error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
