package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport объединяет сетевые сбои, таймауты, ответы 5xx и нечитаемые ответы.
	ErrTransport = errors.New("provider transport failure")
	// ErrRejected означает, что поставщик явно вернул ошибку в поле error.
	ErrRejected = errors.New("provider rejected request")
	// ErrNoProvider возвращается, если нет ни одного активного поставщика.
	ErrNoProvider = errors.New("no active provider configured")
)

// TransportError описывает сбой доставки запроса поставщику. Состояние на стороне
// поставщика в этом случае неизвестно.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is позволяет сопоставлять ошибку с ErrTransport через errors.Is.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RejectedError содержит текст ошибки, который вернул поставщик.
type RejectedError struct {
	Action  string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider %s rejected: %s", e.Action, e.Message)
}

// Is позволяет сопоставлять ошибку с ErrRejected через errors.Is.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// IsTransport сообщает, что ошибка вызвана недоступностью поставщика.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}
