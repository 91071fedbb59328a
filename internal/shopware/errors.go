package shopware

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound возвращается, если удалённая система ответила 404.
	ErrNotFound = errors.New("not found")
	// ErrRetriesExhausted возвращается после исчерпания попыток.
	ErrRetriesExhausted = errors.New("max retry attempts reached")
	// ErrUnexpectedResponse возвращается, если ответ API не удалось разобрать.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// APIError описывает ответ API с кодом ошибки.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("shopware api status %d", e.StatusCode)
	}
	return fmt.Sprintf("shopware api status %d: %s", e.StatusCode, e.Body)
}

// Is позволяет сопоставлять 404 с ErrNotFound через errors.Is.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TransportError описывает сетевую ошибку без HTTP-ответа.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetryable сообщает, стоит ли повторять запрос: 429, 5xx и сетевые ошибки.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
