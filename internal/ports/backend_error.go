package ports

import (
	"errors"
	"fmt"
)

// Kind — категория ошибки шлюза. Строка стабильная, уходит клиенту.
type Kind string

const (
	KindProcessExit      Kind = "process-exit-nonzero"
	KindNetwork          Kind = "network-unreachable"
	KindBackendRejected  Kind = "backend-rejected"
	KindMalformedPayload Kind = "malformed-backend-payload"
	KindNotImplemented   Kind = "engine-not-implemented"
	KindMissingConfig    Kind = "missing-required-config"
)

// BackendError — единая ошибка нижних слоёв (процесс, сеть, бэкенд).
type BackendError struct {
	Kind   Kind
	Status int    // только для KindBackendRejected
	Detail string // диагностика с самого нижнего слоя
	Err    error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *BackendError) Unwrap() error { return e.Err }

func ProcessExit(detail string, err error) *BackendError {
	return &BackendError{Kind: KindProcessExit, Detail: detail, Err: err}
}

func NetworkUnreachable(err error) *BackendError {
	return &BackendError{Kind: KindNetwork, Detail: err.Error(), Err: err}
}

func BackendRejected(status int, msg string) *BackendError {
	return &BackendError{Kind: KindBackendRejected, Status: status, Detail: msg}
}

func MalformedPayload(detail string) *BackendError {
	return &BackendError{Kind: KindMalformedPayload, Detail: detail}
}

func NotImplemented(detail string) *BackendError {
	return &BackendError{Kind: KindNotImplemented, Detail: detail}
}

func MissingConfig(field string) *BackendError {
	return &BackendError{Kind: KindMissingConfig, Detail: field + " is not configured"}
}

// AsBackendError достаёт BackendError из цепочки.
func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// ClientError — ошибка входных данных запроса (HTTP 400).
type ClientError struct {
	Msg string
}

func (e *ClientError) Error() string { return e.Msg }

func NewClientError(msg string) *ClientError {
	return &ClientError{Msg: msg}
}
