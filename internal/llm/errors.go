package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrEmbeddingService matches any error raised by an embedding call.
	ErrEmbeddingService = errors.New("embedding service error")
	// ErrCompletionService matches any error raised by a completion call.
	ErrCompletionService = errors.New("completion service error")
)

// Service names the upstream that produced a ServiceError.
type Service string

const (
	ServiceEmbedding  Service = "embedding"
	ServiceCompletion Service = "completion"
)

// ServiceError is a failed call to an embedding or completion service.
// Transient errors (rate limiting, timeouts, 5xx) may be retried;
// fatal ones (bad credentials, malformed input) may not.
type ServiceError struct {
	Service    Service
	Transient  bool
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *ServiceError) Error() string {
	class := "fatal"
	if e.Transient {
		class = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s service error (%s, status %d): %v", e.Service, class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s service error (%s): %v", e.Service, class, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the per-service sentinels.
func (e *ServiceError) Is(target error) bool {
	switch target {
	case ErrEmbeddingService:
		return e.Service == ServiceEmbedding
	case ErrCompletionService:
		return e.Service == ServiceCompletion
	}
	return false
}

// Temporary reports whether the call may succeed if retried.
func (e *ServiceError) Temporary() bool {
	return e.Transient
}

// NewTransientError wraps err as a retryable failure of service.
func NewTransientError(service Service, err error) *ServiceError {
	return &ServiceError{Service: service, Transient: true, Err: err}
}

// NewFatalError wraps err as a non-retryable failure of service.
func NewFatalError(service Service, err error) *ServiceError {
	return &ServiceError{Service: service, Err: err}
}

// IsTransient reports whether err is a retryable ServiceError.
func IsTransient(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Transient
}

// statusError classifies a non-200 HTTP response.
func statusError(service Service, status int, body string) *ServiceError {
	transient := status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
	return &ServiceError{
		Service:    service,
		Transient:  transient,
		StatusCode: status,
		Err:        fmt.Errorf("bad status %d: %s", status, body),
	}
}

// transportError classifies a failure to get any response.
// Caller cancellation is fatal; timeouts and connection failures are transient.
func transportError(service Service, err error) *ServiceError {
	wrapped := fmt.Errorf("failed to send request: %w", err)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransientError(service, wrapped)
	}
	if errors.Is(err, context.Canceled) {
		return NewFatalError(service, wrapped)
	}
	return NewTransientError(service, wrapped)
}
