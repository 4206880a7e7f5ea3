package llm

import (
	"context"
	"errors"
	"fmt"
)

// SDKError is the base error type for all llm errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by the inference service.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
	Raw        map[string]any
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type NetworkError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// AbortError marks a call that ended because its context was cancelled. It
// unwraps to the context error so errors.Is(err, context.Canceled) holds.
type AbortError struct{ SDKError }

// EmptyResponseError is returned when the service answered without any usable
// content and no partial value can be returned.
type EmptyResponseError struct{ SDKError }

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, raw map[string]any, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Raw:        raw,
		RetryAfter: retryAfter,
	}

	switch {
	case statusCode == 400 || statusCode == 422:
		return &InvalidRequestError{ProviderError: pe}
	case statusCode == 401:
		return &AuthenticationError{ProviderError: pe}
	case statusCode == 403:
		return &AccessDeniedError{ProviderError: pe}
	case statusCode == 404:
		return &NotFoundError{ProviderError: pe}
	case statusCode == 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case statusCode == 413:
		return &ContextLengthError{ProviderError: pe}
	case statusCode == 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case statusCode >= 500 && statusCode < 600:
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		return &pe
	}
}

// StatusCode extracts the HTTP status of a provider error, or 0.
func StatusCode(err error) int {
	var pe providerFailure
	if errors.As(err, &pe) {
		return pe.provider().StatusCode
	}
	return 0
}

// providerFailure is satisfied by ProviderError and every type embedding it.
type providerFailure interface {
	error
	provider() *ProviderError
}

func (e *ProviderError) provider() *ProviderError { return e }

// IsCancellation reports whether err stems from a cancelled context.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	var ae *AbortError
	return errors.As(err, &ae) || errors.Is(err, context.Canceled)
}

// IsRetryable reports whether err is a transient failure worth retrying:
// rate limiting, server errors, timeouts and network failures. Cancellation is
// never retryable and unknown errors are not retried.
func IsRetryable(err error) bool {
	if err == nil || IsCancellation(err) {
		return false
	}
	var (
		ne *NetworkError
		rt *RequestTimeoutError
		pe providerFailure
	)
	switch {
	case errors.As(err, &ne), errors.As(err, &rt):
		return true
	case errors.As(err, &pe):
		return pe.provider().Retryable
	default:
		return false
	}
}

// IsTransientStatus reports whether err carries HTTP 429 or a 5xx status. It is
// the narrower predicate used when re-opening a stream.
func IsTransientStatus(err error) bool {
	if IsCancellation(err) {
		return false
	}
	code := StatusCode(err)
	return code == 429 || (code >= 500 && code < 600)
}

func abortError(cause error) error {
	return &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: cause}}
}
