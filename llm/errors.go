package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Provider    string
	StatusCode  int
	RetryAfter  *time.Duration
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error. The set is closed: provider
// adapters must map every failure they surface onto one of these kinds.
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeServer     ErrorType = "server"
	ErrorTypeBadRequest ErrorType = "bad_request"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeNotFound   ErrorType = "not_found"
)

// ErrorTypes lists every error kind in declaration order.
var ErrorTypes = []ErrorType{
	ErrorTypeConnection,
	ErrorTypeTimeout,
	ErrorTypeRateLimit,
	ErrorTypeServer,
	ErrorTypeBadRequest,
	ErrorTypePermission,
	ErrorTypeNotFound,
}

// Kind sentinels for errors.Is. An *Error matches a sentinel when their types agree.
var (
	ErrConnection = &Error{Type: ErrorTypeConnection}
	ErrTimeout    = &Error{Type: ErrorTypeTimeout}
	ErrRateLimit  = &Error{Type: ErrorTypeRateLimit}
	ErrServer     = &Error{Type: ErrorTypeServer}
	ErrBadRequest = &Error{Type: ErrorTypeBadRequest}
	ErrPermission = &Error{Type: ErrorTypePermission}
	ErrNotFound   = &Error{Type: ErrorTypeNotFound}
)

// Transient reports whether the kind describes a failure that may succeed if
// the same request is sent again.
func (t ErrorType) Transient() bool {
	switch t {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServer:
		return true
	default:
		return false
	}
}

// ParseErrorType converts a configuration string into an ErrorType.
func ParseErrorType(s string) (ErrorType, error) {
	for _, t := range ErrorTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown error type %q", s)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Type) + " error"
	}
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.ProviderErr != nil {
		return msg + ": " + e.ProviderErr.Error()
	}
	return msg
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// Is matches kind sentinels such as ErrRateLimit.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.ProviderErr == nil && t.StatusCode == 0 {
		return t.Type == e.Type
	}
	return t == e
}

// TypeOf returns the kind of the first *Error in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type, true
	}
	return "", false
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypeRateLimit
}

// IsTransientError checks if an error belongs to one of the transient kinds.
func IsTransientError(err error) bool {
	t, ok := TypeOf(err)
	return ok && t.Transient()
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewConnectionError creates an error for a failure to reach the provider.
func NewConnectionError(message string, providerErr error) *Error {
	return &Error{Type: ErrorTypeConnection, Message: message, ProviderErr: providerErr}
}

// NewTimeoutError creates an error for a request that did not complete in time.
func NewTimeoutError(message string, providerErr error) *Error {
	return &Error{Type: ErrorTypeTimeout, Message: message, ProviderErr: providerErr}
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		StatusCode:  http.StatusTooManyRequests,
		RetryAfter:  retryAfter,
		ProviderErr: providerErr,
	}
}

// NewServerError creates an error for a provider-side 5xx failure.
func NewServerError(message string, statusCode int, providerErr error) *Error {
	return &Error{Type: ErrorTypeServer, Message: message, StatusCode: statusCode, ProviderErr: providerErr}
}

// NewBadRequestError creates an error for a request the provider rejected as malformed.
func NewBadRequestError(message string, providerErr error) *Error {
	return &Error{Type: ErrorTypeBadRequest, Message: message, StatusCode: http.StatusBadRequest, ProviderErr: providerErr}
}

// NewPermissionError creates an error for rejected credentials or access.
func NewPermissionError(message string, providerErr error) *Error {
	return &Error{Type: ErrorTypePermission, Message: message, StatusCode: http.StatusForbidden, ProviderErr: providerErr}
}

// NewNotFoundError creates an error for an unknown model or endpoint.
func NewNotFoundError(message string, providerErr error) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: message, StatusCode: http.StatusNotFound, ProviderErr: providerErr}
}

// FromStatusCode maps an HTTP status code returned by a provider onto the taxonomy.
func FromStatusCode(statusCode int, message string, providerErr error) *Error {
	e := &Error{Message: message, StatusCode: statusCode, ProviderErr: providerErr}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Type = ErrorTypeRateLimit
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		e.Type = ErrorTypeTimeout
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Type = ErrorTypePermission
	case statusCode == http.StatusNotFound:
		e.Type = ErrorTypeNotFound
	case statusCode >= 500:
		e.Type = ErrorTypeServer
	case statusCode >= 400:
		e.Type = ErrorTypeBadRequest
	default:
		e.Type = ErrorTypeServer
	}
	return e
}

// ClassifyTransportError maps network-level failures onto the taxonomy.
// It returns nil for nil errors, for context cancellation, and for errors it
// does not recognise, so callers can fall through to their own mapping.
func ClassifyTransportError(provider string, err error) *Error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeTimeout, Provider: provider, Message: "request timed out", ProviderErr: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Type: ErrorTypeTimeout, Provider: provider, Message: "request timed out", ProviderErr: err}
	}
	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return &Error{Type: ErrorTypeConnection, Provider: provider, Message: "connection failed", ProviderErr: err}
	}
	return nil
}

// ParseRetryAfter parses a Retry-After header given either as seconds or as
// an HTTP date. It returns nil when the header is absent or unparseable.
func ParseRetryAfter(header string, now time.Time) *time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if at, err := http.ParseTime(header); err == nil && at.After(now) {
		d := at.Sub(now)
		return &d
	}
	return nil
}
