package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/trading-dashboard/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryTransport represents connection failures and timeouts
	CategoryTransport ErrorCategory = "transport"
	// CategoryProtocol represents non-2xx backend responses
	CategoryProtocol ErrorCategory = "protocol"
	// CategoryDecode represents backend bodies that do not match the expected shape
	CategoryDecode ErrorCategory = "decode"
	// CategoryCircuitOpen represents fetches short-circuited by an open breaker
	CategoryCircuitOpen ErrorCategory = "circuit_open"
	// CategoryValidation represents invalid request parameters
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotReady represents requests made before the first snapshot exists
	CategoryNotReady ErrorCategory = "not_ready"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents internal failures
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category and HTTP status code.
// For fetch failures Resource names the backend resource and UpstreamStatus
// holds the status the backend answered with, if any.
type CategorizedError struct {
	Category       ErrorCategory
	StatusCode     int
	Code           string
	Message        string
	Resource       types.Resource
	UpstreamStatus int
	Details        map[string]interface{}
	Cause          error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	prefix := e.Code
	if e.Resource != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.Resource)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	details := e.Details
	if e.Resource != "" || e.UpstreamStatus != 0 {
		details = make(map[string]interface{}, len(e.Details)+2)
		for k, v := range e.Details {
			details[k] = v
		}
		if e.Resource != "" {
			details["resource"] = string(e.Resource)
		}
		if e.UpstreamStatus != 0 {
			details["upstream_status"] = e.UpstreamStatus
		}
	}
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// ToFailure converts the error into the failure record attached to a snapshot field
func (e *CategorizedError) ToFailure(at time.Time) *types.FieldFailure {
	return &types.FieldFailure{
		Category: string(e.Category),
		Code:     e.Code,
		Message:  e.Error(),
		At:       at,
	}
}

// Fetch errors

// NewTransportError creates an error for a request that never got a response
func NewTransportError(resource types.Resource, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusBadGateway,
		Code:       "BACKEND_UNREACHABLE",
		Message:    "backend request failed",
		Resource:   resource,
		Cause:      cause,
	}
}

// NewTimeoutError creates an error for a fetch that exceeded its deadline
func NewTimeoutError(resource types.Resource, timeout time.Duration) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "BACKEND_TIMEOUT",
		Message:    fmt.Sprintf("backend did not answer within %s", timeout),
		Resource:   resource,
		Details: map[string]interface{}{
			"timeout": timeout.String(),
		},
		Cause: context.DeadlineExceeded,
	}
}

// NewCanceledError creates an error for a fetch abandoned because its tick was canceled
func NewCanceledError(resource types.Resource) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "FETCH_CANCELED",
		Message:    "fetch canceled",
		Resource:   resource,
		Cause:      context.Canceled,
	}
}

// NewProtocolError creates an error for a non-2xx backend response
func NewProtocolError(resource types.Resource, status int, body string) *CategorizedError {
	details := map[string]interface{}{}
	if body != "" {
		details["body"] = body
	}
	return &CategorizedError{
		Category:       CategoryProtocol,
		StatusCode:     http.StatusBadGateway,
		Code:           "BACKEND_STATUS",
		Message:        fmt.Sprintf("backend answered %d %s", status, http.StatusText(status)),
		Resource:       resource,
		UpstreamStatus: status,
		Details:        details,
	}
}

// NewDecodeError creates an error for a body that could not be decoded
func NewDecodeError(resource types.Resource, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDecode,
		StatusCode: http.StatusBadGateway,
		Code:       "BACKEND_DECODE",
		Message:    "backend response has an unexpected shape",
		Resource:   resource,
		Cause:      cause,
	}
}

// NewBackendErrorBody creates an error for an {"error": ...} envelope the
// backend returns with a 200 status
func NewBackendErrorBody(resource types.Resource, message string) *CategorizedError {
	return &CategorizedError{
		Category:       CategoryDecode,
		StatusCode:     http.StatusBadGateway,
		Code:           "BACKEND_ERROR_BODY",
		Message:        message,
		Resource:       resource,
		UpstreamStatus: http.StatusOK,
	}
}

// NewCircuitOpenError creates an error for a fetch skipped by an open breaker
func NewCircuitOpenError(resource types.Resource, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCircuitOpen,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "CIRCUIT_OPEN",
		Message:    "backend resource temporarily disabled after repeated failures",
		Resource:   resource,
		Cause:      cause,
	}
}

// API errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewNotReadyError creates the error served while no snapshot has been committed
func NewNotReadyError(cause *types.FieldFailure) *CategorizedError {
	err := &CategorizedError{
		Category:   CategoryNotReady,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SNAPSHOT_NOT_READY",
		Message:    "no dashboard data has been loaded yet",
	}
	if cause != nil {
		err.Details = map[string]interface{}{
			"last_error": cause.Message,
		}
	}
	return err
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter),
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// Categorize converts any error to a CategorizedError
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &CategorizedError{
			Category:   CategoryTransport,
			StatusCode: http.StatusGatewayTimeout,
			Code:       "BACKEND_TIMEOUT",
			Message:    "deadline exceeded",
			Cause:      err,
		}
	case stderrors.Is(err, context.Canceled):
		return &CategorizedError{
			Category:   CategoryTransport,
			StatusCode: http.StatusServiceUnavailable,
			Code:       "FETCH_CANCELED",
			Message:    "fetch canceled",
			Cause:      err,
		}
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error, 500 when
// the error carries none
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil && catErr.StatusCode != 0 {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if a fetch error is worth another attempt within
// the same tick: transport failures and 5xx/429 backend answers are, decode
// failures and open circuits are not.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryTransport:
		return catErr.Code != "FETCH_CANCELED"
	case CategoryProtocol:
		return catErr.UpstreamStatus >= 500 ||
			catErr.UpstreamStatus == http.StatusTooManyRequests
	default:
		return false
	}
}

// IsFetchError reports whether the error came from talking to the backend
func IsFetchError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	switch catErr.Category {
	case CategoryTransport, CategoryProtocol, CategoryDecode, CategoryCircuitOpen:
		return true
	}
	return false
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
