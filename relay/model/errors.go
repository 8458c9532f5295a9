package model

import (
	"fmt"
	"net/http"
)

// Public error taxonomy. The `type` field of the error envelope always
// carries one of these values; `code` carries the finer-grained reason.
const (
	ErrorTypeValidation     = "validation_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypePermission     = "permission_error"
	ErrorTypeRateLimit      = "rate_limit_exceeded"
	ErrorTypeUpstream       = "upstream_error"
	ErrorTypeStreamIdle     = "stream_idle_timeout"
	ErrorTypeInternal       = "internal_error"
)

// NewError builds an error with an explicit taxonomy type.
func NewError(statusCode int, errType, code, message string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		StatusCode: statusCode,
		Error: Error{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	}
}

// NewValidationError reports a request shape or constraint failure (400).
// param names the offending field when known.
func NewValidationError(message, param, code string) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		StatusCode: http.StatusBadRequest,
		Error: Error{
			Message: message,
			Type:    ErrorTypeValidation,
			Param:   param,
			Code:    code,
		},
	}
}

// NewAuthenticationError reports missing or wrong client credentials (401).
func NewAuthenticationError(message string) *ErrorWithStatusCode {
	return NewError(http.StatusUnauthorized, ErrorTypeAuthentication, "invalid_api_key", message)
}

// NewRateLimitError reports pool exhaustion or upstream 429 after fallover (429).
func NewRateLimitError(message string) *ErrorWithStatusCode {
	return NewError(http.StatusTooManyRequests, ErrorTypeRateLimit, "rate_limit_exceeded", message)
}

// NewUpstreamError wraps an upstream non-2xx or parse failure. statusCode
// should already be mapped to 502/503/504 by the caller.
func NewUpstreamError(statusCode int, message string, raw error) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		StatusCode: statusCode,
		Error: Error{
			Message:  message,
			Type:     ErrorTypeUpstream,
			Code:     "upstream_error",
			RawError: raw,
		},
	}
}

// NewStreamIdleError reports that no upstream chunk arrived within the idle
// window; surfaced as a gateway timeout.
func NewStreamIdleError(idleSeconds float64) *ErrorWithStatusCode {
	return NewError(http.StatusGatewayTimeout, ErrorTypeStreamIdle, "stream_idle_timeout",
		fmt.Sprintf("Stream idle timeout after %.0fs", idleSeconds))
}

// NewInternalError wraps an unexpected failure (500). The raw error is kept
// for logs and omitted from the JSON body.
func NewInternalError(err error) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{
		StatusCode: http.StatusInternalServerError,
		Error: Error{
			Message:  "The server had an error while processing your request",
			Type:     ErrorTypeInternal,
			Code:     "internal_error",
			RawError: err,
		},
	}
}
