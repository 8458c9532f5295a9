package grok

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// UpstreamError reports a failed upstream call with enough context for the
// retry engine and the pool accounting: the HTTP status (or gRPC HTTP
// equivalent), an optional Retry-After hint and a response body excerpt.
type UpstreamError struct {
	Status        int
	Endpoint      string
	Body          string
	RetryAfterVal time.Duration
	RetryAfterSet bool
	Err           error
}

// NewUpstreamError builds an UpstreamError from a response status and body
// excerpt.
func NewUpstreamError(endpoint string, status int, body string) *UpstreamError {
	return &UpstreamError{Status: status, Endpoint: endpoint, Body: body}
}

// NewUpstreamErrorFromResponse builds an UpstreamError from the response,
// capturing the Retry-After header when present. The body must already be
// read by the caller.
func NewUpstreamErrorFromResponse(endpoint string, resp *http.Response, body []byte) *UpstreamError {
	e := &UpstreamError{
		Status:   resp.StatusCode,
		Endpoint: endpoint,
		Body:     excerpt(body),
	}
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		e.RetryAfterVal = d
		e.RetryAfterSet = true
	}
	return e
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upstream %s returned %d", e.Endpoint, e.Status)
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// HTTPStatus satisfies retry.StatusError.
func (e *UpstreamError) HTTPStatus() int { return e.Status }

// RetryAfter satisfies retry.RetryAfterHint.
func (e *UpstreamError) RetryAfter() (time.Duration, bool) {
	return e.RetryAfterVal, e.RetryAfterSet
}

// IsAuthFailure reports whether the error should count against the token's
// consecutive failure tally. Only 401 means the credential itself is bad.
func (e *UpstreamError) IsAuthFailure() bool { return e.Status == http.StatusUnauthorized }

// IsRateLimited reports whether the token hit its upstream quota.
func (e *UpstreamError) IsRateLimited() bool { return e.Status == http.StatusTooManyRequests }

func excerpt(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// parseRetryAfter understands both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
