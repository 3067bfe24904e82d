package classify

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ResponseError is a failed HTTP exchange that produced a response.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string

	// RetryAfter is the raw Retry-After header, empty when absent.
	RetryAfter string
}

// NewResponseError captures the parts of resp needed for classification.
// It does not read or close the body.
func NewResponseError(resp *http.Response) *ResponseError {
	e := &ResponseError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RetryAfter: strings.TrimSpace(resp.Header.Get("Retry-After")),
	}
	if e.Status == "" {
		e.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		if resp.Request.URL != nil {
			e.URL = resp.Request.URL.Redacted()
		}
	}
	return e
}

// Error implements error.
func (e *ResponseError) Error() string {
	if e.Method == "" && e.URL == "" {
		return "unexpected status " + e.Status
	}
	return fmt.Sprintf("%s %s: unexpected status %s", e.Method, e.URL, e.Status)
}

// CheckResponse returns nil for 2xx and 3xx responses and a *ResponseError
// otherwise.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	return NewResponseError(resp)
}

// DefaultHTTPStatusCodes returns common retryable HTTP status codes.
func DefaultHTTPStatusCodes() []int {
	return []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
}

// ParseRetryAfter parses a Retry-After value, either delay-seconds or an
// HTTP-date, into the instant it designates.
func ParseRetryAfter(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return time.Time{}, false
		}
		if secs > int64(maxRetryAfter/time.Second) {
			secs = int64(maxRetryAfter / time.Second)
		}
		return now.Add(time.Duration(secs) * time.Second), true
	}
	if t, err := http.ParseTime(value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// maxRetryAfter bounds delay-seconds values so that they cannot overflow.
const maxRetryAfter = 24 * time.Hour

// HTTP classifies *ResponseError failures by status code and network
// failures as retryable. A retryable response carrying a valid Retry-After
// header yields a RetryAfter decision. A nil statusCodes uses
// DefaultHTTPStatusCodes.
func HTTP(statusCodes []int, opts ...Option) Classifier {
	if statusCodes == nil {
		statusCodes = DefaultHTTPStatusCodes()
	}
	codes := slices.Clone(statusCodes)
	o := newOptions(opts)

	return Func(func(err error) Decision {
		var respErr *ResponseError
		if errors.As(err, &respErr) {
			if !slices.Contains(codes, respErr.StatusCode) {
				return giveUp()
			}
			if at, ok := ParseRetryAfter(respErr.RetryAfter, o.now.Now()); ok {
				return retryAt(at)
			}
			return retryNow()
		}
		if IsNetwork(err) {
			return retryNow()
		}
		return giveUp()
	})
}

// HTTPStatus reports the status code carried by err, or zero.
func HTTPStatus(err error) int {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}
