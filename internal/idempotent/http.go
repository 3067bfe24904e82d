package idempotent

import (
	"net/http"

	"github.com/vyrodovalexey/avaretry/internal/classify"
	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// IdempotencyKeyHeader makes any request method safe to retry when set.
const IdempotencyKeyHeader = "Idempotency-Key"

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodTrace:   true,
}

// HTTPRequest describes an HTTP request for idempotency checks.
type HTTPRequest struct {
	Method string
	Header http.Header
}

var (
	_ Request   = HTTPRequest{}
	_ Overrider = HTTPRequest{}
)

// HTTP returns the HTTPRequest describing req.
func HTTP(req *http.Request) HTTPRequest {
	if req == nil {
		return HTTPRequest{}
	}
	return HTTPRequest{Method: req.Method, Header: req.Header}
}

// IsIdempotent reports whether the method is idempotent or the request
// carries an Idempotency-Key header.
func (r HTTPRequest) IsIdempotent() bool {
	if idempotentMethods[r.Method] {
		return true
	}
	return r.Header.Get(IdempotencyKeyHeader) != ""
}

// Override forces transient transport failures to be retried. Everything
// else is left to the classifier.
func (r HTTPRequest) Override(err error) error {
	if marked(err) {
		return err
	}
	if classify.IsNetwork(err) {
		return retry.Retryable(err)
	}
	return err
}
