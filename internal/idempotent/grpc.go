package idempotent

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/avaretry/internal/retry"
)

// permanentCodes are gRPC codes that no amount of retrying can fix.
var permanentCodes = map[codes.Code]bool{
	codes.InvalidArgument:    true,
	codes.NotFound:           true,
	codes.AlreadyExists:      true,
	codes.PermissionDenied:   true,
	codes.Unauthenticated:    true,
	codes.FailedPrecondition: true,
	codes.OutOfRange:         true,
	codes.Unimplemented:      true,
}

// GRPCCall describes a gRPC call. gRPC carries no method semantics, so the
// caller states whether the call is idempotent.
type GRPCCall struct {
	Method     string
	Idempotent bool
}

var (
	_ Request   = GRPCCall{}
	_ Overrider = GRPCCall{}
)

// IsIdempotent reports the Idempotent flag.
func (c GRPCCall) IsIdempotent() bool {
	return c.Idempotent
}

// Override forces Unavailable to be retried and permanent codes to be
// final. Other codes and errors without a status are left to the
// classifier.
func (c GRPCCall) Override(err error) error {
	if marked(err) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch {
	case st.Code() == codes.Unavailable:
		return retry.Retryable(err)
	case permanentCodes[st.Code()]:
		return retry.NotRetryable(err)
	default:
		return err
	}
}
