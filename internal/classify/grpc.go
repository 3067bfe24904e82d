package classify

import (
	"slices"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultGRPCCodes returns common retryable gRPC status codes.
func DefaultGRPCCodes() []codes.Code {
	return []codes.Code{
		codes.Unavailable,
		codes.ResourceExhausted,
		codes.Aborted,
	}
}

// GRPC retries gRPC status errors whose code is in retryCodes. When the
// status carries a RetryInfo detail the server's pushback becomes a
// RetryAfter decision. Errors without a gRPC status give up. A nil
// retryCodes uses DefaultGRPCCodes.
func GRPC(retryCodes []codes.Code, opts ...Option) Classifier {
	if retryCodes == nil {
		retryCodes = DefaultGRPCCodes()
	}
	set := slices.Clone(retryCodes)
	o := newOptions(opts)

	return Func(func(err error) Decision {
		st, ok := status.FromError(err)
		if !ok || !slices.Contains(set, st.Code()) {
			return giveUp()
		}
		if info := RetryInfo(st); info != nil && info.GetRetryDelay() != nil {
			return retryAfter(o.now, info.GetRetryDelay().AsDuration())
		}
		return retryNow()
	})
}

// RetryInfo returns the RetryInfo detail attached to st, or nil.
func RetryInfo(st *status.Status) *errdetails.RetryInfo {
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.RetryInfo); ok {
			return info
		}
	}
	return nil
}

// GRPCCode returns the gRPC code of err, codes.Unknown for errors without
// a status and codes.OK for nil.
func GRPCCode(err error) codes.Code {
	return status.Code(err)
}

// hasGRPCStatus reports whether err carries a gRPC status.
func hasGRPCStatus(err error) bool {
	_, ok := status.FromError(err)
	return ok
}
