package classify

import (
	"errors"
	"net/http"

	vaultapi "github.com/hashicorp/vault/api"
)

// IsVaultRetryable reports whether err is a Vault response worth retrying:
// 412 (a performance standby has not caught up yet), 429 and 5xx other
// than 501. Network failures are retryable too.
func IsVaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusPreconditionFailed,
			respErr.StatusCode == http.StatusTooManyRequests:
			return true
		case respErr.StatusCode == http.StatusNotImplemented:
			return false
		default:
			return respErr.StatusCode >= 500
		}
	}

	return IsNetwork(err)
}

// Vault retries transient Vault failures and gives up on everything else.
func Vault() Classifier {
	return Predicate(IsVaultRetryable)
}
