package reqauth

import (
	"fmt"

	"github.com/pkg/errors"
)

// Public messages. Callers never learn which check failed.
const (
	UnauthorizedMessage  = "unauthorized"
	MisconfiguredMessage = "service misconfigured"
)

// Rejection reasons, kept for server-side logs and outcome counters only.
const (
	ReasonMissingHeaders  = "missing_headers"
	ReasonBadBearer       = "bad_bearer"
	ReasonBadTimestamp    = "bad_timestamp"
	ReasonStaleTimestamp  = "stale_timestamp"
	ReasonFutureTimestamp = "future_timestamp"
	ReasonReplayedNonce   = "replayed_nonce"
	ReasonBadSignature    = "bad_signature"

	ReasonMissingSecret    = "missing_secret"
	ReasonWeakSecret       = "weak_secret"
	ReasonMissingBearer    = "missing_bearer_config"
	ReasonStoreUnavailable = "store_unavailable"
	ReasonStoreMissing     = "store_missing"
)

// ErrStoreMissing is returned by NonceStore.Probe when the backing table (or keyspace) does not exist.
var ErrStoreMissing = errors.New("nonce store is missing")

// AuthError is a rejection attributable to the caller.
type AuthError struct {
	Reason string
}

func newAuthError(reason string) error {
	return &AuthError{Reason: reason}
}

func (e *AuthError) Error() string {
	return UnauthorizedMessage + ": " + e.Reason
}

// ConfigError means the service is deployed wrong; retrying will not help the caller.
type ConfigError struct {
	Reason string
	Err    error
}

func newConfigError(reason string, err error) error {
	return &ConfigError{Reason: reason, Err: err}
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return MisconfiguredMessage + ": " + e.Reason
	}
	return fmt.Sprintf("%s: %s: %v", MisconfiguredMessage, e.Reason, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func IsUnauthorized(err error) bool {
	var aErr *AuthError
	return errors.As(err, &aErr)
}

func IsConfigError(err error) bool {
	var cErr *ConfigError
	return errors.As(err, &cErr)
}

// Reason extracts the rejection reason of err, or "" for foreign errors.
func Reason(err error) string {
	var aErr *AuthError
	if errors.As(err, &aErr) {
		return aErr.Reason
	}
	var cErr *ConfigError
	if errors.As(err, &cErr) {
		return cErr.Reason
	}
	return ""
}
