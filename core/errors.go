package core

import "github.com/pkg/errors"

type (
	// FieldError is a business-rule failure on one request field, keyed by its json name.
	FieldError struct {
		Field string
		Error string
	}

	// ValidationError reports input that satisfies its validate tags but is still refused.
	ValidationError struct {
		Err    error
		Fields []FieldError
	}

	// shutdown marks a failure the process cannot recover from without a restart,
	// such as a nonce store whose connection pool was closed under it.
	shutdown struct {
		err error
	}
)

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

func (err *ValidationError) Unwrap() error { return err.Err }

// NewShutdownError wraps err so that the HTTP boundary stops the server once it has answered.
func NewShutdownError(err error) error {
	return &shutdown{err: err}
}

func (s *shutdown) Error() string {
	return "unrecoverable: " + s.err.Error()
}

func (s *shutdown) Unwrap() error { return s.err }

// IsShutdown reports whether a shutdown error is anywhere in err's chain.
func IsShutdown(err error) bool {
	var s *shutdown
	return errors.As(err, &s)
}
