package lease

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is wrapped by driver constructors on bad settings.
	ErrInvalidConfig = errors.New("lease: invalid configuration")
	ErrNoEnvironment = errors.New("lease: provider returned no environment id")
)

// RemoteServiceError reports a non-success response or a transport failure.
// Code is the provider's response code, or 0 when the request never got an
// answer (Err is set then).
type RemoteServiceError struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *RemoteServiceError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("lease %s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("lease %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("lease %s: code %d: %s", e.Op, e.Code, e.Message)
	}
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// AsRemote wraps err as a RemoteServiceError for op unless it already is one.
func AsRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	var rse *RemoteServiceError
	if errors.As(err, &rse) {
		return err
	}
	return &RemoteServiceError{Op: op, Err: err}
}
