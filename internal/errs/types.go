package errs

import (
	"fmt"
	"net/http"
)

// TransportError describes a failed remote call at the HTTP level.
// StatusCode is zero when no response was received.
type TransportError struct {
	Function   string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport: %s: HTTP %d after %d attempt(s): %v", e.Function, e.StatusCode, e.Attempts, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport: %s: HTTP %d %s after %d attempt(s)",
			e.Function, e.StatusCode, http.StatusText(e.StatusCode), e.Attempts)
	default:
		return fmt.Sprintf("transport: %s: after %d attempt(s): %v", e.Function, e.Attempts, e.Err)
	}
}

// Unwrap exposes the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrTransport) hold for every TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RemoteAPIError is an application-level error the remote service reported in a 200 body.
type RemoteAPIError struct {
	Function  string
	Exception string
	ErrorCode string
	Message   string
}

func (e *RemoteAPIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("moodle api error: %s: %s (%s)", e.Function, msg, e.ErrorCode)
	}
	return fmt.Sprintf("moodle api error: %s: %s", e.Function, msg)
}

// Is makes errors.Is(err, ErrRemoteAPI) hold for every RemoteAPIError.
func (e *RemoteAPIError) Is(target error) bool { return target == ErrRemoteAPI }

// ValidationError reports a required field missing from a payload.
type ValidationError struct {
	Entity string
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Missing required field '%s' for entity '%s'", e.Field, e.Entity)
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
