// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client/repo/service layers.
var (
	// ErrConfiguration indicates a malformed or missing URL, token, or instance mapping.
	// Always fatal and raised before any network activity.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransport indicates a network, timeout, or HTTP status failure.
	ErrTransport = errors.New("transport error")

	// ErrRemoteAPI indicates an application error embedded in an HTTP 200 response.
	ErrRemoteAPI = errors.New("remote api error")

	// ErrValidation indicates an advisory schema mismatch on a record.
	ErrValidation = errors.New("validation warning")

	// ErrPersistence indicates a failure while committing a batch of raw records.
	ErrPersistence = errors.New("persistence error")
)
