package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Closed error taxonomy for the reconciliation layer. Raw transport and HTTP
// failures are classified exactly once, at the remote client boundary; every
// layer above matches with errors.Is / errors.As.

var (
	// ErrNotFound means the id matched no record in the local store.
	ErrNotFound = errors.New("record not found")

	// ErrNotFoundRemote means the remote service answered 404 for an id,
	// distinct from a local miss.
	ErrNotFoundRemote = errors.New("record not found remotely")

	// ErrDeleteFailed means the remote service acknowledged the delete call
	// but reported the item as not deleted.
	ErrDeleteFailed = errors.New("remote reported item not deleted")

	// ErrStorage is a local persistence failure.
	ErrStorage = errors.New("local storage failure")

	// ErrValidation is a local pre-submission field check failure.
	ErrValidation = errors.New("validation failed")

	// ErrUnknown is the unclassified fallback.
	ErrUnknown = errors.New("unclassified failure")
)

// NetworkError wraps a transport-level failure, timeouts included.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the remote service.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// DecodingError wraps a response body that could not be parsed into the
// expected shape.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("malformed response: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InvalidRecordError carries per-field validation failures. It matches
// ErrValidation under errors.Is.
type InvalidRecordError struct {
	Fields []FieldError
}

func (e *InvalidRecordError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "invalid record: " + strings.Join(parts, "; ")
}

func (e *InvalidRecordError) Is(target error) bool {
	return target == ErrValidation
}

// UserMessage maps a reconciliation error to a message suitable for display.
// A nil error yields the empty string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var netErr *NetworkError
	var srvErr *ServerError
	var decErr *DecodingError
	var invErr *InvalidRecordError

	switch {
	case errors.As(err, &invErr), errors.Is(err, ErrValidation):
		return "Some fields are invalid. Please review and try again."
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotFoundRemote):
		return "That product no longer exists."
	case errors.Is(err, ErrDeleteFailed):
		return "The product could not be deleted. Please try again."
	case errors.Is(err, ErrStorage):
		return "Saving your changes locally failed."
	case errors.As(err, &netErr):
		return "You appear to be offline. Changes will sync when you reconnect."
	case errors.As(err, &srvErr):
		return fmt.Sprintf("The catalog service returned an error (%d).", srvErr.StatusCode)
	case errors.As(err, &decErr):
		return "The catalog service returned an unexpected response."
	default:
		return "Something went wrong. Please try again."
	}
}
