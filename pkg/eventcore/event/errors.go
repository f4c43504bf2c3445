package event

import (
	"errors"
	"fmt"
)

// Usage errors. These are returned synchronously at the point of misuse.
var (
	ErrNilEvent     = errors.New("event cannot be nil")
	ErrNilHandler   = errors.New("handler cannot be nil")
	ErrNilPredicate = errors.New("predicate cannot be nil")
	ErrNilTarget    = errors.New("subscription target cannot be nil")
	ErrNotEvent     = errors.New("type does not implement event.Event")
	ErrNotMarker    = errors.New("marker must be an interface type")
	ErrScopeClosed  = errors.New("scope already closed")
	ErrInvalidStage = errors.New("invalid lifecycle stage")
)

// ErrStageFired is returned by a Lifecycle when a callback is attached to a
// stage that has already fired.
var ErrStageFired = errors.New("lifecycle stage already fired")

// HandlerError reports the handler whose failure aborted a dispatch.
type HandlerError struct {
	DescriptorID string // ID of the failing descriptor
	EventType    string // Concrete type of the published event
	Err          error  // Error returned by the handler
}

// Error implements error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed for %s: %v", e.DescriptorID, e.EventType, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
