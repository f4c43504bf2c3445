package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is the marker capability every publishable value carries.
//
// Embed Base (or one of its specializations) to satisfy it:
//
//	type OrderPlaced struct {
//	    event.Occurred
//	    OrderID string
//	}
type Event interface {
	EventMarker()
}

// Base is the root of every embedding chain.
type Base struct{}

// EventMarker implements Event.
func (Base) EventMarker() {}

// Occurred carries an identity and an occurrence timestamp.
type Occurred struct {
	Base
	EventID    string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ID returns the unique event identifier.
func (o Occurred) ID() string {
	return o.EventID
}

// Timestamp returns when the event occurred.
func (o Occurred) Timestamp() time.Time {
	return o.OccurredAt
}

// OccurredOption configures NewOccurred.
type OccurredOption func(*Occurred)

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) OccurredOption {
	return func(o *Occurred) {
		o.EventID = id
	}
}

// WithOccurredAt sets a specific timestamp (default: time.Now()).
func WithOccurredAt(t time.Time) OccurredOption {
	return func(o *Occurred) {
		o.OccurredAt = t
	}
}

// NewOccurred stamps a new identity and occurrence time.
func NewOccurred(opts ...OccurredOption) Occurred {
	o := Occurred{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Initiated is an occurrence caused by an initiating party, such as a user or an aggregate.
type Initiated[E any] struct {
	Occurred
	Initiator E `json:"initiator"`
}

// NewInitiated stamps an occurrence initiated by initiator.
func NewInitiated[E any](initiator E, opts ...OccurredOption) Initiated[E] {
	return Initiated[E]{Occurred: NewOccurred(opts...), Initiator: initiator}
}

// InitiatedBy returns the initiating party.
func (i Initiated[E]) InitiatedBy() E {
	return i.Initiator
}

// Targeted is an occurrence addressed to a recipient.
type Targeted[T any] struct {
	Occurred
	Target T `json:"target"`
}

// NewTargeted stamps an occurrence addressed to target.
func NewTargeted[T any](target T, opts ...OccurredOption) Targeted[T] {
	return Targeted[T]{Occurred: NewOccurred(opts...), Target: target}
}

// Recipient returns the addressed party.
func (t Targeted[T]) Recipient() T {
	return t.Target
}

// Batch is delivered to batched subscribers once per unit of work,
// holding every matching event in arrival order.
type Batch[T Event] struct {
	Base
	Events []T
}

// Len returns the number of accumulated events.
func (b Batch[T]) Len() int {
	return len(b.Events)
}
