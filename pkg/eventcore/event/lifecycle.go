package event

import (
	"context"
	"fmt"
)

// Stage is a unit-of-work lifecycle point deferred subscribers can wait for.
// Stages fire at most once per unit, in declaration order.
type Stage int

const (
	// BeforeCompletion fires before the unit commits. A callback error aborts the commit.
	BeforeCompletion Stage = iota + 1
	// AfterCompletion fires once the unit committed successfully.
	AfterCompletion
	// Finished fires when the unit ends, whatever its outcome.
	Finished
)

var stageNames = map[Stage]string{
	BeforeCompletion: "before_completion",
	AfterCompletion:  "after_completion",
	Finished:         "finished",
}

// String returns the snake_case stage name.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Valid reports whether s is one of the declared stages.
func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// ParseStage maps a stage name back to its Stage.
func ParseStage(name string) (Stage, error) {
	for s, n := range stageNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStage, name)
}

// Lifecycle lets deferred subscribers attach callbacks to unit-of-work stages.
type Lifecycle interface {
	// On attaches fn to stage. It returns ErrStageFired if stage already fired.
	// The returned cancel func detaches fn if the stage has not fired yet.
	On(stage Stage, fn func(ctx context.Context) error) (cancel func(), err error)
}

// Storage holds values scoped to one unit of work.
type Storage interface {
	Get(key any) (any, bool)
	Set(key, value any)
	Release(key any)
}

// Unit is the host unit of work seen by deferred and batched subscribers.
type Unit interface {
	Lifecycle
	Storage
}

type unitKey struct{}

// WithUnit returns a context carrying u.
func WithUnit(ctx context.Context, u Unit) context.Context {
	return context.WithValue(ctx, unitKey{}, u)
}

// UnitFrom returns the unit of work carried by ctx.
func UnitFrom(ctx context.Context) (Unit, bool) {
	u, ok := ctx.Value(unitKey{}).(Unit)
	return u, ok && u != nil
}
