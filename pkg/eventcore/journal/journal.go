package journal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/randalmurphal/eventcore/pkg/eventcore/event"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append writes entries atomically, in order.
	Append(ctx context.Context, entries ...Entry) error

	// List returns the entries recorded for a unit of work in append order.
	// Returns an empty slice (not error) if the unit has no entries.
	List(ctx context.Context, unitID string) ([]Entry, error)

	// ListByType returns the entries of one event type in append order.
	ListByType(ctx context.Context, eventType string) ([]Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Entry is one recorded event.
type Entry struct {
	ID         string
	UnitID     string
	EventType  string
	OccurredAt time.Time
	Payload    []byte
}

// Sentinel errors for journal operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")

	// ErrNilStore indicates Attach was given no store.
	ErrNilStore = errors.New("journal store is nil")

	// ErrInvalidEntry indicates an entry without an ID or event type.
	ErrInvalidEntry = errors.New("invalid journal entry")
)

type identified interface {
	ID() string
}

type timestamped interface {
	Timestamp() time.Time
}

// NewEntry records ev as an Entry. The payload is the JSON encoding of ev.
//
// Events embedding event.Occurred keep their own ID and timestamp; others get
// a fresh UUID and the current time. The unit ID is taken from the unit of
// work carried by ctx, if it has one.
func NewEntry(ctx context.Context, ev event.Event) (Entry, error) {
	if ev == nil {
		return Entry{}, event.ErrNilEvent
	}

	payload, err := codec.Marshal(ev)
	if err != nil {
		return Entry{}, fmt.Errorf("encode payload: %w", err)
	}

	e := Entry{
		EventType: TypeName(ev),
		Payload:   payload,
	}
	if id, ok := ev.(identified); ok {
		e.ID = id.ID()
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if ts, ok := ev.(timestamped); ok {
		e.OccurredAt = ts.Timestamp()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()

	if u, ok := event.UnitFrom(ctx); ok {
		if id, ok := u.(identified); ok {
			e.UnitID = id.ID()
		}
	}
	return e, nil
}

// Decode unmarshals the entry payload into target.
func (e Entry) Decode(target any) error {
	if err := codec.Unmarshal(e.Payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// TypeName returns the name entries use for the concrete type of ev.
// Pointer and value events share a name.
func TypeName(ev event.Event) string {
	t := reflect.TypeOf(ev)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.String()
}

func (e Entry) validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEntry)
	}
	if e.EventType == "" {
		return fmt.Errorf("%w: missing event type", ErrInvalidEntry)
	}
	return nil
}

func validate(entries []Entry) error {
	for _, e := range entries {
		if err := e.validate(); err != nil {
			return err
		}
	}
	return nil
}

// storedPayload is the payload a store persists. Every store records an
// empty payload as JSON null.
func storedPayload(p []byte) []byte {
	if len(p) == 0 {
		return []byte("null")
	}
	return clonePayload(p)
}

func clonePayload(p []byte) []byte {
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
