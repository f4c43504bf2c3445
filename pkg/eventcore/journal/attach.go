package journal

import (
	"context"

	"github.com/randalmurphal/eventcore/pkg/eventcore/event"
)

// AttachOption configures Attach.
type AttachOption func(*attachConfig)

type attachConfig struct {
	stage  event.Stage
	filter func(event.Event) bool
}

// WithStage sets the unit-of-work stage entries are written at.
// The default is event.AfterCompletion, so only committed events are recorded.
func WithStage(stage event.Stage) AttachOption {
	return func(c *attachConfig) {
		c.stage = stage
	}
}

// WithFilter records only the events pred accepts.
func WithFilter(pred func(event.Event) bool) AttachOption {
	return func(c *attachConfig) {
		c.filter = pred
	}
}

// Attach records every event published to target within a unit of work.
// The events of one unit are appended to store in a single call when the
// configured stage fires. Events published outside a unit are not recorded.
//
// The returned func detaches the journal.
func Attach(target event.Target, store Store, opts ...AttachOption) (func(), error) {
	if store == nil {
		return nil, ErrNilStore
	}

	cfg := attachConfig{stage: event.AfterCompletion}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := event.On[event.Event](target)
	if cfg.filter != nil {
		b = b.Where(cfg.filter)
	}

	return b.BatchUntil(cfg.stage).Subscribe(func(ctx context.Context, batch event.Batch[event.Event]) error {
		entries := make([]Entry, 0, batch.Len())
		for _, ev := range batch.Events {
			e, err := NewEntry(ctx, ev)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return store.Append(ctx, entries...)
	})
}
