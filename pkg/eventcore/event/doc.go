// Package event provides an in-process domain-event aggregator.
//
// # Overview
//
// An Aggregator matches published events to subscribed handlers by type and
// invokes them synchronously on the publishing goroutine:
//
//   - Resolver computes the subscribable types of an event (its embedding
//     chain and registered marker interfaces), cached per concrete type
//   - handlers are kept in a copy-on-write registry, so a dispatch in flight
//     is never affected by concurrent subscribe or unsubscribe
//   - handlers run by priority (highest first, ties in registration order),
//     optionally filtered by predicates
//   - DeferUntil and BatchUntil postpone delivery to a unit-of-work stage
//   - DefineScope creates a scoped aggregator torn down with its handle
//
// # Events
//
// Any type embedding Base (directly or through Occurred, Initiated or
// Targeted) is an event. Embedding forms the type hierarchy: a handler for an
// embedded type receives every event that embeds it.
//
//	type AccountEvent struct {
//	    event.Occurred
//	    AccountID string
//	}
//
//	type AccountOpened struct {
//	    AccountEvent
//	    Owner string
//	}
//
// Publishing AccountOpened reaches handlers of AccountOpened, AccountEvent,
// event.Occurred and event.Base.
//
// Marker interfaces embed Event. The set of markers is closed: an interface
// takes part in matching once it is registered, either explicitly with
// RegisterMarkerFor or implicitly by subscribing to it.
//
//	type Auditable interface {
//	    event.Event
//	    AuditTrail() string
//	}
//
// # Subscribing
//
//	agg := event.NewAggregator(event.WithLogger(logger))
//	defer agg.Close()
//
//	unsub, err := event.Subscribe(agg, func(ctx context.Context, e AccountOpened) error {
//	    return mailer.Welcome(ctx, e.Owner)
//	}, event.WithPriority(10))
//
// Builders compose filters (combined with AND) and delivery options:
//
//	event.Where(agg, func(e AccountOpened) bool { return e.Owner != "" }).
//	    Priority(5).
//	    Subscribe(handle)
//
// # Publishing
//
// Publish returns the first handler error wrapped in *HandlerError; handlers
// after it do not run. Nothing is retried and panics are not recovered.
//
// # Deferred and Batched Delivery
//
// Deferred subscribers wait for a stage of the unit of work carried by the
// publishing context (see WithUnit and package unitofwork):
//
//	event.On[AccountOpened](agg).
//	    DeferUntil(event.AfterCompletion).
//	    Subscribe(sendWelcome)
//
//	event.On[AccountOpened](agg).
//	    BatchUntil(event.Finished).
//	    Subscribe(func(ctx context.Context, b event.Batch[AccountOpened]) error {
//	        return index.Bulk(ctx, b.Events)
//	    })
//
// Without a unit in the context, or once the stage has fired, the event is
// dropped for that subscriber and a warning is logged. Publish does not fail.
//
// # Scopes
//
//	ctx, scope := agg.DefineScope(ctx)
//	defer scope.Close()
//
//	event.Subscribe(scope, collect)
//	agg.Publish(ctx, e) // scoped handlers first, then agg's own
//
// DefineScope on a context that already carries a live scope returns a
// nested handle on the same scoped aggregator. Closing a handle removes the
// handlers it registered; closing the outermost handle disposes the scoped
// aggregator.
package event
