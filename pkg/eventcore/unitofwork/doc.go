// Package unitofwork provides a minimal host unit of work for the event core.
//
// A Unit is a lifecycle notifier with three stages and a per-unit key/value
// store. It implements event.Unit, so deferred and batched subscribers can
// attach to it through the context returned by Begin.
//
// # Lifecycle
//
//	ctx, u := unitofwork.Begin(ctx, unitofwork.WithCommit(tx.Commit))
//	defer u.Close(ctx)
//
//	if err := placeOrder(ctx); err != nil {
//	    return err // Close fires Finished only
//	}
//	return u.Complete(ctx)
//
// Complete fires BeforeCompletion, runs the commit hook and then fires
// AfterCompletion. A BeforeCompletion callback error or a commit error marks
// the unit failed and AfterCompletion never fires. Close fires Finished
// exactly once whatever the outcome. Each stage fires at most once; attaching
// to a stage that has fired, or can no longer fire, returns event.ErrStageFired.
//
// Run wraps the whole sequence:
//
//	err := unitofwork.Run(ctx, func(ctx context.Context) error {
//	    return agg.Publish(ctx, OrderPlaced{ID: id})
//	})
package unitofwork
