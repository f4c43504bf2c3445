// Package journal records published events to a durable store.
//
// Attach subscribes a catch-all batched handler to an aggregator or scope.
// Events published inside a unit of work accumulate with the unit and are
// appended together when its AfterCompletion stage fires, so a failed unit
// leaves no trace in the journal.
//
// # Stores
//
//   - MemoryStore for tests
//   - SQLiteStore (modernc.org/sqlite through sqlx) for single-process use
//   - PostgresStore (pgx pool, queries built with goqu) for shared deployments
//
// # Usage
//
//	store, err := journal.NewSQLiteStore("./events.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	detach, err := journal.Attach(agg, store)
//	if err != nil {
//	    return err
//	}
//	defer detach()
//
//	err = unitofwork.Run(ctx, func(ctx context.Context) error {
//	    return agg.Publish(ctx, OrderPlaced{...})
//	})
//
// Payloads are the JSON encoding of the event. Entry.Decode restores them.
// Every store records an empty payload as JSON null.
package journal
