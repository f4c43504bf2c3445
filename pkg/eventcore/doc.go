/*
Package eventcore wires an in-process domain-event aggregator from settings.

# Overview

The subpackages can be used on their own:

  - event: events, the type resolver, subscriptions, dispatch and scopes
  - unitofwork: the unit of work that drives deferred and batched delivery
  - journal: durable recording of committed events
  - observability: slog helpers, OTel metrics, tracing and log bridging
  - config: YAML/JSON/env configuration and typed Settings
  - registry: the copy-on-write map behind the handler and type caches

Runtime assembles them from a config.Settings value.

# Basic Usage

	settings, err := config.LoadSettings("eventcore.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	rt, err := eventcore.New(ctx, settings)
	if err != nil {
	    log.Fatal(err)
	}
	defer rt.Close()

	event.Subscribe(rt.Aggregator(), func(ctx context.Context, e OrderPlaced) error {
	    return inventory.Reserve(ctx, e.OrderID)
	})

	err = rt.Run(ctx, func(ctx context.Context) error {
	    return rt.Publish(ctx, OrderPlaced{Occurred: event.NewOccurred(), OrderID: "o-1"})
	})

# Configuration

Settings are read from an optional file and then from EVENTCORE_* environment
variables:

	aggregator:
	  cache_workers: 2
	  cache_queue_size: 64
	observability:
	  metrics: true
	  tracing: true
	  log_level: info
	journal:
	  driver: sqlite        # none, memory, sqlite, postgres
	  dsn: ./events.db
	  stage: after_completion

With a journal configured, every event published inside a unit of work is
recorded when the unit reaches the configured stage.
*/
package eventcore
