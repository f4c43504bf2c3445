/*
Package config resolves runtime settings for the event core.

# Overview

Config wraps a map[string]any decoded from YAML or JSON and offers typed
accessors that fall back to a default on missing keys or type mismatches.
Settings is the typed view the runtime consumes. It is layered:

 1. DefaultSettings
 2. a config file, if one is given (see SettingsFrom for the layout)
 3. EVENTCORE_* environment variables

# Basic Usage

	s, err := config.LoadSettings("eventcore.yaml")
	if err != nil {
	    return err
	}
	rt, err := eventcore.New(ctx, s)

Environment variables override file values only when they are set:

	EVENTCORE_CACHE_WORKERS=4
	EVENTCORE_METRICS=true
	EVENTCORE_JOURNAL_DRIVER=sqlite
	EVENTCORE_JOURNAL_DSN=./events.db

# Raw Access

Sections can be read directly when an embedding application keeps its own
keys next to the event core's:

	cfg, _ := config.FromFile("app.yaml")
	workers := cfg.Int("aggregator.cache_workers", 2)
*/
package config
