package config

import "fmt"

// Journal drivers understood by the runtime.
const (
	JournalNone     = "none"
	JournalMemory   = "memory"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// Settings is the typed runtime configuration.
// Values are resolved in order: DefaultSettings, config file, environment.
type Settings struct {
	// CacheWorkers is the number of goroutines populating the type-hierarchy cache.
	// Zero populates the cache inline on the publishing goroutine.
	CacheWorkers int `env:"EVENTCORE_CACHE_WORKERS"`

	// CacheQueueSize bounds pending cache population jobs; overflow is dropped.
	CacheQueueSize int `env:"EVENTCORE_CACHE_QUEUE_SIZE"`

	MetricsEnabled bool   `env:"EVENTCORE_METRICS"`
	TracingEnabled bool   `env:"EVENTCORE_TRACING"`
	OTelLogs       bool   `env:"EVENTCORE_OTEL_LOGS"`
	LogLevel       string `env:"EVENTCORE_LOG_LEVEL"`

	// JournalDriver selects the journal store: none, memory, sqlite or postgres.
	JournalDriver string `env:"EVENTCORE_JOURNAL_DRIVER"`
	JournalDSN    string `env:"EVENTCORE_JOURNAL_DSN"`

	// JournalStage is the lifecycle stage journal entries are written at.
	JournalStage string `env:"EVENTCORE_JOURNAL_STAGE"`
}

// DefaultSettings provides reasonable defaults.
func DefaultSettings() Settings {
	return Settings{
		CacheWorkers:   2,
		CacheQueueSize: 64,
		LogLevel:       "info",
		JournalDriver:  JournalNone,
		JournalStage:   "after_completion",
	}
}

// SettingsFrom overlays the sections of cfg onto DefaultSettings.
//
// Recognized layout:
//
//	aggregator:
//	  cache_workers: 2
//	  cache_queue_size: 64
//	observability:
//	  metrics: true
//	  tracing: true
//	  otel_logs: false
//	  log_level: debug
//	journal:
//	  driver: sqlite
//	  dsn: ./events.db
//	  stage: after_completion
func SettingsFrom(cfg Config) Settings {
	s := DefaultSettings()

	s.CacheWorkers = cfg.Int("aggregator.cache_workers", s.CacheWorkers)
	s.CacheQueueSize = cfg.Int("aggregator.cache_queue_size", s.CacheQueueSize)

	s.MetricsEnabled = cfg.Bool("observability.metrics", s.MetricsEnabled)
	s.TracingEnabled = cfg.Bool("observability.tracing", s.TracingEnabled)
	s.OTelLogs = cfg.Bool("observability.otel_logs", s.OTelLogs)
	s.LogLevel = cfg.String("observability.log_level", s.LogLevel)

	s.JournalDriver = cfg.String("journal.driver", s.JournalDriver)
	s.JournalDSN = cfg.String("journal.dsn", s.JournalDSN)
	s.JournalStage = cfg.String("journal.stage", s.JournalStage)

	return s
}

// LoadSettings resolves Settings from an optional file and the environment.
// An empty path skips the file layer.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		cfg, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		s = SettingsFrom(cfg)
	}
	if err := ParseEnv(&s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks Settings for values the runtime cannot honor.
func (s Settings) Validate() error {
	if s.CacheWorkers < 0 {
		return fmt.Errorf("cache workers must not be negative: %d", s.CacheWorkers)
	}
	if s.CacheQueueSize < 0 {
		return fmt.Errorf("cache queue size must not be negative: %d", s.CacheQueueSize)
	}
	switch s.JournalDriver {
	case "", JournalNone, JournalMemory:
	case JournalSQLite, JournalPostgres:
		if s.JournalDSN == "" {
			return fmt.Errorf("journal driver %s requires a dsn", s.JournalDriver)
		}
	default:
		return fmt.Errorf("unknown journal driver: %s", s.JournalDriver)
	}
	return nil
}
