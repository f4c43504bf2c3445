package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/randalmurphal/eventcore/pkg/eventcore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := config.DefaultSettings()

	assert.Equal(t, 2, s.CacheWorkers)
	assert.Equal(t, 64, s.CacheQueueSize)
	assert.Equal(t, config.JournalNone, s.JournalDriver)
	assert.Equal(t, "after_completion", s.JournalStage)
	assert.NoError(t, s.Validate())
}

func TestSettingsFrom(t *testing.T) {
	cfg := config.New(map[string]any{
		"aggregator": map[string]any{"cache_workers": 0},
		"observability": map[string]any{
			"metrics":   true,
			"log_level": "debug",
		},
		"journal": map[string]any{
			"driver": "sqlite",
			"dsn":    "file.db",
			"stage":  "finished",
		},
	})

	s := config.SettingsFrom(cfg)

	assert.Equal(t, 0, s.CacheWorkers)
	assert.Equal(t, 64, s.CacheQueueSize, "unset keys keep defaults")
	assert.True(t, s.MetricsEnabled)
	assert.False(t, s.TracingEnabled)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, config.JournalSQLite, s.JournalDriver)
	assert.Equal(t, "file.db", s.JournalDSN)
	assert.Equal(t, "finished", s.JournalStage)
}

func TestLoadSettingsEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
aggregator:
  cache_workers: 3
journal:
  driver: memory
`), 0o600))

	t.Setenv("EVENTCORE_CACHE_WORKERS", "7")
	t.Setenv("EVENTCORE_TRACING", "true")

	s, err := config.LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 7, s.CacheWorkers)
	assert.True(t, s.TracingEnabled)
	assert.Equal(t, config.JournalMemory, s.JournalDriver, "file value survives when env is unset")
}

func TestLoadSettingsWithoutFile(t *testing.T) {
	t.Setenv("EVENTCORE_JOURNAL_DRIVER", "postgres")
	t.Setenv("EVENTCORE_JOURNAL_DSN", "postgres://localhost/events")

	s, err := config.LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, config.JournalPostgres, s.JournalDriver)
	assert.Equal(t, "postgres://localhost/events", s.JournalDSN)
}

func TestLoadSettingsErrors(t *testing.T) {
	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("EVENTCORE_CACHE_WORKERS", "many")
		_, err := config.LoadSettings("")
		assert.ErrorContains(t, err, "parse env")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid settings", func(t *testing.T) {
		t.Setenv("EVENTCORE_JOURNAL_DRIVER", "sqlite")
		_, err := config.LoadSettings("")
		assert.ErrorContains(t, err, "requires a dsn")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Settings)
		wantErr string
	}{
		{"negative workers", func(s *config.Settings) { s.CacheWorkers = -1 }, "cache workers"},
		{"negative queue", func(s *config.Settings) { s.CacheQueueSize = -1 }, "cache queue size"},
		{"unknown driver", func(s *config.Settings) { s.JournalDriver = "redis" }, "unknown journal driver"},
		{"postgres without dsn", func(s *config.Settings) { s.JournalDriver = config.JournalPostgres }, "requires a dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			tt.mutate(&s)
			assert.ErrorContains(t, s.Validate(), tt.wantErr)
		})
	}
}
