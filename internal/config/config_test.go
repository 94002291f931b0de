package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins:
    - "http://dashboard.local:3000"
controller:
  host: nina.local
  port: 1999
  reconnect_delay: 2s
  end_time_mislabeled_utc: true
observatory:
  timezone: America/Denver
seeding:
  limit: 50
nats:
  enabled: true
  subject: obs.events
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"http://dashboard.local:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "nina.local", cfg.Controller.Host)
	assert.Equal(t, 1999, cfg.Controller.Port)
	assert.Equal(t, 2*time.Second, cfg.Controller.ReconnectDelay)
	assert.True(t, cfg.Controller.EndTimeMislabeledUTC)
	assert.Equal(t, 50, cfg.Seeding.Limit)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "obs.events", cfg.NATS.Subject)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Defaults survive for unspecified fields.
	assert.True(t, cfg.Seeding.Enabled)
	assert.Equal(t, "v2/socket", cfg.Controller.EventsPath)
	assert.Equal(t, 30*time.Second, cfg.Broadcast.HeartbeatInterval)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Denver", loc.String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, DefaultControllerPort, cfg.Controller.Port)
	assert.Equal(t, DefaultSeedLimit, cfg.Seeding.Limit)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, ":::not valid yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", "observatory:\n  timezone: Mars/Olympus_Mons\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"zero reconnect delay", "controller:\n  reconnect_delay: 0s\n"},
		{"negative seed limit", "seeding:\n  limit: -1\n"},
		{"empty nats subject", "nats:\n  enabled: true\n  subject: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OBSDASH_CONTROLLER_HOST": "10.0.0.5",
		"OBSDASH_CONTROLLER_PORT": "2000",
		"OBSDASH_TIMEZONE":        "UTC",
		"OBSDASH_NATS_URL":        "nats://broker:4222",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := defaultConfig()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "10.0.0.5", cfg.Controller.Host)
	assert.Equal(t, 2000, cfg.Controller.Port)
	assert.Equal(t, "UTC", cfg.Observatory.Timezone)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)

	env["OBSDASH_CONTROLLER_PORT"] = "not-a-port"
	assert.Error(t, defaultConfig().applyEnv(lookup))
}

func TestControllerURLs(t *testing.T) {
	c := ControllerConfig{Host: "nina", Port: 1888, EventsPath: "/v2/socket", HistoryPath: "v2/api/event-history"}
	assert.Equal(t, "ws://nina:1888/v2/socket", c.EventsURL())
	assert.Equal(t, "http://nina:1888/v2/api/event-history", c.HistoryURL())
}

func TestLocationLocal(t *testing.T) {
	cfg := defaultConfig()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, tok, 32)

	tok2, _ := GenerateToken()
	assert.NotEqual(t, tok, tok2)
}

func TestDiffNoChanges(t *testing.T) {
	assert.Empty(t, Diff(defaultConfig(), defaultConfig()))
}

func TestDiffDetectsChanges(t *testing.T) {
	old := defaultConfig()
	updated := defaultConfig()
	updated.Log.Level = "debug"
	updated.Seeding.Limit = 25
	updated.Controller.Host = "nina2"

	changes := Diff(old, updated)
	assert.Contains(t, changes, "log.level: info → debug")
	assert.Contains(t, changes, "seeding.limit: 100 → 25")
	assert.Contains(t, changes, "controller: localhost:1888 → nina2:1888 (restart required)")
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Controller, cfg.Controller)
	assert.Equal(t, def.Seeding, cfg.Seeding)
	assert.Equal(t, def.Broadcast, cfg.Broadcast)
	assert.Equal(t, def.NATS, cfg.NATS)
	assert.Equal(t, def.Metrics, cfg.Metrics)
	assert.Equal(t, def.System, cfg.System)
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
}
