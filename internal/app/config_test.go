package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_Defaults(t *testing.T) {
	c, err := ParseConfig([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.Server.HttpPort)
	assert.Equal(t, "sqlite", c.Database.Type)
	assert.Equal(t, CacheBackendMemory, c.Cache.Backend)
	assert.Equal(t, "log", c.Events.Publisher)
	assert.Equal(t, 20*time.Minute, c.GetSlidingExpiration())
	assert.True(t, c.Note.SerializeSummaryWrites)
	assert.False(t, c.Note.LenientDelete)
	assert.Equal(t, 60*time.Second, c.GetContextTimeout())
	assert.Equal(t, -1, c.Nats.MaxReconnects)

	nc := c.GetNoteServiceConfig()
	assert.Equal(t, 20*time.Minute, nc.SlidingExpiration)
	assert.True(t, nc.SerializeSummaryWrites)
	assert.Equal(t, 10*time.Second, nc.BackendTimeout)
}

func TestParseConfig_ExplicitFalseSurvives(t *testing.T) {
	c, err := ParseConfig([]byte(`
log:
  production: false
note:
  serialize-summary-writes: false
  lenient-delete: true
tracer:
  enabled: false
`))
	require.NoError(t, err)

	assert.False(t, c.Log.Production)
	assert.False(t, c.Note.SerializeSummaryWrites)
	assert.True(t, c.Note.LenientDelete)
	assert.False(t, c.Tracer.Enabled)
}

func TestParseConfig_LimiterRuleDefaults(t *testing.T) {
	c, err := ParseConfig([]byte(`
limiter:
  rules:
    - key: /api/notes/:username
    - key: /api/health
      fill-interval: 1m
      capacity: 5
      quantum: 1
`))
	require.NoError(t, err)

	rules := c.GetLimiterRules()
	require.Len(t, rules, 2)
	assert.Equal(t, time.Second, rules[0].FillInterval)
	assert.EqualValues(t, 100, rules[0].Capacity)
	assert.Equal(t, time.Minute, rules[1].FillInterval)
	assert.EqualValues(t, 5, rules[1].Capacity)
	assert.EqualValues(t, 1, rules[1].Quantum)
}

func TestParseConfig_Validation(t *testing.T) {
	_, err := ParseConfig([]byte("cache:\n  backend: nats\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("events:\n  publisher: kafka\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("cache:\n  sliding-expiration: soon\n"))
	assert.Error(t, err)

	c, err := ParseConfig([]byte("nats:\n  enabled: true\ncache:\n  backend: nats\n  sliding-expiration: 1d\n"))
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, c.GetSlidingExpiration())
}

func TestLoadConfigAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http-port: \":8080\"\n"), 0644))

	c, realpath, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, realpath)
	assert.Equal(t, ":8080", c.Server.HttpPort)

	c.Cache.SlidingExpiration = "5m"
	require.NoError(t, c.Save())

	again, _, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, again.GetSlidingExpiration())
	assert.Equal(t, ":8080", again.Server.HttpPort)

	_, _, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
