package daemon

import (
	"path/filepath"
	"testing"

	"github.com/mfadhlan/selia/internal/config"
	"github.com/mfadhlan/selia/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "test-key"
	cfg.DataDir = t.TempDir()
	cfg.Memory.DBPath = filepath.Join(cfg.DataDir, "memory.db")
	cfg.Memory.DisableEmbedding = true
	cfg.History.Enabled = false
	// Nothing listens on port 1, connections fail immediately.
	cfg.ToolServers = []config.ToolServerConfig{
		{Role: "Researcher", Endpoint: "http://127.0.0.1:1/sse"},
	}
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	return log
}

func TestNew(t *testing.T) {
	t.Run("should require config", func(t *testing.T) {
		_, err := New(nil, testLogger(t))
		assert.ErrorContains(t, err, "config is required")
	})

	t.Run("should require logger", func(t *testing.T) {
		_, err := New(testConfig(t), nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("should reject invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LLM.APIKey = ""

		_, err := New(cfg, testLogger(t))
		assert.ErrorContains(t, err, "invalid config")
	})

	t.Run("should fail when no tool server is reachable", func(t *testing.T) {
		_, err := New(testConfig(t), testLogger(t))
		require.Error(t, err)
		assert.ErrorContains(t, err, "no workers available")
	})
}

func TestStatus(t *testing.T) {
	t.Run("should report not running before start", func(t *testing.T) {
		d := &Daemon{workers: []string{"Researcher"}}

		status := d.Status()
		assert.False(t, status.Running)
		assert.Zero(t, status.Uptime)
		assert.Equal(t, []string{"Researcher"}, status.Workers)
	})
}
