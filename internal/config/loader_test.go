package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	t.Run("should return defaults when file does not exist", func(t *testing.T) {
		loader := NewLoader(filepath.Join(t.TempDir(), "missing.json"))

		cfg, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.Memory.DBPath)
	})

	t.Run("should load values from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "selia.json")
		content := `{
			"server": {"port": 9999},
			"llm": {"provider": "anthropic", "api_key": "sk-file", "model": "claude-sonnet-4-20250514"},
			"orchestrator": {"max_iterations": 5}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)

		assert.Equal(t, 9999, cfg.Server.Port)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
		assert.Equal(t, 5, cfg.Orchestrator.MaxIterations)
		// Untouched sections keep defaults
		assert.Equal(t, "selia_conversations", cfg.History.Collection)
	})

	t.Run("should let env override api key", func(t *testing.T) {
		t.Setenv("SELIA_LLM_API_KEY", "sk-env")

		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "selia.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"llm": {"api_key": "sk-file"}}`), 0600))

		cfg, err := NewLoader(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	})

	t.Run("should error on malformed json", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "selia.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0600))

		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}
