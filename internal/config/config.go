package config

import (
	"fmt"
	"strings"
)

// Config represents the main Selia configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// LLM provider settings
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// MCP tool servers, one or more per worker role
	ToolServers []ToolServerConfig `json:"tool_servers" mapstructure:"tool_servers"`

	// Orchestration settings
	Orchestrator OrchestratorConfig `json:"orchestrator" mapstructure:"orchestrator"`

	// Long-term memory store
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Conversation history store (Qdrant)
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int `json:"port" mapstructure:"port"`
	ReadTimeoutSec int `json:"read_timeout_sec" mapstructure:"read_timeout_sec"`
}

// LLMConfig holds reasoning provider configuration
type LLMConfig struct {
	Provider       string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey         string  `json:"api_key" mapstructure:"api_key"`
	Model          string  `json:"model" mapstructure:"model"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	EmbeddingModel string  `json:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingDims  int     `json:"embedding_dims" mapstructure:"embedding_dims"`
}

// ToolServerConfig describes one MCP tool server connection.
// Endpoint is either an http(s) URL (SSE transport) or a command line
// (stdio transport), e.g. "selia-search" or "http://127.0.0.1:7861/sse".
type ToolServerConfig struct {
	Role     string `json:"role" mapstructure:"role"` // Researcher, Scrapper
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
}

// OrchestratorConfig holds state machine settings
type OrchestratorConfig struct {
	MaxIterations     int `json:"max_iterations" mapstructure:"max_iterations"`
	SessionTimeoutSec int `json:"session_timeout_sec" mapstructure:"session_timeout_sec"`
}

// MemoryConfig holds long-term memory store configuration
type MemoryConfig struct {
	DBPath           string `json:"db_path" mapstructure:"db_path"`
	PruneAfterDays   int    `json:"prune_after_days" mapstructure:"prune_after_days"`
	PruneSchedule    string `json:"prune_schedule" mapstructure:"prune_schedule"`
	DisableEmbedding bool   `json:"disable_embedding" mapstructure:"disable_embedding"`
}

// HistoryConfig holds conversation store configuration
type HistoryConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	UseTLS     bool   `json:"use_tls" mapstructure:"use_tls"`
	APIKey     string `json:"api_key" mapstructure:"api_key"`
	Collection string `json:"collection" mapstructure:"collection"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeoutSec: 30,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4.1-mini",
			Temperature:    0,
			MaxTokens:      4096,
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingDims:  768,
		},
		ToolServers: []ToolServerConfig{
			{Role: "Researcher", Endpoint: "http://127.0.0.1:7861/sse"},
			{Role: "Scrapper", Endpoint: "http://127.0.0.1:7860/sse"},
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:     3,
			SessionTimeoutSec: 120,
		},
		Memory: MemoryConfig{
			PruneAfterDays: 90,
			PruneSchedule:  "0 4 * * *",
		},
		History: HistoryConfig{
			Enabled:    true,
			Host:       "localhost",
			Port:       6334,
			Collection: "selia_conversations",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider: %s", c.LLM.Provider)
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required")
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got: %f", c.LLM.Temperature)
	}

	if c.Orchestrator.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got: %d", c.Orchestrator.MaxIterations)
	}

	if c.Orchestrator.SessionTimeoutSec <= 0 {
		return fmt.Errorf("session_timeout_sec must be positive, got: %d", c.Orchestrator.SessionTimeoutSec)
	}

	seen := make(map[string]bool)
	for i, ts := range c.ToolServers {
		if ts.Role == "" {
			return fmt.Errorf("tool server %d: role is required", i)
		}
		if ts.Endpoint == "" {
			return fmt.Errorf("tool server %d (%s): endpoint is required", i, ts.Role)
		}
		seen[ts.Role] = true
	}

	if c.History.Enabled {
		if c.History.Host == "" {
			return fmt.Errorf("history host is required when history is enabled")
		}
		if c.History.Collection == "" {
			return fmt.Errorf("history collection is required when history is enabled")
		}
	}

	return nil
}

// Roles returns the distinct worker roles declared by the tool server list,
// in first-appearance order.
func (c *Config) Roles() []string {
	var roles []string
	seen := make(map[string]bool)
	for _, ts := range c.ToolServers {
		if !seen[ts.Role] {
			seen[ts.Role] = true
			roles = append(roles, ts.Role)
		}
	}
	return roles
}

// Redacted returns a copy safe for logging (secrets masked).
func (c *Config) Redacted() Config {
	out := *c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = mask(out.LLM.APIKey)
	}
	if out.History.APIKey != "" {
		out.History.APIKey = mask(out.History.APIKey)
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
