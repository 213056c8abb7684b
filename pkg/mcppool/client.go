package mcppool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/mfadhlan/selia/pkg/agent"
)

// session is the subset of the MCP client session the pool uses.
type session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer establishes an MCP session against an endpoint.
type Dialer func(ctx context.Context, endpoint string) (session, error)

// defaultDialer connects using the MCP SDK. An http(s) endpoint is
// dialed over SSE, anything else is treated as a command line and run
// as a stdio subprocess.
func defaultDialer(ctx context.Context, endpoint string) (session, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "selia",
		Version: "1.0.0",
	}, nil)

	var transport mcp.Transport
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		transport = &mcp.SSEClientTransport{Endpoint: endpoint}
	} else {
		parts := strings.Fields(endpoint)
		if len(parts) == 0 {
			return nil, fmt.Errorf("empty endpoint")
		}
		transport = &mcp.CommandTransport{Command: exec.Command(parts[0], parts[1:]...)}
	}

	sess, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	return sess, nil
}

// Client wraps one MCP tool server connection for a worker role.
type Client struct {
	role     string
	endpoint string
	dial     Dialer
	session  session
	tools    []agent.ToolDefinition
	logger   zerolog.Logger
}

// ClientConfig contains dependencies for a Client
type ClientConfig struct {
	Role     string
	Endpoint string
	Dialer   Dialer // Optional, defaults to transport by endpoint
	Logger   zerolog.Logger
}

// NewClient creates a client for one tool server
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Role == "" {
		return nil, fmt.Errorf("role is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}

	dial := cfg.Dialer
	if dial == nil {
		dial = defaultDialer
	}

	return &Client{
		role:     cfg.Role,
		endpoint: cfg.Endpoint,
		dial:     dial,
		logger:   cfg.Logger.With().Str("component", "mcppool").Str("role", cfg.Role).Logger(),
	}, nil
}

// Role returns the worker role this client serves
func (c *Client) Role() string {
	return c.role
}

// Endpoint returns the server endpoint
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Connect establishes the MCP session
func (c *Client) Connect(ctx context.Context) error {
	sess, err := c.dial(ctx, c.endpoint)
	if err != nil {
		return err
	}

	c.session = sess
	c.logger.Info().Str("endpoint", c.endpoint).Msg("Connected to tool server")
	return nil
}

// LoadTools fetches the server's tool list and converts it to provider
// tool definitions. A listing failure leaves the client connected with
// an empty tool set.
func (c *Client) LoadTools(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("client not connected")
	}

	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		c.tools = nil
		c.logger.Warn().Err(err).Msg("Failed to list tools, continuing with empty set")
		return nil
	}

	tools := make([]agent.ToolDefinition, 0, len(result.Tools))
	for _, t := range result.Tools {
		def := agent.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
		}

		if t.InputSchema != nil {
			raw, err := json.Marshal(t.InputSchema)
			if err == nil {
				var schema map[string]interface{}
				if err := json.Unmarshal(raw, &schema); err == nil {
					def.InputSchema = schema
				}
			}
		}
		if def.InputSchema == nil {
			def.InputSchema = map[string]interface{}{"type": "object"}
		}

		tools = append(tools, def)
	}

	c.tools = tools
	c.logger.Info().Int("count", len(tools)).Msg("Loaded tools")
	return nil
}

// Tools returns the loaded tool definitions
func (c *Client) Tools() []agent.ToolDefinition {
	return c.tools
}

// HasTool reports whether the server exposes the named tool
func (c *Client) HasTool(name string) bool {
	for _, t := range c.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CallTool invokes a tool and returns its text output
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("client not connected")
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", name, err)
	}

	text := contentText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s returned an error: %s", name, text)
	}

	return text, nil
}

// Close shuts down the session. Safe to call multiple times.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}

	err := c.session.Close()
	c.session = nil
	if err != nil {
		return fmt.Errorf("failed to close client for %s: %w", c.role, err)
	}

	c.logger.Info().Msg("Closed tool server connection")
	return nil
}

func contentText(content []mcp.Content) string {
	var sb strings.Builder
	for _, item := range content {
		if tc, ok := item.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
