package mcppool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mfadhlan/selia/pkg/agent"
)

// ErrNoTools is returned when a role has no connected tool server
// or none of its servers exposed any tools.
var ErrNoTools = errors.New("no tools available for role")

// ServerConfig describes one tool server to connect to
type ServerConfig struct {
	Role     string
	Endpoint string
}

// Pool manages a set of MCP tool server connections, keyed by the
// worker role each server backs. Connections are established in the
// configured order and torn down in reverse.
type Pool struct {
	mu      sync.Mutex
	clients []*Client
	closed  bool
	logger  zerolog.Logger
}

// PoolConfig contains dependencies for a Pool
type PoolConfig struct {
	Servers []ServerConfig
	Dialer  Dialer // Optional, defaults to transport by endpoint
	Logger  zerolog.Logger
}

// NewPool creates a pool and connects to each configured server. A
// server that fails to connect is logged and skipped, it never blocks
// the rest of the pool.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("at least one tool server is required")
	}

	p := &Pool{
		logger: cfg.Logger.With().Str("component", "mcppool").Logger(),
	}

	for _, srv := range cfg.Servers {
		client, err := NewClient(ClientConfig{
			Role:     srv.Role,
			Endpoint: srv.Endpoint,
			Dialer:   cfg.Dialer,
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, err
		}

		if err := client.Connect(ctx); err != nil {
			p.logger.Warn().Err(err).
				Str("role", srv.Role).
				Str("endpoint", srv.Endpoint).
				Msg("Skipping unreachable tool server")
			continue
		}

		if err := client.LoadTools(ctx); err != nil {
			p.logger.Warn().Err(err).Str("role", srv.Role).Msg("Tool listing failed")
		}

		p.clients = append(p.clients, client)
	}

	p.logger.Info().
		Int("connected", len(p.clients)).
		Int("configured", len(cfg.Servers)).
		Msg("Tool pool ready")

	return p, nil
}

// Clients returns the connected clients in connection order
func (p *Pool) Clients() []*Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Client(nil), p.clients...)
}

// ToolsForRole returns the union of tool definitions across all
// connected servers for the role. Returns ErrNoTools when the role
// has no usable tools.
func (p *Pool) ToolsForRole(role string) ([]agent.ToolDefinition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var tools []agent.ToolDefinition
	seen := map[string]bool{}
	for _, c := range p.clients {
		if c.role != role {
			continue
		}
		for _, t := range c.Tools() {
			if seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			tools = append(tools, t)
		}
	}

	if len(tools) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTools, role)
	}

	return tools, nil
}

// CallTool routes a tool invocation to the first server for the role
// that exposes the named tool.
func (p *Pool) CallTool(ctx context.Context, role, name string, args map[string]interface{}) (string, error) {
	p.mu.Lock()
	var target *Client
	for _, c := range p.clients {
		if c.role == role && c.HasTool(name) {
			target = c
			break
		}
	}
	p.mu.Unlock()

	if target == nil {
		return "", fmt.Errorf("no server for role %s exposes tool %s", role, name)
	}

	return target.CallTool(ctx, name, args)
}

// Close tears down all connections in reverse connection order.
// Idempotent, later calls are no-ops.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for i := len(p.clients) - 1; i >= 0; i-- {
		if err := p.clients[i].Close(); err != nil {
			p.logger.Error().Err(err).Str("role", p.clients[i].role).Msg("Failed to close tool client")
			errs = append(errs, err)
		}
	}
	p.clients = nil

	return errors.Join(errs...)
}
