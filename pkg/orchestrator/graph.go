package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrGraphNotReady is returned when a session is started before the
// graph has been built.
var ErrGraphNotReady = errors.New("orchestration graph not ready")

// Node is one step in the orchestration graph
type Node interface {
	Name() string
	Run(ctx context.Context, state *State) (*Patch, error)
}

// Graph drives one session from its initial state to the terminal
// state, alternating between the supervisor and the worker it selects.
type Graph struct {
	supervisor Node
	workers    map[string]Node
	logger     zerolog.Logger
}

// GraphConfig contains dependencies for a Graph
type GraphConfig struct {
	Supervisor Node
	Workers    []Node
	Logger     zerolog.Logger
}

// NewGraph creates the orchestration graph
func NewGraph(cfg GraphConfig) (*Graph, error) {
	if cfg.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}

	workers := make(map[string]Node, len(cfg.Workers))
	for _, w := range cfg.Workers {
		if _, dup := workers[w.Name()]; dup {
			return nil, fmt.Errorf("duplicate worker: %s", w.Name())
		}
		workers[w.Name()] = w
	}

	return &Graph{
		supervisor: cfg.Supervisor,
		workers:    workers,
		logger:     cfg.Logger.With().Str("component", "graph").Logger(),
	}, nil
}

// Workers returns the registered worker names
func (g *Graph) Workers() []string {
	names := make([]string, 0, len(g.workers))
	for name := range g.workers {
		names = append(names, name)
	}
	return names
}

// Run advances the state machine until the terminal state. The
// supervisor runs first; each worker round hands control back to it.
// The iteration cap guarantees termination.
func (g *Graph) Run(ctx context.Context, state *State) error {
	if g == nil {
		return ErrGraphNotReady
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		patch, err := g.supervisor.Run(ctx, state)
		if err != nil {
			return fmt.Errorf("supervisor round failed: %w", err)
		}
		state.Apply(patch)

		if state.TaskCompleted || state.Next == RouteFinish {
			g.logger.Info().
				Int("iterations", state.Iterations).
				Int("messages", len(state.Messages)).
				Msg("Session reached terminal state")
			return nil
		}

		worker, ok := g.workers[state.Next]
		if !ok {
			return fmt.Errorf("supervisor routed to unknown worker: %s", state.Next)
		}

		g.logger.Debug().Str("worker", state.Next).Int("iteration", state.Iterations+1).Msg("Dispatching worker")

		patch, err = worker.Run(ctx, state)
		if err != nil {
			return fmt.Errorf("worker %s round failed: %w", worker.Name(), err)
		}
		state.Apply(patch)
	}
}
