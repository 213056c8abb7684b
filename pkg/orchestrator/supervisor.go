package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mfadhlan/selia/internal/metrics"
	"github.com/mfadhlan/selia/pkg/agent"
)

// Supervisor is the per-round decision step. It asks the reasoning
// provider which worker should act next and applies the iteration cap.
type Supervisor struct {
	provider agent.Provider
	model    string
	workers  []string
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// SupervisorConfig contains dependencies for a Supervisor
type SupervisorConfig struct {
	Provider agent.Provider
	Model    string
	Workers  []string
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics // Optional
}

// NewSupervisor creates a supervisor decision step
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(cfg.Workers) == 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}

	return &Supervisor{
		provider: cfg.Provider,
		model:    cfg.Model,
		workers:  cfg.Workers,
		logger:   cfg.Logger.With().Str("component", "supervisor").Logger(),
		metrics:  cfg.Metrics,
	}, nil
}

// Name returns the node name
func (s *Supervisor) Name() string {
	return NodeSupervisor
}

// Run produces the routing patch for one round. Provider faults and
// illegal decisions fall back to FINISH rather than failing the run.
func (s *Supervisor) Run(ctx context.Context, state *State) (*Patch, error) {
	decision := s.decide(ctx, state)

	if decision.Next != RouteFinish && state.Iterations >= state.MaxIterations {
		s.logger.Warn().
			Str("wanted", decision.Next).
			Int("iterations", state.Iterations).
			Int("max_iterations", state.MaxIterations).
			Msg("Iteration cap reached, forcing FINISH")
		decision.Next = RouteFinish
		if s.metrics != nil {
			s.metrics.IterationCapOverrides.Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.SupervisorDecisionsTotal.WithLabelValues(decision.Next).Inc()
	}

	s.logger.Debug().
		Str("next", decision.Next).
		Str("reasoning", decision.Reasoning).
		Bool("direct", decision.Response != "").
		Msg("Routing decision")

	patch := &Patch{
		Next:       decision.Next,
		Iterations: state.Iterations,
	}

	if decision.Next == RouteFinish {
		patch.TaskCompleted = true
		if decision.Response != "" {
			patch.Messages = append(patch.Messages, Message{
				Role:    "assistant",
				Content: decision.Response,
				Name:    NodeSupervisor,
			})
			patch.DirectResponse = decision.Response
			patch.HasDirect = true
		}
	}

	return patch, nil
}

// decide runs one provider call and validates the result. Any fault
// yields a safe FINISH decision.
func (s *Supervisor) decide(ctx context.Context, state *State) *Decision {
	response, err := callProvider(ctx, s.provider, agent.Request{
		Model:        s.model,
		SystemPrompt: buildSupervisorSystem(s.workers),
		Messages: []agent.Message{
			{Role: "user", Content: buildSupervisorRequest(state, s.workers)},
		},
	}, s.logger)
	if err != nil {
		s.logger.Error().Err(err).Msg("Decision call failed, falling back to FINISH")
		return &Decision{Next: RouteFinish, Reasoning: "decision step failed"}
	}

	decision, err := ParseDecision(response.Content, s.workers)
	if err != nil {
		s.logger.Error().Err(err).Str("raw", response.Content).Msg("Unusable decision, falling back to FINISH")
		return &Decision{Next: RouteFinish, Reasoning: "decision step returned an unusable option"}
	}

	return decision
}
