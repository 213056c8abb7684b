package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mfadhlan/selia/internal/metrics"
	"github.com/mfadhlan/selia/pkg/agent"
)

// maxToolRounds bounds the tool-use loop inside one worker invocation.
const maxToolRounds = 5

// ToolCaller routes a tool invocation for a worker role.
// *mcppool.Pool satisfies this.
type ToolCaller interface {
	CallTool(ctx context.Context, role, name string, args map[string]interface{}) (string, error)
}

// Worker adapts one tool-bound reasoning unit into a state-transition
// node. A worker invocation always produces exactly one assistant
// message and increments the iteration counter, faults included.
type Worker struct {
	name     string
	provider agent.Provider
	model    string
	system   string
	tools    []agent.ToolDefinition
	caller   ToolCaller
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// WorkerConfig contains dependencies for a Worker
type WorkerConfig struct {
	Name     string
	Provider agent.Provider
	Model    string
	System   string // Optional, defaults per role
	Tools    []agent.ToolDefinition
	Caller   ToolCaller
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics // Optional
}

// NewWorker creates a worker node
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(cfg.Tools) == 0 {
		return nil, fmt.Errorf("worker %s requires at least one tool", cfg.Name)
	}
	if cfg.Caller == nil {
		return nil, fmt.Errorf("tool caller is required")
	}

	system := cfg.System
	if system == "" {
		system = WorkerSystemPrompt(cfg.Name)
	}

	return &Worker{
		name:     cfg.Name,
		provider: cfg.Provider,
		model:    cfg.Model,
		system:   system,
		tools:    cfg.Tools,
		caller:   cfg.Caller,
		logger:   cfg.Logger.With().Str("component", "worker").Str("worker", cfg.Name).Logger(),
		metrics:  cfg.Metrics,
	}, nil
}

// Name returns the node name
func (w *Worker) Name() string {
	return w.name
}

// Run executes one worker round. The returned patch always carries one
// assistant message attributed to this worker and the incremented
// iteration counter, then hands control back to the supervisor.
func (w *Worker) Run(ctx context.Context, state *State) (*Patch, error) {
	start := time.Now()

	content, err := w.execute(ctx, state)

	status := "ok"
	if err != nil {
		status = "error"
		w.logger.Error().Err(err).Msg("Worker round failed")
		content = fmt.Sprintf("%s could not complete the task: %v", w.name, err)
	}

	if w.metrics != nil {
		w.metrics.WorkerRunsTotal.WithLabelValues(w.name, status).Inc()
		w.metrics.WorkerRunDuration.WithLabelValues(w.name).Observe(time.Since(start).Seconds())
	}

	return &Patch{
		Messages: []Message{
			{Role: "assistant", Content: content, Name: w.name},
		},
		Next:       NodeSupervisor,
		Iterations: state.Iterations + 1,
	}, nil
}

// execute runs the tool-use loop for one round. Session context
// arrives as system messages in the state; providers only honor system
// text through the request's system prompt, so it is folded in after
// the persona.
func (w *Worker) execute(ctx context.Context, state *State) (string, error) {
	system := w.system
	msgs := make([]agent.Message, 0, len(state.Messages))
	for _, m := range state.Messages {
		if m.Role == "system" {
			system = system + "\n\n" + m.Content
			continue
		}
		msgs = append(msgs, toProviderMessage(m))
	}

	for round := 0; round < maxToolRounds; round++ {
		response, err := callProvider(ctx, w.provider, agent.Request{
			Model:        w.model,
			SystemPrompt: system,
			Messages:     msgs,
			Tools:        w.tools,
		}, w.logger)
		if err != nil {
			return "", err
		}

		if len(response.ToolCalls) == 0 {
			return response.Content, nil
		}

		msgs = append(msgs, agent.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, tc := range response.ToolCalls {
			result, err := w.caller.CallTool(ctx, w.name, tc.Name, tc.Parameters)
			status := "ok"
			if err != nil {
				status = "error"
				result = fmt.Sprintf("tool error: %v", err)
			}
			if w.metrics != nil {
				w.metrics.ToolCallsTotal.WithLabelValues(tc.Name, status).Inc()
			}

			w.logger.Debug().
				Str("tool", tc.Name).
				Str("status", status).
				Msg("Tool call finished")

			msgs = append(msgs, agent.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", fmt.Errorf("exceeded %d tool rounds without a final answer", maxToolRounds)
}

func toProviderMessage(m Message) agent.Message {
	role := m.Role
	if role == "human" {
		role = "user"
	}

	content := m.Content
	if m.Name != "" && role == "assistant" {
		content = fmt.Sprintf("[%s] %s", m.Name, m.Content)
	}

	return agent.Message{Role: role, Content: content}
}
