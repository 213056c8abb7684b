package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfadhlan/selia/pkg/agent"
)

// scriptedProvider returns canned responses in order, repeating the
// last one once the script is exhausted.
type scriptedProvider struct {
	responses []agent.Response
	errs      []error
	calls     int
	requests  []agent.Request
}

func (p *scriptedProvider) Call(ctx context.Context, request agent.Request) (*agent.Response, error) {
	i := p.calls
	p.calls++
	p.requests = append(p.requests, request)
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	r := p.responses[i]
	return &r, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

type fakeCaller struct {
	result string
	err    error
	calls  []string
}

func (f *fakeCaller) CallTool(ctx context.Context, role, name string, args map[string]interface{}) (string, error) {
	f.calls = append(f.calls, name)
	return f.result, f.err
}

func decisionJSON(next, response string) agent.Response {
	if response != "" {
		return agent.Response{Content: fmt.Sprintf(`{"next": %q, "reasoning": "done", "response": %q}`, next, response)}
	}
	return agent.Response{Content: fmt.Sprintf(`{"next": %q, "reasoning": "routing"}`, next)}
}

func testWorker(t *testing.T, name string, provider agent.Provider, caller ToolCaller) *Worker {
	t.Helper()
	w, err := NewWorker(WorkerConfig{
		Name:     name,
		Provider: provider,
		Model:    "test-model",
		Tools:    []agent.ToolDefinition{{Name: "web_search", InputSchema: map[string]interface{}{"type": "object"}}},
		Caller:   caller,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return w
}

func testSupervisor(t *testing.T, provider agent.Provider, workers []string) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(SupervisorConfig{
		Provider: provider,
		Model:    "test-model",
		Workers:  workers,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func TestGraph_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("should force FINISH at the iteration cap", func(t *testing.T) {
		// Supervisor never stops asking for the Researcher.
		supProvider := &scriptedProvider{responses: []agent.Response{decisionJSON("Researcher", "")}}
		workerProvider := &scriptedProvider{responses: []agent.Response{{Content: "Go 1.24 was released in February 2025."}}}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("When was Go 1.24 released?", 1)
		require.NoError(t, graph.Run(ctx, state))

		assert.True(t, state.TaskCompleted)
		assert.Equal(t, 1, state.Iterations)
		assert.Equal(t, 1, workerProvider.calls)
		assert.Equal(t, "Go 1.24 was released in February 2025.", ExtractAnswer(state, []string{"Researcher"}))
	})

	t.Run("should answer directly without invoking workers", func(t *testing.T) {
		supProvider := &scriptedProvider{responses: []agent.Response{decisionJSON(RouteFinish, "Hello!")}}
		workerProvider := &scriptedProvider{responses: []agent.Response{{Content: "unused"}}}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("Hi there", 3)
		require.NoError(t, graph.Run(ctx, state))

		assert.True(t, state.TaskCompleted)
		assert.Equal(t, 0, state.Iterations)
		assert.Equal(t, 0, workerProvider.calls)
		assert.Equal(t, "Hello!", ExtractAnswer(state, []string{"Researcher"}))
	})

	t.Run("should absorb a worker fault and still count the round", func(t *testing.T) {
		supProvider := &scriptedProvider{responses: []agent.Response{
			decisionJSON("Researcher", ""),
			decisionJSON(RouteFinish, ""),
		}}
		workerProvider := &scriptedProvider{
			responses: []agent.Response{{}},
			errs:      []error{errors.New("invalid api key")},
		}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("What happened?", 3)
		require.NoError(t, graph.Run(ctx, state))

		assert.Equal(t, 1, state.Iterations)
		// A permanent fault is not retried.
		assert.Equal(t, 1, workerProvider.calls)

		var workerMsgs []Message
		for _, m := range state.Messages {
			if m.Name == "Researcher" {
				workerMsgs = append(workerMsgs, m)
			}
		}
		require.Len(t, workerMsgs, 1)
		assert.Contains(t, workerMsgs[0].Content, "invalid api key")
	})

	t.Run("should retry a transient worker provider fault", func(t *testing.T) {
		supProvider := &scriptedProvider{responses: []agent.Response{
			decisionJSON("Researcher", ""),
			decisionJSON(RouteFinish, ""),
		}}
		workerProvider := &scriptedProvider{
			responses: []agent.Response{{}, {Content: "recovered answer"}},
			errs:      []error{errors.New("429 rate limit exceeded"), nil},
		}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("flaky provider", 3)
		require.NoError(t, graph.Run(ctx, state))

		assert.Equal(t, 2, workerProvider.calls)
		assert.Equal(t, "recovered answer", ExtractAnswer(state, []string{"Researcher"}))
	})

	t.Run("should retry a transient supervisor fault before deciding", func(t *testing.T) {
		supProvider := &scriptedProvider{
			responses: []agent.Response{{}, decisionJSON(RouteFinish, "Hello!")},
			errs:      []error{errors.New("502 bad gateway"), nil},
		}
		workerProvider := &scriptedProvider{responses: []agent.Response{{Content: "unused"}}}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("hi", 3)
		require.NoError(t, graph.Run(ctx, state))

		assert.Equal(t, 2, supProvider.calls)
		assert.Equal(t, "Hello!", ExtractAnswer(state, []string{"Researcher"}))
	})

	t.Run("should deliver session context to the worker as system prompt", func(t *testing.T) {
		supProvider := &scriptedProvider{responses: []agent.Response{
			decisionJSON("Researcher", ""),
			decisionJSON(RouteFinish, ""),
		}}
		workerProvider := &scriptedProvider{responses: []agent.Response{{Content: "noted"}}}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := &State{MaxIterations: 3}
		state.Messages = append(state.Messages,
			Message{Role: "system", Content: "Known facts about this user:\n- prefers metric units"},
			Message{Role: "human", Content: "how tall is everest"},
		)
		require.NoError(t, graph.Run(ctx, state))

		require.Len(t, workerProvider.requests, 1)
		req := workerProvider.requests[0]
		assert.Contains(t, req.SystemPrompt, "prefers metric units")
		for _, m := range req.Messages {
			assert.NotEqual(t, "system", m.Role)
		}
	})

	t.Run("should finish when the supervisor decision is unusable", func(t *testing.T) {
		supProvider := &scriptedProvider{responses: []agent.Response{{Content: "I refuse to emit JSON"}}}
		workerProvider := &scriptedProvider{responses: []agent.Response{{Content: "unused"}}}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("anything", 3)
		require.NoError(t, graph.Run(ctx, state))

		assert.True(t, state.TaskCompleted)
		assert.Equal(t, 0, workerProvider.calls)
	})

	t.Run("should run the worker tool loop", func(t *testing.T) {
		supProvider := &scriptedProvider{responses: []agent.Response{
			decisionJSON("Researcher", ""),
			decisionJSON(RouteFinish, ""),
		}}
		workerProvider := &scriptedProvider{responses: []agent.Response{
			{ToolCalls: []agent.ToolCall{{ID: "call_1", Name: "web_search", Parameters: map[string]interface{}{"query": "go release"}}}},
			{Content: "Found it via search."},
		}}
		caller := &fakeCaller{result: "search results"}

		sup := testSupervisor(t, supProvider, []string{"Researcher"})
		worker := testWorker(t, "Researcher", workerProvider, caller)

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("search something", 3)
		require.NoError(t, graph.Run(ctx, state))

		assert.Equal(t, []string{"web_search"}, caller.calls)
		assert.Equal(t, "Found it via search.", ExtractAnswer(state, []string{"Researcher"}))
	})

	t.Run("should only append messages, never rewrite them", func(t *testing.T) {
		supProvider := &scriptedProvider{responses: []agent.Response{
			decisionJSON("Researcher", ""),
			decisionJSON("Scrapper", ""),
			decisionJSON(RouteFinish, ""),
		}}
		researcherProvider := &scriptedProvider{responses: []agent.Response{{Content: "research notes"}}}
		scrapperProvider := &scriptedProvider{responses: []agent.Response{{Content: "scraped content"}}}

		sup := testSupervisor(t, supProvider, []string{"Researcher", "Scrapper"})
		researcher := testWorker(t, "Researcher", researcherProvider, &fakeCaller{})
		scrapper := testWorker(t, "Scrapper", scrapperProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{researcher, scrapper}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		state := NewState("do both", 5)
		require.NoError(t, graph.Run(ctx, state))

		require.Len(t, state.Messages, 3)
		assert.Equal(t, "human", state.Messages[0].Role)
		assert.Equal(t, "do both", state.Messages[0].Content)
		assert.Equal(t, "Researcher", state.Messages[1].Name)
		assert.Equal(t, "Scrapper", state.Messages[2].Name)
		assert.Equal(t, 2, state.Iterations)
		assert.Equal(t, "scraped content", ExtractAnswer(state, []string{"Researcher", "Scrapper"}))
	})

	t.Run("should fail on a route to an unknown worker", func(t *testing.T) {
		// The supervisor validates routes against its own worker list,
		// so this only happens when graph and supervisor disagree.
		supProvider := &scriptedProvider{responses: []agent.Response{decisionJSON("Scrapper", "")}}
		workerProvider := &scriptedProvider{responses: []agent.Response{{Content: "unused"}}}

		sup := testSupervisor(t, supProvider, []string{"Researcher", "Scrapper"})
		worker := testWorker(t, "Researcher", workerProvider, &fakeCaller{})

		graph, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{worker}, Logger: zerolog.Nop()})
		require.NoError(t, err)

		err = graph.Run(ctx, NewState("hm", 3))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown worker")
	})

	t.Run("should return ErrGraphNotReady on a nil graph", func(t *testing.T) {
		var graph *Graph
		err := graph.Run(ctx, NewState("q", 1))
		assert.ErrorIs(t, err, ErrGraphNotReady)
	})
}

func TestNewGraph(t *testing.T) {
	t.Run("should reject duplicate workers", func(t *testing.T) {
		provider := &scriptedProvider{responses: []agent.Response{{Content: "x"}}}
		sup := testSupervisor(t, provider, []string{"Researcher"})
		w1 := testWorker(t, "Researcher", provider, &fakeCaller{})
		w2 := testWorker(t, "Researcher", provider, &fakeCaller{})

		_, err := NewGraph(GraphConfig{Supervisor: sup, Workers: []Node{w1, w2}, Logger: zerolog.Nop()})
		require.Error(t, err)
	})

	t.Run("should require a supervisor and workers", func(t *testing.T) {
		_, err := NewGraph(GraphConfig{Logger: zerolog.Nop()})
		require.Error(t, err)
	})
}

func TestNewWorker(t *testing.T) {
	t.Run("should refuse a worker with zero tools", func(t *testing.T) {
		provider := &scriptedProvider{responses: []agent.Response{{Content: "x"}}}
		_, err := NewWorker(WorkerConfig{
			Name:     "Researcher",
			Provider: provider,
			Model:    "test-model",
			Caller:   &fakeCaller{},
			Logger:   zerolog.Nop(),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one tool")
	})
}
