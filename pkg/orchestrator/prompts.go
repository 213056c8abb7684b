package orchestrator

import (
	"fmt"
	"strings"
)

const supervisorSystemPrompt = `You are a supervisor coordinating a team of specialized workers to answer the user's request.

Workers available to you:
%s

Rules:
- Review the conversation and decide which worker should act next, or whether the task is complete.
- When the task is complete, or no worker can add anything useful, choose FINISH.
- For greetings, small talk, or questions you can answer from the conversation alone, choose FINISH and put the answer in the "response" field. Do not route trivial requests to workers.
- Each worker invocation is expensive. Do not send a worker on the same errand twice.

Respond with a single JSON object, no other text:
{"next": "<worker name or FINISH>", "reasoning": "<one sentence>", "response": "<only when answering directly>"}`

// workerDescriptions shown to the supervisor when choosing a route.
var workerDescriptions = map[string]string{
	"Researcher": "searches the web and gathers factual information",
	"Scrapper":   "fetches and extracts the content of specific web pages",
}

// buildSupervisorSystem renders the supervisor system prompt for the
// configured worker set.
func buildSupervisorSystem(workers []string) string {
	var lines []string
	for _, w := range workers {
		desc := workerDescriptions[w]
		if desc == "" {
			desc = "a specialized worker"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", w, desc))
	}
	return fmt.Sprintf(supervisorSystemPrompt, strings.Join(lines, "\n"))
}

// buildSupervisorRequest renders the per-round decision request: a
// window over the recent conversation, the legal options, and the
// iteration budget status.
func buildSupervisorRequest(state *State, workers []string) string {
	var sb strings.Builder

	sb.WriteString("Conversation so far (most recent last):\n")
	for _, msg := range state.LastMessages(5) {
		author := msg.Role
		if msg.Name != "" {
			author = msg.Name
		}
		sb.WriteString(fmt.Sprintf("[%s] %s\n", author, msg.Content))
	}

	options := append(append([]string{}, workers...), RouteFinish)
	sb.WriteString(fmt.Sprintf("\nOptions: %s\n", strings.Join(options, ", ")))
	sb.WriteString(fmt.Sprintf("Iteration status: %d of %d worker rounds used.\n", state.Iterations, state.MaxIterations))

	if state.Iterations >= state.MaxIterations {
		sb.WriteString("The iteration budget is exhausted. You must choose FINISH.\n")
	}

	sb.WriteString("\nWho should act next?")
	return sb.String()
}

// workerSystemPrompts are the default instructions per worker role.
var workerSystemPrompts = map[string]string{
	"Researcher": `You are Researcher, a diligent research assistant.
Use your search tools to find accurate, current information for the user's request.
Cross-check claims when sources disagree. Cite the sources you relied on.
When you have enough information, write a clear, complete answer. Do not ask follow-up questions.`,

	"Scrapper": `You are Scrapper, a web page extraction specialist.
Use your tools to fetch the requested pages and pull out the relevant content.
Return the extracted information in a readable form, preserving important structure like headings and lists.
If a page cannot be fetched, say so and report what you got instead. Do not ask follow-up questions.`,
}

// WorkerSystemPrompt returns the system prompt for a worker role,
// falling back to a generic one for unknown roles.
func WorkerSystemPrompt(role string) string {
	if p, ok := workerSystemPrompts[role]; ok {
		return p
	}
	return fmt.Sprintf("You are %s, a specialized assistant. Use your tools to complete the user's request and reply with a final answer.", role)
}
