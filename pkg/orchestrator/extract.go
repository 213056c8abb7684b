package orchestrator

// ExtractAnswer pulls the session answer out of a terminal state. A
// supervisor direct response always wins. Otherwise the most recent
// assistant message authored by a known node is the answer, which
// favors the last worker to have spoken.
func ExtractAnswer(state *State, knownNames []string) string {
	if state.DirectResponse != "" {
		return state.DirectResponse
	}

	names := make(map[string]bool, len(knownNames)+1)
	for _, n := range knownNames {
		names[n] = true
	}
	names[NodeSupervisor] = true

	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		if msg.Role == "assistant" && names[msg.Name] {
			return msg.Content
		}
	}

	return ""
}
