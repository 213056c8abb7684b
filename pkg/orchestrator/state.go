package orchestrator

// Node and routing identifiers.
const (
	NodeSupervisor = "Supervisor"
	RouteFinish    = "FINISH"
)

// Message is one entry in the session conversation. Name carries the
// node that authored an assistant message.
type Message struct {
	Role    string `json:"role"` // system, human, assistant
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// State is the mutable record threaded through one session's rounds.
// It is owned exclusively by one in-flight session.
type State struct {
	Messages       []Message `json:"messages"`
	Next           string    `json:"next"`
	TaskCompleted  bool      `json:"task_completed"`
	Iterations     int       `json:"iterations"`
	MaxIterations  int       `json:"max_iterations"`
	DirectResponse string    `json:"direct_response,omitempty"`
}

// Patch is the partial state update a node returns. Messages are
// appended, scalars overwrite, DirectResponse is set only when
// HasDirect is true.
type Patch struct {
	Messages       []Message
	Next           string
	TaskCompleted  bool
	Iterations     int
	DirectResponse string
	HasDirect      bool
}

// NewState builds the initial state for one user turn
func NewState(question string, maxIterations int) *State {
	return &State{
		Messages: []Message{
			{Role: "human", Content: question},
		},
		MaxIterations: maxIterations,
	}
}

// Apply merges a node's patch into the state. Existing messages are
// never mutated or removed.
func (s *State) Apply(p *Patch) {
	s.Messages = append(s.Messages, p.Messages...)
	s.Next = p.Next
	s.TaskCompleted = p.TaskCompleted
	s.Iterations = p.Iterations
	if p.HasDirect {
		s.DirectResponse = p.DirectResponse
	}
}

// LastMessages returns up to n most recent messages in order
func (s *State) LastMessages(n int) []Message {
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}
