package conversation

import (
	"strings"
	"sync"
	"time"
)

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is a single history item.
type Entry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id,omitempty"`
	Error     bool      `json:"error,omitempty"`
}

// State is the per-session conversation record. At most one agent is active at a time.
type State struct {
	ID string

	mu            sync.Mutex
	history       []Entry
	activeAgentID string
	currentTask   string
	activeAgents  []string
	now           func() time.Time
}

// NewState returns an empty conversation state.
func NewState(id string) *State {
	return &State{ID: id, history: make([]Entry, 0, 16), now: time.Now}
}

// Append adds an entry to the history, stamping it when no timestamp is set.
func (s *State) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(e)
}

// AppendSystem records a system message.
func (s *State) AppendSystem(content string) {
	s.Append(Entry{Role: RoleSystem, Content: content})
}

func (s *State) appendLocked(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	s.history = append(s.history, e)
}

// Activate makes agentID the active agent. A non-empty transition message is
// appended as a system entry before the switch takes effect.
func (s *State) Activate(agentID, task, transition string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(transition) != "" {
		s.appendLocked(Entry{Role: RoleSystem, Content: transition})
	}
	s.activeAgentID = agentID
	s.activeAgents = append(s.activeAgents, agentID)
	if task != "" {
		s.currentTask = task
	}
}

// ActiveAgentID returns the active agent id or "".
func (s *State) ActiveAgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeAgentID
}

// CurrentTask returns the task the active agent is working on.
func (s *State) CurrentTask() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTask
}

// CompleteTask clears the current task.
func (s *State) CompleteTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTask = ""
}

// ActiveAgents returns every agent activated in this session, in activation order.
func (s *State) ActiveAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.activeAgents...)
}

// History returns a copy of the full history.
func (s *State) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.history...)
}

// Context returns the last n history entries.
func (s *State) Context(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n >= len(s.history) {
		return append([]Entry(nil), s.history...)
	}
	return append([]Entry(nil), s.history[len(s.history)-n:]...)
}

// Clear drops history, the active agent and the current task.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history[:0]
	s.activeAgentID = ""
	s.currentTask = ""
	s.activeAgents = nil
}
