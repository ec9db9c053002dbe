package rpc

// ChatRequest is one chat turn sent to the daemon.
type ChatRequest struct {
	SessionID     string `json:"session_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Message       string `json:"message"`
	AgentID       string `json:"agent_id,omitempty"`
	AgentPrompt   string `json:"agent_prompt,omitempty"`
	Model         string `json:"model,omitempty"`
	Collaborative bool   `json:"collaborative_mode,omitempty"`
}

// Chat event types.
const (
	EventRoute   = "route"
	EventToken   = "token"
	EventMessage = "message"
	EventCommand = "command"
	EventError   = "error"
	EventDone    = "done"
)

// ChatEvent streams back progress of a chat turn.
type ChatEvent struct {
	Type          string `json:"type"` // route|token|message|command|error|done
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	AgentID       string `json:"agent_id,omitempty"`
	AgentName     string `json:"agent_name,omitempty"`
	Confidence    int    `json:"confidence,omitempty"`
	Switched      bool   `json:"switched,omitempty"`
	Perspectives  string `json:"perspectives,omitempty"`
	Token         string `json:"token,omitempty"`
	Message       string `json:"message,omitempty"`
	HTML          string `json:"html,omitempty"`
	Model         string `json:"model,omitempty"`
	Error         string `json:"error,omitempty"`
	Done          bool   `json:"done,omitempty"`
	Step          int    `json:"step,omitempty"`
	FinishReason  string `json:"finish_reason,omitempty"`
	TaskCompleted bool   `json:"task_completed,omitempty"`
	ExitCode      int    `json:"exit_code,omitempty"`
}

// ChatStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must contain the chat turn; later messages can carry control signals.
type ChatStreamRequest struct {
	Chat          *ChatRequest `json:"chat,omitempty"`
	Cancel        bool         `json:"cancel,omitempty"`
	SessionID     string       `json:"session_id,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}
