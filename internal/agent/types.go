package agent

import (
	"errors"

	"github.com/josedcape/codestorm-preeliminar/internal/commands"
	"github.com/josedcape/codestorm-preeliminar/internal/documents"
	"github.com/josedcape/codestorm-preeliminar/internal/markdown"
	"github.com/josedcape/codestorm-preeliminar/internal/router"
)

// ErrEmptyMessage is returned for blank chat messages.
var ErrEmptyMessage = errors.New("message is required")

// ContextMessage is a prior exchange supplied by the client.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single chat turn.
type Request struct {
	SessionID     string           `json:"session_id"`
	Message       string           `json:"message"`
	AgentID       string           `json:"agent_id,omitempty"` // empty or "auto" routes by keywords
	AgentPrompt   string           `json:"agent_prompt,omitempty"`
	Model         string           `json:"model,omitempty"`
	Context       []ContextMessage `json:"context,omitempty"`
	Collaborative bool             `json:"collaborative_mode,omitempty"`
	// Document is reference text placed in the system prompt.
	Document *documents.Context `json:"-"`
}

// Response is the outcome of a chat turn.
type Response struct {
	SessionID     string               `json:"session_id"`
	Content       string               `json:"response"`
	HTML          string               `json:"html,omitempty"`
	CodeBlocks    []markdown.CodeBlock `json:"code_blocks,omitempty"`
	AgentID       string               `json:"agent_id"`
	AgentName     string               `json:"agent_name"`
	Confidence    int                  `json:"confidence"`
	Model         string               `json:"model,omitempty"`
	FinishReason  string               `json:"finish_reason,omitempty"`
	Switched      bool                 `json:"switched"`
	Perspectives  string               `json:"perspectives,omitempty"`
	TaskCompleted bool                 `json:"task_completed"`
	Selection     router.Selection     `json:"selection"`
	Command       *commands.Result     `json:"command,omitempty"`
}

// CodeRequest asks for a corrected version of a file.
type CodeRequest struct {
	Code         string `json:"code"`
	FilePath     string `json:"file_path,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Model        string `json:"model,omitempty"`
}

// CodeResult is the structured correction.
type CodeResult struct {
	CorrectedCode string   `json:"corrected_code"`
	Summary       []string `json:"summary"`
	Explanation   string   `json:"explanation"`
	Language      string   `json:"language"`
	Model         string   `json:"model,omitempty"`
}
