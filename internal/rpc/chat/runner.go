package chat

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/agent"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
)

// Runner executes a chat turn and yields streamed events. The channel is
// closed after the done event.
type Runner interface {
	Run(ctx context.Context, req rpc.ChatRequest) (<-chan rpc.ChatEvent, error)
}

// AgentRunner streams agent.Agent turns.
type AgentRunner struct {
	Agent  *agent.Agent
	Logger *zap.Logger
}

// NewAgentRunner wraps a chat agent.
func NewAgentRunner(a *agent.Agent, logger *zap.Logger) *AgentRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentRunner{Agent: a, Logger: logger.Named("chat")}
}

// Run routes the message, calls the model and replays the answer as tokens.
func (r *AgentRunner) Run(ctx context.Context, req rpc.ChatRequest) (<-chan rpc.ChatEvent, error) {
	if r.Agent == nil {
		return nil, errors.New("chat agent unavailable")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, agent.ErrEmptyMessage
	}

	out := make(chan rpc.ChatEvent, 16)
	go func() {
		defer close(out)
		emit := func(ev rpc.ChatEvent) bool {
			ev.SessionID = req.SessionID
			ev.CorrelationID = req.CorrelationID
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp, err := r.Agent.Run(ctx, agent.Request{
			SessionID:     req.SessionID,
			Message:       req.Message,
			AgentID:       req.AgentID,
			AgentPrompt:   req.AgentPrompt,
			Model:         req.Model,
			Collaborative: req.Collaborative,
		})
		if resp.SessionID != "" {
			req.SessionID = resp.SessionID
		}
		route := rpc.ChatEvent{
			Type:         rpc.EventRoute,
			AgentID:      resp.AgentID,
			AgentName:    resp.AgentName,
			Confidence:   resp.Selection.Confidence,
			Switched:     resp.Switched,
			Perspectives: resp.Perspectives,
			Message:      resp.Selection.Message,
		}
		if resp.AgentID != "" && !emit(route) {
			return
		}
		if err != nil {
			r.Logger.Warn("chat turn failed", zap.String("session_id", req.SessionID), zap.Error(err))
			if emit(rpc.ChatEvent{Type: rpc.EventError, Error: err.Error()}) {
				emit(rpc.ChatEvent{Type: rpc.EventDone, Done: true, FinishReason: "error"})
			}
			return
		}

		if resp.Command != nil {
			ev := rpc.ChatEvent{Type: rpc.EventCommand, Message: resp.Content, HTML: resp.HTML}
			if resp.Command.Exec != nil {
				ev.ExitCode = resp.Command.Exec.ExitCode
			}
			if !emit(ev) {
				return
			}
		} else {
			for i, tok := range splitTokens(resp.Content) {
				if !emit(rpc.ChatEvent{Type: rpc.EventToken, Token: tok, Step: i + 1}) {
					return
				}
			}
			if !emit(rpc.ChatEvent{
				Type:          rpc.EventMessage,
				Message:       resp.Content,
				HTML:          resp.HTML,
				Model:         resp.Model,
				AgentID:       resp.AgentID,
				Confidence:    resp.Confidence,
				TaskCompleted: resp.TaskCompleted,
			}) {
				return
			}
		}
		finish := resp.FinishReason
		if finish == "" {
			finish = "stop"
		}
		emit(rpc.ChatEvent{Type: rpc.EventDone, Done: true, FinishReason: finish})
	}()
	return out, nil
}

// splitTokens cuts text into words that keep their trailing whitespace, so
// concatenating the tokens reproduces the text.
func splitTokens(text string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && inSpace {
			out = append(out, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
