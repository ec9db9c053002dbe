package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/commands"
	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/conversation"
	"github.com/josedcape/codestorm-preeliminar/internal/llm"
	"github.com/josedcape/codestorm-preeliminar/internal/markdown"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/router"
)

// Deps are the collaborators of an Agent. Executor, Logger and Metrics may be nil.
type Deps struct {
	Strategy *StrategyEngine
	Router   *router.Router
	Sessions *conversation.Store
	Executor *commands.Executor
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Agent orchestrates chat turns: routing, model calls with fallback and history.
type Agent struct {
	strategy *StrategyEngine
	router   *router.Router
	sessions *conversation.Store
	executor *commands.Executor
	cfg      config.ChatConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// New creates a new Agent.
func New(deps Deps, cfg config.ChatConfig) *Agent {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = conversation.NewStore()
	}
	return &Agent{
		strategy: deps.Strategy,
		router:   deps.Router,
		sessions: sessions,
		executor: deps.Executor,
		cfg:      cfg,
		logger:   logger.Named("agent"),
		metrics:  deps.Metrics,
	}
}

// Sessions returns the conversation store.
func (a *Agent) Sessions() *conversation.Store {
	return a.sessions
}

// Router returns the agent router.
func (a *Agent) Router() *router.Router {
	return a.router
}

// Run executes one chat turn for the session in req.
func (a *Agent) Run(ctx context.Context, req Request) (Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Response{}, ErrEmptyMessage
	}
	if a.router == nil {
		return Response{}, errors.New("agent router unavailable")
	}

	state := a.sessions.Get(req.SessionID)
	resp := Response{SessionID: state.ID}
	registry := a.router.Registry()

	if id := strings.TrimSpace(req.AgentID); id != "" && id != "auto" {
		chosen := a.router.Override(state, id)
		resp.Selection = router.Selection{AgentID: chosen.ID, Confidence: registry.Confidence(chosen.ID)}
	} else {
		d := a.router.Route(state, message)
		resp.Selection = d.Selection
		resp.Switched = d.Switched
		if req.Collaborative || a.cfg.Collaborative {
			collab := a.router.Collaborate(state, message)
			resp.Perspectives = collab.Perspectives
			if collab.Switched {
				resp.Switched = true
			}
		}
	}

	agentID := state.ActiveAgentID()
	if agentID == "" {
		agentID = registry.DefaultAgent()
	}
	profile := registry.Resolve(agentID)
	resp.AgentID = profile.ID
	resp.AgentName = profile.Name

	if res, ok := a.tryCommand(ctx, state, message, profile.ID); ok {
		resp.Command = &res
		resp.Content = commandContent(res)
		resp.Confidence = registry.Confidence(profile.ID)
		resp.HTML, _ = markdown.Render(resp.Content)
		return resp, nil
	}

	messages := []llm.ChatMessage{{Role: llm.RoleSystem, Content: withDocument(buildSystemPrompt(profile, req.AgentPrompt), req.Document)}}
	messages = append(messages, historyMessages(state.History(), req.Context, a.cfg.ContextMessages)...)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: message})
	state.Append(conversation.Entry{Role: conversation.RoleUser, Content: message})

	start := time.Now()
	chatResp, route, err := a.complete(ctx, profile.ID, req.Model, messages)
	if err != nil {
		state.Append(conversation.Entry{Role: conversation.RoleAssistant, Content: err.Error(), AgentID: profile.ID, Error: true})
		registry.RecordOutcome(profile.ID, false)
		a.metrics.RecordChat(profile.ID, route.Name, "error", time.Since(start))
		return resp, err
	}
	a.metrics.RecordChat(profile.ID, route.Name, "ok", time.Since(start))

	content := chatResp.Message.Content
	state.Append(conversation.Entry{Role: conversation.RoleAssistant, Content: content, AgentID: profile.ID})

	resp.Content = content
	resp.Model = route.Name
	resp.FinishReason = chatResp.FinishReason
	resp.Confidence = registry.RecordOutcome(profile.ID, true)
	resp.CodeBlocks = markdown.ExtractCodeBlocks(content)
	if html, err := markdown.Render(content); err == nil {
		resp.HTML = html
	} else {
		a.logger.Debug("render markdown failed", zap.Error(err))
	}
	resp.TaskCompleted = a.router.Complete(state, profile.ID, content)
	return resp, nil
}

// complete calls each candidate model in order until one succeeds.
func (a *Agent) complete(ctx context.Context, agentID, override string, messages []llm.ChatMessage) (llm.ChatResponse, llm.ModelRoute, error) {
	candidates := a.strategy.Candidates(agentID, override)
	if len(candidates) == 0 {
		return llm.ChatResponse{}, llm.ModelRoute{}, errors.New("no models configured")
	}
	if override != "" && candidates[0] != override {
		a.logger.Warn("requested model not registered", zap.String("model", override))
	}

	var lastErr error
	var lastRoute llm.ModelRoute
	for _, id := range candidates {
		provider, route, err := a.strategy.Resolve(id)
		if err != nil {
			lastErr = err
			continue
		}
		lastRoute = route
		resp, err := provider.Chat(ctx, llm.ChatRequest{
			Model:       route.Model,
			Messages:    messages,
			MaxTokens:   pickMaxTokens(a.cfg.MaxTokens, route.MaxTokens),
			Temperature: pickTemperature(a.cfg.Temperature, route.Temperature),
		})
		if err == nil {
			return resp, route, nil
		}
		lastErr = err
		a.metrics.RecordModelFailure(id)
		a.logger.Warn("model call failed", zap.String("model", id), zap.String("agent", agentID), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}
	return llm.ChatResponse{}, lastRoute, fmt.Errorf("all models failed: %w", lastErr)
}

// tryCommand runs message as a workspace command when it parses as one.
func (a *Agent) tryCommand(ctx context.Context, state *conversation.State, message, agentID string) (commands.Result, bool) {
	if !a.cfg.EnableCommands || a.executor == nil {
		return commands.Result{}, false
	}
	cmd, err := commands.Parse(message)
	if err != nil {
		return commands.Result{}, false
	}

	state.Append(conversation.Entry{Role: conversation.RoleUser, Content: message})
	res, err := a.executor.Execute(ctx, cmd)
	if err != nil {
		res = commands.Result{Intent: cmd.Intent, Path: cmd.Filename, Message: "Error: " + err.Error()}
		state.Append(conversation.Entry{Role: conversation.RoleAssistant, Content: res.Message, AgentID: agentID, Error: true})
		return res, true
	}
	state.Append(conversation.Entry{Role: conversation.RoleAssistant, Content: commandContent(res), AgentID: agentID})
	return res, true
}

func commandContent(res commands.Result) string {
	if strings.TrimSpace(res.Output) == "" {
		return res.Message
	}
	return fmt.Sprintf("%s\n\n```\n%s\n```", res.Message, strings.TrimRight(res.Output, "\n"))
}

// Clear resets a session's history and active agent.
func (a *Agent) Clear(sessionID string) bool {
	return a.sessions.Clear(sessionID)
}

// ErrUnknownAgent is returned when a delegation names an unregistered agent.
var ErrUnknownAgent = errors.New("unknown agent")

// Delegate hands the session's current task to agentID and returns the new
// active agent.
func (a *Agent) Delegate(sessionID, agentID, reason string) (string, error) {
	if a.router == nil {
		return "", errors.New("router is not configured")
	}
	if strings.TrimSpace(reason) == "" {
		reason = "solicitud del usuario"
	}
	state := a.sessions.Get(sessionID)
	if !a.router.Delegate(state, agentID, reason) {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return state.ActiveAgentID(), nil
}
