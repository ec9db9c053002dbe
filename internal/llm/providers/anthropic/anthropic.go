package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/josedcape/codestorm-preeliminar/internal/llm"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Provider implements the Anthropic messages API.
type Provider struct {
	name    string
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewProvider constructs an Anthropic provider.
func NewProvider(name, baseURL, apiKey string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Provider{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Chat sends the conversation to /v1/messages. System messages travel in the
// top-level system field.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if req.Model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}
	if p.apiKey == "" {
		return llm.ChatResponse{}, fmt.Errorf("anthropic: api key is not configured")
	}

	system, msgs := llm.SplitSystem(req.Messages)
	body := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Messages:    toMessages(msgs),
		Temperature: req.Temperature,
		System:      system,
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}

	header := http.Header{}
	header.Set("x-api-key", p.apiKey)
	header.Set("anthropic-version", apiVersion)
	var resp messagesResponse
	if err := llm.PostJSON(ctx, p.client, "anthropic", p.baseURL+"/v1/messages", header, body, &resp); err != nil {
		return llm.ChatResponse{}, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return llm.ChatResponse{}, fmt.Errorf("anthropic: empty content")
	}

	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: text.String(),
		},
		FinishReason: resp.StopReason,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		RawResponse:  resp,
		ProviderName: p.name,
		Model:        req.Model,
	}, nil
}

// Stream emits the whole completion as one chunk.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	return llm.StreamFromChat(ctx, p.Chat, req)
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func toMessages(msgs []llm.ChatMessage) []message {
	out := make([]message, 0, len(msgs))
	for _, m := range msgs {
		role := string(m.Role)
		if m.Role != llm.RoleAssistant {
			role = string(llm.RoleUser)
		}
		out = append(out, message{Role: role, Content: m.Content})
	}
	return out
}
