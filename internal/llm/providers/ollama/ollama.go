package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/josedcape/codestorm-preeliminar/internal/llm"
)

// Provider implements a minimal Ollama chat client.
type Provider struct {
	name    string
	client  *http.Client
	baseURL string
}

// NewProvider constructs an Ollama provider.
func NewProvider(name, baseURL string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &Provider{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Chat executes a non-streaming chat completion.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}

	body := ollamaChatRequest{
		Model:    model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   false,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	var resp ollamaChatResponse
	if err := llm.PostJSON(ctx, p.client, "ollama", p.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return llm.ChatResponse{}, err
	}

	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.Role(resp.Message.Role),
			Content: resp.Message.Content,
		},
		FinishReason: finishReason(resp.DoneReason),
		Usage: llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		RawResponse:  resp,
		ProviderName: p.name,
		Model:        model,
	}, nil
}

// Stream emits the whole completion as one chunk.
func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	return llm.StreamFromChat(ctx, p.Chat, req)
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func finishReason(reason string) string {
	if reason == "" {
		return "stop"
	}
	return reason
}

func toOllamaMessages(msgs []llm.ChatMessage) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ollamaMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}
