package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/josedcape/codestorm-preeliminar/internal/llm"
)

// Provider implements the Gemini generateContent API.
type Provider struct {
	name    string
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewProvider constructs a Gemini provider.
func NewProvider(name, baseURL, apiKey string, timeout time.Duration) *Provider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
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

// Chat calls models/{model}:generateContent. Assistant turns map to the
// "model" role and system messages become the system instruction.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if req.Model == "" {
		return llm.ChatResponse{}, fmt.Errorf("model is required")
	}
	if p.apiKey == "" {
		return llm.ChatResponse{}, fmt.Errorf("gemini: api key is not configured")
	}

	system, msgs := llm.SplitSystem(req.Messages)
	body := generateRequest{
		Contents: toContents(msgs),
		GenerationConfig: &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if system != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(req.Model), url.QueryEscape(p.apiKey))
	var resp generateResponse
	if err := llm.PostJSON(ctx, p.client, "gemini", endpoint, nil, body, &resp); err != nil {
		return llm.ChatResponse{}, err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("gemini: empty candidates")
	}

	var text strings.Builder
	for _, pt := range resp.Candidates[0].Content.Parts {
		text.WriteString(pt.Text)
	}

	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: text.String(),
		},
		FinishReason: strings.ToLower(resp.Candidates[0].FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
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

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
			Role  string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func toContents(msgs []llm.ChatMessage) []content {
	out := make([]content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		out = append(out, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}
