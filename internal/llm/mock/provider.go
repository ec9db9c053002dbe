package mock

import (
	"context"
	"sync"

	"github.com/josedcape/codestorm-preeliminar/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	NameValue    string
	ChatFn       func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	StreamChunks []llm.StreamChunk
	StreamErr    error

	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.record(req)
	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: "mock",
		},
		FinishReason: "stop",
		ProviderName: p.Name(),
		Model:        req.Model,
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, <-chan error) {
	p.record(req)
	ch := make(chan llm.StreamChunk, len(p.StreamChunks))
	errCh := make(chan error, 1)
	go func() {
		defer close(ch)
		defer close(errCh)
		for _, c := range p.StreamChunks {
			ch <- c
		}
		if p.StreamErr != nil {
			errCh <- p.StreamErr
		}
	}()
	return ch, errCh
}

// Requests returns the requests received so far.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

func (p *Provider) record(req llm.ChatRequest) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
}
