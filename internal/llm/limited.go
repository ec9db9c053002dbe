package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited throttles calls to a provider with a token bucket.
type Limited struct {
	Provider
	limiter *rate.Limiter
}

// NewLimited wraps p so that at most perSecond calls run per second, with the
// given burst. A burst below 1 is raised to 1.
func NewLimited(p Provider, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{Provider: p, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Chat waits for a token and delegates.
func (l *Limited) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return ChatResponse{}, fmt.Errorf("%s: rate limit: %w", l.Name(), err)
	}
	return l.Provider.Chat(ctx, req)
}

// Stream waits for a token and delegates.
func (l *Limited) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error) {
	if err := l.limiter.Wait(ctx); err != nil {
		ch := make(chan StreamChunk)
		errCh := make(chan error, 1)
		close(ch)
		errCh <- fmt.Errorf("%s: rate limit: %w", l.Name(), err)
		close(errCh)
		return ch, errCh
	}
	return l.Provider.Stream(ctx, req)
}
