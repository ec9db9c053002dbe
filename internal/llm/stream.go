package llm

import "context"

// ChatFunc performs a single non-streaming completion.
type ChatFunc func(ctx context.Context, req ChatRequest) (ChatResponse, error)

// StreamFromChat runs chat and emits its result as a single chunk. Providers
// without native streaming use it.
func StreamFromChat(ctx context.Context, chat ChatFunc, req ChatRequest) (<-chan StreamChunk, <-chan error) {
	ch := make(chan StreamChunk, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(errCh)

		resp, err := chat(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		ch <- StreamChunk{
			Content:      resp.Message.Content,
			FinishReason: resp.FinishReason,
		}
	}()

	return ch, errCh
}
