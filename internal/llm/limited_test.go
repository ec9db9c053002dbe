package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/josedcape/codestorm-preeliminar/internal/llm"
	llmmock "github.com/josedcape/codestorm-preeliminar/internal/llm/mock"
)

func TestLimitedDelegatesWithinBurst(t *testing.T) {
	inner := &llmmock.Provider{NameValue: "inner"}
	l := llm.NewLimited(inner, 1, 2)

	for i := 0; i < 2; i++ {
		resp, err := l.Chat(context.Background(), llm.ChatRequest{Model: "m"})
		require.NoError(t, err)
		require.Equal(t, "mock", resp.Message.Content)
	}
	require.Len(t, inner.Requests(), 2)
	require.Equal(t, "inner", l.Name())
}

func TestLimitedHonoursContextWhileWaiting(t *testing.T) {
	inner := &llmmock.Provider{}
	l := llm.NewLimited(inner, 0.01, 1)

	_, err := l.Chat(context.Background(), llm.ChatRequest{Model: "m"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Chat(ctx, llm.ChatRequest{Model: "m"})
	require.Error(t, err)
	require.Len(t, inner.Requests(), 1)

	ch, errCh := l.Stream(ctx, llm.ChatRequest{Model: "m"})
	_, open := <-ch
	require.False(t, open)
	require.Error(t, <-errCh)
}
