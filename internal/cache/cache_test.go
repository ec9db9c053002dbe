package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
)

func TestMemoryGetSetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemory(30 * time.Second)
	m.now = func() time.Time { return now }

	_, err := m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(got))

	got[0] = 'x'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(again))

	now = now.Add(31 * time.Second)
	_, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrMiss)
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, m.Delete(ctx, "a", "b"))

	_, err := m.Get(ctx, "a")
	require.ErrorIs(t, err, ErrMiss)
	_, err = m.Get(ctx, "b")
	require.ErrorIs(t, err, ErrMiss)
}

func TestNewFallsBackToMemory(t *testing.T) {
	c := New(context.Background(), config.CacheConfig{Driver: "redis", RedisURL: "::not a url::"}, nil)
	_, ok := c.(*Memory)
	require.True(t, ok)

	c = New(context.Background(), config.CacheConfig{}, nil)
	mem, ok := c.(*Memory)
	require.True(t, ok)
	require.Equal(t, 30*time.Second, mem.defaultTTL)
}
