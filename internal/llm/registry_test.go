package llm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/llm"
	"github.com/josedcape/codestorm-preeliminar/internal/llm/configbuilder"
	llmmock "github.com/josedcape/codestorm-preeliminar/internal/llm/mock"
)

func TestRegistryResolve(t *testing.T) {
	reg := llm.NewRegistry()
	mockProvider := &llmmock.Provider{NameValue: "mock"}
	reg.RegisterProvider("mock", mockProvider)
	reg.RegisterModel("default", llm.ModelRoute{
		Provider:    "mock",
		Model:       "dummy",
		Temperature: 0.2,
	}, true)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, mockProvider, p)
	require.Equal(t, "dummy", route.Model)
	require.Equal(t, "default", reg.DefaultModel())
	require.True(t, reg.Has("default"))

	_, _, err = reg.Resolve("missing")
	require.Error(t, err)
}

func TestBuildRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai":    {Type: "openai", BaseURL: "http://example.com"},
			"anthropic": {Type: "anthropic", APIKey: "k", Model: "claude-3-5-sonnet-latest", RatePerSecond: 1},
			"gemini":    {Type: "gemini", APIKey: "k"},
		},
		Models: map[string]config.ModelConfig{
			"openai":    {Provider: "openai", Model: "gpt-4o", Default: true},
			"anthropic": {Provider: "anthropic"},
			"gemini":    {Provider: "gemini", Model: "gemini-1.5-pro"},
		},
	}

	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"anthropic", "gemini", "openai"}, reg.Models())

	p, _, err := reg.Resolve("openai")
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())

	p, route, err := reg.Resolve("anthropic")
	require.NoError(t, err)
	require.IsType(t, &llm.Limited{}, p)
	require.Equal(t, "anthropic", p.Name())
	require.Equal(t, "claude-3-5-sonnet-latest", route.Model)
}

func TestBuildRegistryRejectsUnknownType(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{"x": {Type: "bard"}},
		Models:    map[string]config.ModelConfig{"x": {Provider: "x", Default: true}},
	}
	_, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.Error(t, err)
}

func TestSplitSystem(t *testing.T) {
	system, rest := llm.SplitSystem([]llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "a"},
		{Role: llm.RoleUser, Content: "hola"},
		{Role: llm.RoleSystem, Content: "b"},
	})
	require.Equal(t, "a\n\nb", system)
	require.Len(t, rest, 1)
}
