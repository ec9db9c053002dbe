package configbuilder

import (
	"fmt"
	"strings"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/llm"
	llmanthropic "github.com/josedcape/codestorm-preeliminar/internal/llm/providers/anthropic"
	llmgemini "github.com/josedcape/codestorm-preeliminar/internal/llm/providers/gemini"
	llmollama "github.com/josedcape/codestorm-preeliminar/internal/llm/providers/ollama"
	llmopenai "github.com/josedcape/codestorm-preeliminar/internal/llm/providers/openai"
)

// BuildRegistryFromConfig constructs a registry and providers from config.
// Providers with a positive rate_per_second are wrapped in llm.Limited.
func BuildRegistryFromConfig(cfg *config.Config) (*llm.Registry, error) {
	reg := llm.NewRegistry()

	for name, pCfg := range cfg.Providers {
		p, err := buildProvider(name, pCfg)
		if err != nil {
			return nil, err
		}
		if pCfg.RatePerSecond > 0 {
			p = llm.NewLimited(p, pCfg.RatePerSecond, pCfg.Burst)
		}
		reg.RegisterProvider(name, p)
	}

	for name, mCfg := range cfg.Models {
		maxTokens := mCfg.MaxTokens
		if maxTokens == 0 {
			maxTokens = cfg.Providers[mCfg.Provider].MaxTokens
		}
		model := mCfg.Model
		if model == "" {
			model = cfg.Providers[mCfg.Provider].Model
		}
		reg.RegisterModel(name, llm.ModelRoute{
			Provider:    mCfg.Provider,
			Model:       model,
			Temperature: mCfg.Temperature,
			MaxTokens:   maxTokens,
		}, mCfg.Default)
	}

	if _, _, err := reg.Resolve(""); err != nil {
		return nil, err
	}

	return reg, nil
}

func buildProvider(name string, cfg config.ProviderConfig) (llm.Provider, error) {
	switch strings.ToLower(cfg.Type) {
	case "openai", "openrouter", "vllm", "lmstudio", "custom":
		return llmopenai.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "ollama":
		return llmollama.NewProvider(name, cfg.BaseURL, cfg.Timeout), nil
	case "anthropic":
		return llmanthropic.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "gemini":
		return llmgemini.NewProvider(name, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, name)
	}
}
