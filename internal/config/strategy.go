package config

// StrategyConfig defines per-agent model selections and fallbacks.
type StrategyConfig struct {
	DefaultModel string            `mapstructure:"default_model"`
	AgentModels  map[string]string `mapstructure:"agent_models"` // agent id -> model id
	Fallbacks    []string          `mapstructure:"fallbacks"`    // ordered fallback model ids
}
