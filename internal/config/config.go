package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Strategy  StrategyConfig            `mapstructure:"strategy"`
	Router    RouterConfig              `mapstructure:"router"`
	Chat      ChatConfig                `mapstructure:"chat"`
	Builder   BuilderConfig             `mapstructure:"builder"`
	Cache     CacheConfig               `mapstructure:"cache"`
	Sandbox   SandboxConfig             `mapstructure:"sandbox"`
	Tools     ToolsConfig               `mapstructure:"tools"`
	Documents DocumentsConfig           `mapstructure:"documents"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents an LLM provider such as OpenAI, Anthropic, Gemini or Ollama.
type ProviderConfig struct {
	Type          string        `mapstructure:"type"`            // openai, openrouter, vllm, lmstudio, custom, ollama, anthropic, gemini
	Model         string        `mapstructure:"model"`           // default model for the provider
	BaseURL       string        `mapstructure:"base_url"`        // API base URL
	APIKey        string        `mapstructure:"api_key"`         // optional API key
	Timeout       time.Duration `mapstructure:"timeout"`         // request timeout
	MaxTokens     int           `mapstructure:"max_tokens"`      // optional provider-level token cap
	RatePerSecond float64       `mapstructure:"rate_per_second"` // 0 disables throttling
	Burst         int           `mapstructure:"burst"`
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// RouterConfig tunes agent selection.
type RouterConfig struct {
	SwitchThreshold    int    `mapstructure:"switch_threshold"`
	Floor              int    `mapstructure:"floor"`
	FallbackAgent      string `mapstructure:"fallback_agent"`
	FallbackConfidence int    `mapstructure:"fallback_confidence"`
	FileBoost          int    `mapstructure:"file_boost"`
	BoostAgent         string `mapstructure:"boost_agent"`
	TablesPath         string `mapstructure:"tables_path"` // empty uses the built-in tables
}

// ChatConfig controls chat orchestration.
type ChatConfig struct {
	ContextMessages int     `mapstructure:"context_messages"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	Collaborative   bool    `mapstructure:"collaborative"`
	EnableCommands  bool    `mapstructure:"enable_commands"`
	// SessionTTL drops conversations idle for longer; zero keeps them forever.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// BuilderConfig configures the project builder and the reconciler poll loop.
type BuilderConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	StepDelay    time.Duration `mapstructure:"step_delay"`
	WorkspaceDir string        `mapstructure:"workspace_dir"`
	Store        StoreConfig   `mapstructure:"store"`
}

// StoreConfig selects where jobs and command history persist.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite or postgres
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Driver   string        `mapstructure:"driver"` // memory or redis
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SandboxConfig controls command and filesystem restrictions.
type SandboxConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	AllowNetwork    bool     `mapstructure:"allow_network"`
	AllowWrite      bool     `mapstructure:"allow_write"`
	AllowedCommands []string `mapstructure:"allowed_commands"`
	DeniedCommands  []string `mapstructure:"denied_commands"`
	WorkingDir      string   `mapstructure:"working_dir"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
}

// ToolsConfig configures tool behaviour.
type ToolsConfig struct {
	AllowExec          bool `mapstructure:"allow_exec"`
	AllowFileWrite     bool `mapstructure:"allow_file_write"`
	ExecTimeoutSeconds int  `mapstructure:"exec_timeout_seconds"`
	SearchMaxResults   int  `mapstructure:"search_max_results"`
}

// DocumentsConfig controls storage of chat context documents.
type DocumentsConfig struct {
	Dir            string `mapstructure:"dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr             string `mapstructure:"addr"`
	MetricsEnabled   bool   `mapstructure:"metrics_enabled"`
	Transport        string `mapstructure:"transport"` // connect or ndjson
	WebsocketEnabled bool   `mapstructure:"websocket_enabled"`
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: CODESTORM_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CODESTORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyKeyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// keyEnv maps provider types to the conventional API key variables.
var keyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// applyKeyEnv fills empty provider keys from the conventional variables.
func (c *Config) applyKeyEnv() {
	for name, p := range c.Providers {
		if p.APIKey != "" {
			continue
		}
		env, ok := keyEnv[strings.ToLower(p.Type)]
		if !ok {
			continue
		}
		if key := os.Getenv(env); key != "" {
			p.APIKey = key
			c.Providers[name] = p
		}
	}
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("router.switch_threshold", 70)
	v.SetDefault("router.floor", 20)
	v.SetDefault("router.fallback_agent", "advanced")
	v.SetDefault("router.fallback_confidence", 40)
	v.SetDefault("router.file_boost", 25)
	v.SetDefault("router.boost_agent", "developer")
	v.SetDefault("router.tables_path", "")

	v.SetDefault("chat.context_messages", 5)
	v.SetDefault("chat.max_tokens", 2048)
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.collaborative", false)
	v.SetDefault("chat.enable_commands", true)
	v.SetDefault("chat.session_ttl", "1h")

	v.SetDefault("builder.poll_interval", 3*time.Second)
	v.SetDefault("builder.step_delay", time.Second)
	v.SetDefault("builder.workspace_dir", "user_workspaces")
	v.SetDefault("builder.store.driver", "memory")
	v.SetDefault("builder.store.dsn", "")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 30*time.Second)

	v.SetDefault("sandbox.enabled", true)
	v.SetDefault("sandbox.allow_network", false)
	v.SetDefault("sandbox.allow_write", true)
	v.SetDefault("sandbox.working_dir", "user_workspaces")
	v.SetDefault("sandbox.timeout_seconds", 30)

	v.SetDefault("tools.allow_exec", true)
	v.SetDefault("tools.allow_file_write", true)
	v.SetDefault("tools.exec_timeout_seconds", 30)
	v.SetDefault("tools.search_max_results", 100)

	v.SetDefault("documents.dir", "context_documents")
	v.SetDefault("documents.max_upload_bytes", 10<<20)

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.agent_models", map[string]string{})
	v.SetDefault("strategy.fallbacks", []string{})

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
	v.SetDefault("server.websocket_enabled", true)
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
		if p.RatePerSecond < 0 {
			return fmt.Errorf("provider %q rate_per_second cannot be negative", name)
		}
		if p.Burst < 0 {
			return fmt.Errorf("provider %q burst cannot be negative", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if err := c.Router.validate(); err != nil {
		return err
	}

	if c.Chat.ContextMessages < 0 {
		return errors.New("chat.context_messages must be >= 0")
	}
	if c.Chat.MaxTokens < 0 {
		return errors.New("chat.max_tokens must be >= 0")
	}
	if c.Chat.SessionTTL < 0 {
		return errors.New("chat.session_ttl must be >= 0")
	}
	if c.Documents.MaxUploadBytes < 0 {
		return errors.New("documents.max_upload_bytes must be >= 0")
	}

	if c.Builder.PollInterval < 0 {
		return errors.New("builder.poll_interval must be >= 0")
	}
	if c.Builder.StepDelay < 0 {
		return errors.New("builder.step_delay must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Builder.Store.Driver)) {
	case "", "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(c.Builder.Store.DSN) == "" {
			return fmt.Errorf("builder.store.dsn is required for driver %q", c.Builder.Store.Driver)
		}
	default:
		return fmt.Errorf("builder.store.driver must be one of memory, sqlite or postgres, got %q", c.Builder.Store.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(c.Cache.Driver)) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			return errors.New("cache.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be one of memory or redis, got %q", c.Cache.Driver)
	}

	if c.Sandbox.TimeoutSeconds <= 0 {
		return errors.New("sandbox.timeout_seconds must be > 0")
	}

	if c.Tools.ExecTimeoutSeconds <= 0 {
		return errors.New("tools.exec_timeout_seconds must be > 0")
	}
	if c.Tools.SearchMaxResults < 0 {
		return errors.New("tools.search_max_results must be >= 0")
	}

	if id := strings.TrimSpace(c.Strategy.DefaultModel); id != "" {
		if _, ok := c.Models[id]; !ok {
			return fmt.Errorf("strategy references unknown model %q", id)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}
	for agentID, modelID := range c.Strategy.AgentModels {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy agent %q references unknown model %q", agentID, modelID)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}

func (r RouterConfig) validate() error {
	if r.SwitchThreshold < 0 || r.SwitchThreshold > 100 {
		return errors.New("router.switch_threshold must be within [0,100]")
	}
	if r.Floor < 0 || r.Floor > 100 {
		return errors.New("router.floor must be within [0,100]")
	}
	if r.FallbackConfidence < 0 || r.FallbackConfidence > 100 {
		return errors.New("router.fallback_confidence must be within [0,100]")
	}
	if r.FileBoost < 0 || r.FileBoost > 100 {
		return errors.New("router.file_boost must be within [0,100]")
	}
	return nil
}
