package agent

import (
	"errors"
	"strings"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
	"github.com/josedcape/codestorm-preeliminar/internal/llm"
)

// StrategyEngine chooses the model that serves an agent.
type StrategyEngine struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
}

// NewStrategyEngine builds a model selector.
func NewStrategyEngine(reg *llm.Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// Candidates returns registered model ids in the order they should be tried:
// the explicit override, the agent's configured model, the strategy default,
// the registry default, then the configured fallbacks.
func (s *StrategyEngine) Candidates(agentID, override string) []string {
	if s == nil || s.registry == nil {
		return nil
	}
	agentID = strings.ToLower(strings.TrimSpace(agentID))
	ordered := []string{override, s.cfg.AgentModels[agentID], s.cfg.DefaultModel, s.registry.DefaultModel()}
	ordered = append(ordered, s.cfg.Fallbacks...)

	seen := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(ordered))
	for _, id := range ordered {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] || !s.registry.Has(id) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ResolveModel returns the first candidate that resolves to a provider.
func (s *StrategyEngine) ResolveModel(agentID, override string) (llm.Provider, llm.ModelRoute, error) {
	if s == nil || s.registry == nil {
		return nil, llm.ModelRoute{}, errors.New("no model registry configured")
	}
	for _, id := range s.Candidates(agentID, override) {
		if p, route, err := s.registry.Resolve(id); err == nil {
			return p, route, nil
		}
	}
	return s.registry.Resolve("")
}

// Resolve exposes the registry lookup for a single model id.
func (s *StrategyEngine) Resolve(modelID string) (llm.Provider, llm.ModelRoute, error) {
	if s == nil || s.registry == nil {
		return nil, llm.ModelRoute{}, errors.New("no model registry configured")
	}
	return s.registry.Resolve(modelID)
}

// NextFallback returns the next fallback model id different from current.
func (s *StrategyEngine) NextFallback(current string) string {
	for _, fb := range s.cfg.Fallbacks {
		if strings.TrimSpace(fb) == "" || fb == current {
			continue
		}
		return fb
	}
	return ""
}
