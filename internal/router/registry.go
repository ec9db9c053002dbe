package router

import (
	"sync"
)

const (
	initialConfidence = 90
	successNudge      = 1
	errorNudge        = -5
)

// Agent is a registered capability profile.
type Agent struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Description    string   `json:"description" yaml:"description"`
	Icon           string   `json:"icon" yaml:"icon"`
	Capabilities   []string `json:"capabilities" yaml:"capabilities"`
	PromptTemplate string   `json:"prompt_template" yaml:"prompt_template"`
	Confidence     int      `json:"confidence" yaml:"confidence"`
}

// Registry holds agents in registration order. Profiles are immutable after
// registration; only confidence changes.
type Registry struct {
	tables       Tables
	order        []string
	profiles     map[string]Profile
	defaultAgent string

	mu         sync.RWMutex
	confidence map[string]int
}

// NewRegistry registers every agent from the tables.
func NewRegistry(t Tables) *Registry {
	r := &Registry{
		tables:       t,
		order:        make([]string, 0, len(t.Agents)),
		profiles:     make(map[string]Profile, len(t.Agents)),
		confidence:   make(map[string]int, len(t.Agents)),
		defaultAgent: t.DefaultAgent,
	}
	for _, p := range t.Agents {
		r.order = append(r.order, p.ID)
		r.profiles[p.ID] = p
		r.confidence[p.ID] = initialConfidence
	}
	if r.defaultAgent == "" && len(r.order) > 0 {
		r.defaultAgent = r.order[len(r.order)-1]
	}
	return r
}

// Tables returns the tables the registry was built from.
func (r *Registry) Tables() Tables {
	return r.tables
}

// IDs returns agent ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// DefaultAgent is the general-purpose agent used for fallbacks.
func (r *Registry) DefaultAgent() string {
	return r.defaultAgent
}

// Get returns a registered agent.
func (r *Registry) Get(id string) (Agent, bool) {
	p, ok := r.profiles[id]
	if !ok {
		return Agent{}, false
	}
	r.mu.RLock()
	conf := r.confidence[id]
	r.mu.RUnlock()
	return Agent{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Icon:           p.Icon,
		Capabilities:   append([]string(nil), p.Capabilities...),
		PromptTemplate: p.Prompt,
		Confidence:     conf,
	}, true
}

// Resolve returns the requested agent, or the default agent for unknown ids.
func (r *Registry) Resolve(id string) Agent {
	if a, ok := r.Get(id); ok {
		return a
	}
	a, _ := r.Get(r.defaultAgent)
	return a
}

// Agents lists agents in registration order.
func (r *Registry) Agents() []Agent {
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		a, _ := r.Get(id)
		out = append(out, a)
	}
	return out
}

// Name returns the display name for id, or id itself when unknown.
func (r *Registry) Name(id string) string {
	if p, ok := r.profiles[id]; ok {
		return p.Name
	}
	return id
}

// RecordOutcome nudges an agent's confidence after an exchange: up when ok,
// down when the exchange failed. Unknown agents report 0.
func (r *Registry) RecordOutcome(id string, ok bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, found := r.confidence[id]
	if !found {
		return 0
	}
	if ok {
		cur += successNudge
	} else {
		cur += errorNudge
	}
	cur = clamp(cur, 0, 100)
	r.confidence[id] = cur
	return cur
}

// Confidence returns the current confidence of an agent.
func (r *Registry) Confidence(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.confidence[id]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
