package llm

import (
	"fmt"
	"sort"
)

// ModelRoute binds a logical model to a provider and physical model name.
type ModelRoute struct {
	Name        string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Registry resolves logical model ids (openai, anthropic, gemini, ...) to providers.
type Registry struct {
	providers    map[string]Provider
	models       map[string]ModelRoute
	defaultModel string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]ModelRoute),
	}
}

// RegisterProvider adds a provider implementation.
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterModel adds a model route.
func (r *Registry) RegisterModel(name string, route ModelRoute, isDefault bool) {
	route.Name = name
	r.models[name] = route
	if isDefault || r.defaultModel == "" {
		r.defaultModel = name
	}
}

// DefaultModel returns the id used when a request names no model.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// Has reports whether a model id is registered.
func (r *Registry) Has(modelName string) bool {
	_, ok := r.models[modelName]
	return ok
}

// Models lists registered model ids in sorted order.
func (r *Registry) Models() []string {
	out := make([]string, 0, len(r.models))
	for name := range r.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the provider and route for a given model name (default if empty).
func (r *Registry) Resolve(modelName string) (Provider, ModelRoute, error) {
	if modelName == "" {
		modelName = r.defaultModel
	}

	route, ok := r.models[modelName]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("model %q not registered", modelName)
	}

	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("provider %q not registered for model %q", route.Provider, modelName)
	}

	return p, route, nil
}
