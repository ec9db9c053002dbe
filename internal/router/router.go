package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/conversation"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
)

// FallbackMessage explains a low-confidence fallback to the user.
const FallbackMessage = "No estoy seguro de qué agente es el más adecuado, activando el Agente Avanzado para esta tarea general."

// Options tunes routing thresholds.
type Options struct {
	SwitchThreshold    int
	Floor              int
	FallbackConfidence int
	FileBoost          int
	BoostAgent         string
	RecommendationMin  int
	AutoSwitchMin      int
	PerspectiveMin     int
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		SwitchThreshold:    70,
		Floor:              20,
		FallbackConfidence: 40,
		FileBoost:          25,
		BoostAgent:         "developer",
		RecommendationMin:  50,
		AutoSwitchMin:      80,
		PerspectiveMin:     30,
	}
}

// Selection is the router's pick for a message.
type Selection struct {
	AgentID    string `json:"agent_id" yaml:"agent_id"`
	Confidence int    `json:"confidence" yaml:"confidence"`
	Scores     Scores `json:"scores,omitempty" yaml:"scores,omitempty"`
	Fallback   bool   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Decision records what Route did with a message.
type Decision struct {
	Selection
	Previous string `json:"previous,omitempty"`
	Active   string `json:"active"`
	Switched bool   `json:"switched"`
}

// Recommendation is a secondary agent worth consulting.
type Recommendation struct {
	AgentID    string `json:"agent_id"`
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
	Message    string `json:"message"`
}

// Collaboration is the outcome of a collaborative query.
type Collaboration struct {
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Switched        bool             `json:"switched"`
	AgentID         string           `json:"agent_id,omitempty"`
	Confidence      int              `json:"confidence,omitempty"`
	Perspectives    string           `json:"perspectives,omitempty"`
}

// Router maps messages to agents and keeps the active agent in conversation state.
type Router struct {
	registry *Registry
	scorer   *Scorer
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// New builds a router over an injected registry.
func New(registry *Registry, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		scorer:   NewScorer(registry.Tables(), opts.BoostAgent, opts.FileBoost),
		opts:     opts,
		logger:   logger.Named("router"),
		metrics:  metrics,
	}
}

// Registry returns the agent registry.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Select scores the message and returns the best agent. Ties go to the agent
// registered first; a best score under the floor selects the default agent.
func (r *Router) Select(message string) Selection {
	sel := r.pick(message)
	r.metrics.RecordRouterSelection(sel.AgentID, sel.Fallback)
	return sel
}

func (r *Router) pick(message string) Selection {
	scores := r.scorer.Score(message)

	best, highest := "", 0
	for _, sc := range scores {
		if sc.Score > highest {
			highest = sc.Score
			best = sc.AgentID
		}
	}

	if highest < r.opts.Floor {
		return Selection{
			AgentID:    r.registry.DefaultAgent(),
			Confidence: r.opts.FallbackConfidence,
			Scores:     scores,
			Fallback:   true,
			Message:    FallbackMessage,
		}
	}
	return Selection{AgentID: best, Confidence: highest, Scores: scores}
}

// ShouldSwitch reports whether sel should replace the active agent.
func (r *Router) ShouldSwitch(sel Selection, activeID string) bool {
	if activeID == "" {
		return true
	}
	return sel.Confidence > r.opts.SwitchThreshold && sel.AgentID != activeID
}

// Route selects an agent for message and activates it in state when warranted.
func (r *Router) Route(state *conversation.State, message string) Decision {
	sel := r.Select(message)
	prev := state.ActiveAgentID()
	d := Decision{Selection: sel, Previous: prev, Active: prev}

	if !r.ShouldSwitch(sel, prev) {
		return d
	}

	transition := r.transitionMessage(prev, sel.AgentID, sel.Confidence)
	if sel.Fallback {
		transition = sel.Message
	}
	r.activate(state, prev, sel.AgentID, message, transition)
	d.Active = sel.AgentID
	d.Switched = true
	return d
}

// Override activates a manually chosen agent. Unknown ids resolve to the default agent.
func (r *Router) Override(state *conversation.State, agentID string) Agent {
	agent := r.registry.Resolve(agentID)
	prev := state.ActiveAgentID()
	if prev != agent.ID {
		r.activate(state, prev, agent.ID, state.CurrentTask(), fmt.Sprintf("Agente seleccionado manualmente: %s", agent.Name))
	}
	return agent
}

// Recommendations returns agents other than excludeID whose score exceeds the
// recommendation minimum, best first.
func (r *Router) Recommendations(message, excludeID string) []Recommendation {
	sel := r.pick(message)
	if sel.Fallback {
		return nil
	}
	var recs []Recommendation
	for _, sc := range sel.Scores {
		if sc.AgentID == excludeID || sc.Score <= r.opts.RecommendationMin {
			continue
		}
		name := r.registry.Name(sc.AgentID)
		recs = append(recs, Recommendation{
			AgentID:    sc.AgentID,
			Name:       name,
			Confidence: sc.Score,
			Message:    fmt.Sprintf("Recomendación del %s: Este agente podría tener una perspectiva valiosa sobre este tema.", name),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Confidence > recs[j].Confidence })
	return recs
}

// Collaborate consults the other agents. A strong recommendation takes over the
// conversation; otherwise up to two secondary perspectives are summarized.
func (r *Router) Collaborate(state *conversation.State, message string) Collaboration {
	prev := state.ActiveAgentID()
	recs := r.Recommendations(message, prev)
	out := Collaboration{Recommendations: recs}

	if len(recs) > 0 && recs[0].Confidence > r.opts.AutoSwitchMin {
		top := recs[0]
		transition := fmt.Sprintf("Agente cambiado a %s debido a la naturaleza de la consulta. Confianza: %d%%", top.Name, top.Confidence)
		r.activate(state, prev, top.AgentID, message, transition)
		out.Switched = true
		out.AgentID = top.AgentID
		out.Confidence = top.Confidence
		return out
	}

	if len(recs) > 1 {
		var b strings.Builder
		for _, rec := range recs[:2] {
			if rec.Confidence <= r.opts.PerspectiveMin {
				continue
			}
			agent, _ := r.registry.Get(rec.AgentID)
			capability := ""
			if len(agent.Capabilities) > 0 {
				capability = agent.Capabilities[0]
			}
			fmt.Fprintf(&b, "\n• %s: Este agente podría aportar conocimientos en %s.", agent.Name, capability)
		}
		if b.Len() > 0 {
			out.Perspectives = "Perspectivas adicionales:" + b.String()
		}
	}
	return out
}

// Delegate hands the current task to another agent. It returns false for unknown agents.
func (r *Router) Delegate(state *conversation.State, toID, reason string) bool {
	target, ok := r.registry.Get(toID)
	if !ok {
		r.logger.Warn("delegation to unknown agent", zap.String("agent", toID))
		return false
	}
	prev := state.ActiveAgentID()
	source := prev
	if source == "" {
		source = r.registry.DefaultAgent()
	}
	transition := fmt.Sprintf("%s ha derivado esta tarea a %s. Motivo: %s", r.registry.Name(source), target.Name, reason)
	r.activate(state, prev, target.ID, state.CurrentTask(), transition)
	return true
}

var completionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)he\s+(?:completado|terminado|finalizado|concluido)`),
	regexp.MustCompile(`(?i)(?:tarea|solicitud)\s+(?:completada|terminada|finalizada|concluida)`),
	regexp.MustCompile(`(?i)(?:listo|hecho|completo|terminado)[.!]`),
}

// TaskCompleted reports whether an agent response announces the task as done.
func TaskCompleted(response string) bool {
	for _, re := range completionPatterns {
		if re.MatchString(response) {
			return true
		}
	}
	return false
}

// Complete clears the current task when response announces completion.
func (r *Router) Complete(state *conversation.State, agentID, response string) bool {
	if !TaskCompleted(response) {
		return false
	}
	state.CompleteTask()
	state.AppendSystem(fmt.Sprintf("El %s ha completado la tarea solicitada.", r.registry.Name(agentID)))
	return true
}

func (r *Router) activate(state *conversation.State, prev, next, task, transition string) {
	state.Activate(next, task, transition)
	if prev != next {
		r.metrics.RecordAgentSwitch(prev, next)
		r.logger.Debug("agent activated", zap.String("from", prev), zap.String("to", next))
	}
}

func (r *Router) transitionMessage(prev, next string, confidence int) string {
	if prev == "" {
		return fmt.Sprintf("%s activado. Confianza: %d%%", r.registry.Name(next), confidence)
	}
	return fmt.Sprintf("Cambio de agente: %s → %s. Confianza: %d%%", r.registry.Name(prev), r.registry.Name(next), confidence)
}
