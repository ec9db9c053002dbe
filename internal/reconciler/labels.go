package reconciler

import "fmt"

var phaseLabels = map[string]string{
	"initial":        "Iniciando",
	"analysis":       "Analizando requisitos",
	"planning":       "Planificando estructura",
	"implementation": "Implementando",
	"testing":        "Verificando",
	"refinement":     "Refinando",
	"completed":      "Completado",
}

var agentNames = map[string]string{
	"architect": "Arquitecto",
	"developer": "Desarrollador",
	"testing":   "QA Tester",
	"fixing":    "Corrector",
	"general":   "General",
}

// Status labels shown while a build runs.
const (
	LabelPaused   = "Pausado"
	LabelBuilding = "En construcción"
)

// PhaseLabel returns the display label for a phase, or the phase itself.
func PhaseLabel(phase string) string {
	if label, ok := phaseLabels[phase]; ok {
		return label
	}
	return phase
}

// AgentName returns the display name for a builder agent, or the id itself.
func AgentName(id string) string {
	if name, ok := agentNames[id]; ok {
		return name
	}
	return id
}

// StatusLine renders "Estado: <phase> (<n>%)" with the agent when it is known.
func StatusLine(phase string, progress int, agent string) string {
	line := fmt.Sprintf("Estado: %s (%d%%)", PhaseLabel(phase), progress)
	if name, ok := agentNames[agent]; ok {
		line += " - Agente: " + name
	}
	return line
}

// FormatTimeEstimate renders minutes as "1h 5m" or "45m"; zero renders "--:--".
func FormatTimeEstimate(minutes int) string {
	if minutes <= 0 {
		return "--:--"
	}
	if h := minutes / 60; h > 0 {
		return fmt.Sprintf("%dh %dm", h, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}
