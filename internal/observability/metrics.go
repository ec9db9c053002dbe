package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the daemon.
type Metrics struct {
	registry         *prometheus.Registry
	RouterSelections *prometheus.CounterVec
	RouterSwitches   *prometheus.CounterVec
	ChatRequests     *prometheus.CounterVec
	ChatDuration     *prometheus.HistogramVec
	BuildJobs        *prometheus.GaugeVec
	BuildPhases      *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	ActiveSession    *prometheus.GaugeVec
	TransportErrs    *prometheus.CounterVec
	ModelFailures    *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with all collectors registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	selections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestorm_router_selections_total",
		Help: "Router selections by agent and whether the fallback was used",
	}, []string{"agent", "fallback"})

	switches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestorm_router_switches_total",
		Help: "Active agent changes",
	}, []string{"from", "to"})

	chats := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestorm_chat_requests_total",
		Help: "Chat requests by agent, model and outcome",
	}, []string{"agent", "model", "outcome"})

	chatDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codestorm_chat_duration_seconds",
		Help:    "Chat completion duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	jobs := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "codestorm_build_jobs",
		Help: "Build jobs by status",
	}, []string{"status"})

	phases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestorm_build_phase_total",
		Help: "Build phase transitions",
	}, []string{"phase"})

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestorm_commands_total",
		Help: "Natural-language commands executed by intent",
	}, []string{"intent"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "codestorm_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestorm_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	modelFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codestorm_model_failures_total",
		Help: "Model failures by model",
	}, []string{"model"})

	reg.MustRegister(selections, switches, chats, chatDur, jobs, phases, commands, active, trErrors, modelFailures)

	return &Metrics{
		registry:         reg,
		RouterSelections: selections,
		RouterSwitches:   switches,
		ChatRequests:     chats,
		ChatDuration:     chatDur,
		BuildJobs:        jobs,
		BuildPhases:      phases,
		Commands:         commands,
		ActiveSession:    active,
		TransportErrs:    trErrors,
		ModelFailures:    modelFailures,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRouterSelection counts a routing decision.
func (m *Metrics) RecordRouterSelection(agent string, fallback bool) {
	if m == nil {
		return
	}
	m.RouterSelections.WithLabelValues(orUnknown(agent), strconv.FormatBool(fallback)).Inc()
}

// RecordAgentSwitch counts an active agent change. An empty from means the first activation.
func (m *Metrics) RecordAgentSwitch(from, to string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.RouterSwitches.WithLabelValues(from, orUnknown(to)).Inc()
}

// RecordChat records a chat completion.
func (m *Metrics) RecordChat(agent, model, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(orUnknown(agent), orUnknown(model), orUnknown(outcome)).Inc()
	m.ChatDuration.WithLabelValues(orUnknown(model)).Observe(duration.Seconds())
}

// RecordBuildStatus moves one job from one status gauge to another. Empty from
// means a new job.
func (m *Metrics) RecordBuildStatus(from, to string) {
	if m == nil || from == to {
		return
	}
	if from != "" {
		m.BuildJobs.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.BuildJobs.WithLabelValues(to).Inc()
	}
}

// RecordBuildPhase counts a phase transition.
func (m *Metrics) RecordBuildPhase(phase string) {
	if m == nil {
		return
	}
	m.BuildPhases.WithLabelValues(orUnknown(phase)).Inc()
}

// RecordCommand counts an executed natural-language command.
func (m *Metrics) RecordCommand(intent string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(orUnknown(intent)).Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	m.TransportErrs.WithLabelValues(orUnknown(transport), orUnknown(reason)).Inc()
}

// RecordModelFailure increments the failure counter for a model.
func (m *Metrics) RecordModelFailure(model string) {
	if m == nil {
		return
	}
	m.ModelFailures.WithLabelValues(orUnknown(model)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
