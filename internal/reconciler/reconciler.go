// Package reconciler mirrors a running build and turns growth in its job
// record into discrete UI events.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
)

// DefaultInterval is the poll period.
const DefaultInterval = 3 * time.Second

// Event kinds.
const (
	EventProgress     = "progress"
	EventStatus       = "status"
	EventAgent        = "agent"
	EventErrorCount   = "error_count"
	EventNotification = "notification"
	EventConsole      = "console"
	EventMessage      = "message"
	EventPlan         = "plan"
	EventTask         = "task"
	EventTerminal     = "terminal"
	EventError        = "error"
)

// Event is one UI update.
type Event struct {
	Kind      string `json:"kind"`
	ProjectID string `json:"project_id,omitempty"`

	Progress   int    `json:"progress,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Label      string `json:"label,omitempty"`
	Status     string `json:"status,omitempty"`
	Agent      string `json:"agent,omitempty"`
	ErrorCount int    `json:"error_count,omitempty"`

	Notification *build.Notification `json:"notification,omitempty"`
	Line         string              `json:"line,omitempty"`
	Message      *build.Message      `json:"message,omitempty"`

	Tasks         []build.Task `json:"tasks,omitempty"`
	EstimatedTime int          `json:"estimated_time,omitempty"`
	TaskIndex     int          `json:"task_index,omitempty"`
	TaskStatus    string       `json:"task_status,omitempty"`

	Err string `json:"error,omitempty"`
}

// Sink receives events in order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

var (
	// ErrNoProject is returned by controls used before a build is monitored.
	ErrNoProject = errors.New("no build is being monitored")
	// ErrNotBuilding is returned when pausing or resuming a finished or
	// already-toggled build.
	ErrNotBuilding = errors.New("build is not in a state that allows this action")
)

// mirror is the last-seen job state used to compute deltas.
type mirror struct {
	progress      int
	phase         string
	agent         string
	status        string
	errorCount    int
	notifications int
	console       int
	messages      int
	// tasks is the local view; reported holds the statuses the server last
	// sent, so a local assumption is never mistaken for a server change.
	tasks     []build.Task
	reported  []string
	started   []bool
	finished  []bool
	taskIndex int
}

func newMirror() mirror {
	return mirror{taskIndex: -1}
}

func (m *mirror) track(tasks []build.Task) {
	for _, t := range tasks {
		m.tasks = append(m.tasks, t)
		m.reported = append(m.reported, t.Status)
		m.started = append(m.started, false)
		m.finished = append(m.finished, t.Status == build.TaskCompleted)
	}
}

// Options configures a Reconciler.
type Options struct {
	Client   Client
	Sink     Sink
	Interval time.Duration
	Logger   *zap.Logger
	Now      func() time.Time
}

// Reconciler polls one build at a time.
type Reconciler struct {
	client   Client
	sink     Sink
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
	// emitMu is taken before mu is released so events reach the sink in
	// the order they were computed.
	emitMu    sync.Mutex
	projectID string
	building  bool
	paused    bool
	state     mirror
	issued    uint64
	applied   uint64
	cancel    context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
}

// New returns a Reconciler.
func New(opts Options) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = SinkFunc(func(Event) {})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	closed := make(chan struct{})
	close(closed)
	return &Reconciler{
		client:   opts.Client,
		sink:     opts.Sink,
		interval: opts.Interval,
		logger:   opts.Logger,
		now:      opts.Now,
		state:    newMirror(),
		done:     closed,
	}
}

// Start asks the backend to begin a build and monitors it. A failed request
// emits an error event and does not start polling.
func (r *Reconciler) Start(ctx context.Context, cfg build.Config) (string, error) {
	id, err := r.client.Start(ctx, cfg)
	if err != nil {
		r.emitOne(Event{Kind: EventError, Err: "❌ Error: " + err.Error()})
		return "", err
	}
	r.Monitor(ctx, id)
	return id, nil
}

// Monitor resets the mirror and polls projectID immediately and then every
// interval until the job is terminal, Stop is called or ctx ends. A blank
// projectID only clears the mirror.
func (r *Reconciler) Monitor(ctx context.Context, projectID string) {
	r.monitor(ctx, projectID, false)
}

func (r *Reconciler) monitor(ctx context.Context, projectID string, paused bool) {
	r.Reset(projectID)
	if strings.TrimSpace(projectID) == "" {
		r.mu.Lock()
		r.projectID = ""
		r.building = false
		r.mu.Unlock()
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	r.paused = paused
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(loopCtx, projectID, done)
}

// Reset stops any polling and points an empty mirror at projectID. Snapshots
// can then be fed through Apply, for example from a WatchSource.
func (r *Reconciler) Reset(projectID string) {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.projectID = projectID
	r.building = true
	r.paused = false
	r.state = newMirror()
	r.issued, r.applied = 0, 0
}

func (r *Reconciler) loop(ctx context.Context, projectID string, done chan struct{}) {
	defer r.wg.Done()
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var polls sync.WaitGroup
	defer polls.Wait()

	poll := func() {
		seq := r.nextSeq()
		polls.Add(1)
		go func() {
			defer polls.Done()
			r.poll(ctx, projectID, seq)
		}()
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

func (r *Reconciler) nextSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	return r.issued
}

func (r *Reconciler) poll(ctx context.Context, projectID string, seq uint64) {
	snap, err := r.client.Get(ctx, projectID)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("poll build", zap.String("project_id", projectID), zap.Error(err))
		}
		return
	}
	r.applySeq(seq, snap)
}

// applySeq applies snap unless a response from a later poll was applied
// already.
func (r *Reconciler) applySeq(seq uint64, snap Snapshot) {
	r.mu.Lock()
	if seq <= r.applied || (snap.ProjectID != "" && snap.ProjectID != r.projectID) {
		r.mu.Unlock()
		return
	}
	r.applied = seq
	events, terminal := r.diff(snap)
	r.publish(events)
	if terminal {
		r.halt()
	}
}

// Apply folds one snapshot into the mirror, emits the resulting events and
// returns them. A terminal status stops polling.
func (r *Reconciler) Apply(snap Snapshot) []Event {
	r.mu.Lock()
	events, terminal := r.diff(snap)
	r.publish(events)
	if terminal {
		r.halt()
	}
	return events
}

// publish releases r.mu, which the caller holds, and hands events to the
// sink before any later batch.
func (r *Reconciler) publish(events []Event) {
	r.emitMu.Lock()
	r.mu.Unlock()
	defer r.emitMu.Unlock()
	for _, e := range events {
		r.sink.Emit(e)
	}
}

func (r *Reconciler) emitOne(e Event) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.sink.Emit(e)
}

// diff computes events for snap and updates the mirror. Callers hold r.mu.
func (r *Reconciler) diff(snap Snapshot) ([]Event, bool) {
	st := &r.state
	id := r.projectID
	if id == "" {
		id = snap.ProjectID
	}
	var events []Event
	add := func(e Event) {
		e.ProjectID = id
		events = append(events, e)
	}
	note := func(title, message, kind string) {
		add(Event{Kind: EventNotification, Notification: &build.Notification{
			Title: title, Message: message, Type: kind, Timestamp: r.now().UTC(),
		}})
	}

	changed := false
	if snap.Progress != nil {
		p := min(max(*snap.Progress, 0), 100)
		if p > st.progress {
			st.progress = p
			changed = true
		}
	}
	if snap.Phase != nil && *snap.Phase != st.phase {
		st.phase = *snap.Phase
		changed = true
	}

	if snap.CurrentAgent != nil && *snap.CurrentAgent != "" && *snap.CurrentAgent != st.agent {
		prev := st.agent
		st.agent = *snap.CurrentAgent
		changed = true
		if prev != "" {
			note("Cambio de Agente",
				fmt.Sprintf("%s → %s: El control ha sido transferido para continuar con la fase actual.", AgentName(prev), AgentName(st.agent)),
				build.NotifyInfo)
		}
		add(Event{Kind: EventAgent, Agent: st.agent, Label: AgentName(st.agent)})
	}
	if changed {
		add(Event{Kind: EventProgress, Progress: st.progress, Phase: st.phase, Agent: st.agent,
			Label: StatusLine(st.phase, st.progress, st.agent)})
	}

	if snap.ErrorCount != nil && *snap.ErrorCount != 0 && *snap.ErrorCount != st.errorCount {
		st.errorCount = *snap.ErrorCount
		add(Event{Kind: EventErrorCount, ErrorCount: st.errorCount})
	}

	if len(snap.Notifications) > st.notifications {
		for i := st.notifications; i < len(snap.Notifications); i++ {
			n := snap.Notifications[i]
			add(Event{Kind: EventNotification, Notification: &n})
		}
		st.notifications = len(snap.Notifications)
	}

	if len(snap.ConsoleOutput) > st.console {
		for _, line := range snap.ConsoleOutput[st.console:] {
			add(Event{Kind: EventConsole, Line: line})
			if strings.Contains(line, "Error:") || strings.Contains(line, "Exception:") {
				note("Error detectado en consola", line, build.NotifyError)
			}
		}
		st.console = len(snap.ConsoleOutput)
	}

	if snap.Plan != nil && len(snap.Plan.Tasks) > 0 {
		if len(st.tasks) == 0 {
			st.track(snap.Plan.Tasks)
			est := snap.Plan.EstimatedTime
			if est == 0 {
				est = 60
			}
			add(Event{Kind: EventPlan, Tasks: append([]build.Task(nil), st.tasks...), EstimatedTime: est})
			note("Plan de desarrollo generado",
				fmt.Sprintf("Se ha generado un plan con %d tareas. Tiempo estimado: %s", len(st.tasks), FormatTimeEstimate(est)),
				build.NotifyInfo)
		} else {
			known := len(st.tasks)
			for i, task := range snap.Plan.Tasks[:min(known, len(snap.Plan.Tasks))] {
				if st.reported[i] == task.Status {
					continue
				}
				st.reported[i] = task.Status
				r.updateTask(i, task.Status, add, note)
			}
			if added := snap.Plan.Tasks[min(known, len(snap.Plan.Tasks)):]; len(added) > 0 {
				st.track(added)
				for i := known; i < len(st.tasks); i++ {
					add(Event{Kind: EventTask, TaskIndex: i, TaskStatus: st.tasks[i].Status, Label: st.tasks[i].Title})
				}
				note("Plan ampliado",
					fmt.Sprintf("Se han añadido %d tareas al plan (%d en total)", len(added), len(st.tasks)),
					build.NotifyInfo)
			}
		}
	}

	if snap.CurrentTaskIndex != nil {
		idx := *snap.CurrentTaskIndex
		if idx != st.taskIndex && idx >= 0 && idx < len(st.tasks) {
			r.setCurrentTask(idx, add, note)
		}
	}

	if len(snap.Messages) > st.messages {
		for i := st.messages; i < len(snap.Messages); i++ {
			m := snap.Messages[i]
			add(Event{Kind: EventMessage, Message: &m})
			if m.Role == "system" {
				title, body, kind := systemNotification(m.Content)
				note(title, body, kind)
			}
		}
		st.messages = len(snap.Messages)
	}

	terminal := false
	if snap.Status != nil && *snap.Status != st.status {
		st.status = *snap.Status
		switch st.status {
		case build.StatusCompleted, build.StatusError:
			terminal = true
			r.building = false
			add(Event{Kind: EventTerminal, Status: st.status, Progress: st.progress})
		case build.StatusPaused:
			r.paused = true
			add(Event{Kind: EventStatus, Status: st.status, Label: LabelPaused})
		case build.StatusActive:
			if r.paused {
				r.paused = false
				add(Event{Kind: EventStatus, Status: st.status, Label: LabelBuilding})
			}
		}
	}
	return events, terminal
}

// updateTask applies a server-reported status change for task i.
func (r *Reconciler) updateTask(i int, status string, add func(Event), note func(string, string, string)) {
	st := &r.state
	if st.tasks[i].Status != status {
		st.tasks[i].Status = status
		add(Event{Kind: EventTask, TaskIndex: i, TaskStatus: status, Label: st.tasks[i].Title})
	}
	if status == build.TaskCompleted && i == st.taskIndex && !st.finished[i] {
		st.finished[i] = true
		st.taskIndex++
		note("Tarea completada: "+st.tasks[i].Title,
			fmt.Sprintf("Se ha completado la tarea %d de %d", i+1, len(st.tasks)),
			build.NotifySuccess)
	}
}

// setCurrentTask follows the server's current task index. A task already
// completed is only pointed at; any other task is started once.
func (r *Reconciler) setCurrentTask(i int, add func(Event), note func(string, string, string)) {
	st := &r.state
	st.taskIndex = i
	if st.tasks[i].Status == build.TaskCompleted || st.started[i] {
		return
	}
	st.started[i] = true
	if st.tasks[i].Status != build.TaskInProgress {
		st.tasks[i].Status = build.TaskInProgress
		add(Event{Kind: EventTask, TaskIndex: i, TaskStatus: build.TaskInProgress, Label: st.tasks[i].Title})
	}
	note("Iniciando tarea: "+st.tasks[i].Title,
		fmt.Sprintf("Se está trabajando en la tarea %d de %d", i+1, len(st.tasks)),
		build.NotifyInfo)
	if agent := st.tasks[i].Agent; agent != "" && agent != st.agent {
		st.agent = agent
		note("Cambio de agente", fmt.Sprintf("El agente %q está trabajando ahora en esta tarea", agent), build.NotifyInfo)
	}
}

// systemNotification derives a notification from a system message: the first
// line without markdown emphasis is the title and the rest is the body.
func systemNotification(content string) (title, body, kind string) {
	lines := strings.Split(content, "\n")
	title = strings.TrimSpace(strings.NewReplacer("*", "", "#", "").Replace(lines[0]))
	body = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	if title == "" {
		title = "Notificación del sistema"
	}
	if body == "" {
		body = content
	}
	switch {
	case strings.Contains(content, "❌"):
		kind = build.NotifyError
	case strings.Contains(content, "⚠️"):
		kind = build.NotifyWarning
	case strings.Contains(content, "✅"):
		kind = build.NotifySuccess
	default:
		kind = build.NotifyInfo
	}
	return title, body, kind
}

// halt cancels the poll loop without waiting for it.
func (r *Reconciler) halt() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop cancels polling and waits for the loop to exit. Calling it again is a
// no-op.
func (r *Reconciler) Stop() {
	r.halt()
	r.wg.Wait()
}

// Done is closed when the current poll loop exits.
func (r *Reconciler) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// ProjectID returns the monitored build id.
func (r *Reconciler) ProjectID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.projectID
}

// Paused reports the local pause flag.
func (r *Reconciler) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Progress returns the mirrored progress.
func (r *Reconciler) Progress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.progress
}

// Pause asks the backend to pause the build. The local flag flips only when
// the backend confirms.
func (r *Reconciler) Pause(ctx context.Context) error {
	return r.toggle(ctx, true)
}

// Resume asks the backend to resume the build.
func (r *Reconciler) Resume(ctx context.Context) error {
	return r.toggle(ctx, false)
}

func (r *Reconciler) toggle(ctx context.Context, pause bool) error {
	r.mu.Lock()
	id, building, paused := r.projectID, r.building, r.paused
	r.mu.Unlock()
	if id == "" {
		return ErrNoProject
	}
	if !building || paused == pause {
		return ErrNotBuilding
	}

	call, verb := r.client.Resume, "reanudar"
	if pause {
		call, verb = r.client.Pause, "pausar"
	}
	if err := call(ctx, id); err != nil {
		r.emitOne(Event{Kind: EventError, ProjectID: id, Err: fmt.Sprintf("❌ Error: no se pudo %s la construcción: %v", verb, err)})
		return err
	}

	r.mu.Lock()
	r.paused = pause
	// polls issued before the toggle may report the old status
	r.applied = r.issued
	if pause {
		r.state.status = build.StatusPaused
	} else {
		r.state.status = build.StatusActive
	}

	if pause {
		r.publish([]Event{{Kind: EventStatus, ProjectID: id, Status: build.StatusPaused, Label: LabelPaused,
			Line: "⏸️ Construcción pausada. Puedes reanudarla cuando quieras."}})
	} else {
		r.publish([]Event{{Kind: EventStatus, ProjectID: id, Status: build.StatusActive, Label: LabelBuilding,
			Line: "▶️ Construcción reanudada. Continuando con el proceso..."}})
	}
	return nil
}

// RestoreActive finds the newest active or paused build and monitors it. It
// reports false when there is none.
func (r *Reconciler) RestoreActive(ctx context.Context) (string, bool, error) {
	projects, err := r.client.List(ctx)
	if err != nil {
		return "", false, err
	}
	for _, p := range projects {
		status := p.StatusValue()
		if status != build.StatusActive && status != build.StatusPaused {
			continue
		}
		r.monitor(ctx, p.ProjectID, status == build.StatusPaused)
		return p.ProjectID, true, nil
	}
	return "", false, nil
}
