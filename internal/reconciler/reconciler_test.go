package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) kinds(kind string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeClient struct {
	mu        sync.Mutex
	startErr  error
	toggleErr error
	snaps     []Snapshot
	projects  []Snapshot
	gets      atomic.Int32
	pauses    int
	resumes   int
}

func (f *fakeClient) Start(context.Context, build.Config) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return "p1", nil
}

func (f *fakeClient) Get(_ context.Context, id string) (Snapshot, error) {
	n := int(f.gets.Add(1)) - 1
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snaps) == 0 {
		return Snapshot{}, errors.New("unavailable")
	}
	if n >= len(f.snaps) {
		n = len(f.snaps) - 1
	}
	snap := f.snaps[n]
	snap.ProjectID = id
	return snap, nil
}

func (f *fakeClient) List(context.Context) ([]Snapshot, error) { return f.projects, nil }

func (f *fakeClient) Pause(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return f.toggleErr
}

func (f *fakeClient) Resume(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return f.toggleErr
}

func ptr[T any](v T) *T { return &v }

func notifications(n int) []build.Notification {
	out := make([]build.Notification, n)
	for i := range out {
		out[i] = build.Notification{Title: "n", Type: build.NotifyInfo}
	}
	return out
}

func newTestReconciler(client Client) (*Reconciler, *collector) {
	sink := &collector{}
	return New(Options{Client: client, Sink: sink, Interval: time.Hour}), sink
}

func TestApplyEmitsOnlyNewNotifications(t *testing.T) {
	r, _ := newTestReconciler(&fakeClient{})
	var counts []int
	for _, n := range []int{0, 2, 2, 5} {
		events := r.Apply(Snapshot{Notifications: notifications(n)})
		count := 0
		for _, e := range events {
			if e.Kind == EventNotification {
				count++
			}
		}
		counts = append(counts, count)
	}
	require.Equal(t, []int{0, 2, 0, 3}, counts)
}

func TestApplyProgressNeverDecreases(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	statuses := []string{build.StatusActive, build.StatusActive, build.StatusActive, build.StatusCompleted}
	var seen []int
	for i, p := range []int{5, 5, 40, 100} {
		r.Apply(Snapshot{Progress: ptr(p), Status: ptr(statuses[i]), Phase: ptr("implementation")})
		seen = append(seen, r.Progress())
		if i < 3 {
			require.Empty(t, sink.kinds(EventTerminal))
		}
	}
	require.Equal(t, []int{5, 5, 40, 100}, seen)

	progress := sink.kinds(EventProgress)
	require.Len(t, progress, 3)
	require.Equal(t, "Estado: Implementando (40%)", progress[1].Label)

	terminal := sink.kinds(EventTerminal)
	require.Len(t, terminal, 1)
	require.Equal(t, 100, terminal[0].Progress)

	r.Apply(Snapshot{Progress: ptr(30)})
	r.Apply(Snapshot{Progress: ptr(250)})
	require.Equal(t, 100, r.Progress())
}

func TestApplyAgentChange(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	r.Apply(Snapshot{CurrentAgent: ptr("architect")})
	require.Empty(t, sink.kinds(EventNotification))
	require.Len(t, sink.kinds(EventAgent), 1)

	r.Apply(Snapshot{CurrentAgent: ptr("developer"), Progress: ptr(30), Phase: ptr("implementation")})
	notes := sink.kinds(EventNotification)
	require.Len(t, notes, 1)
	require.Equal(t, "Cambio de Agente", notes[0].Notification.Title)
	require.Equal(t, "Arquitecto → Desarrollador: El control ha sido transferido para continuar con la fase actual.", notes[0].Notification.Message)

	progress := sink.kinds(EventProgress)
	require.Equal(t, "Estado: Implementando (30%) - Agente: Desarrollador", progress[len(progress)-1].Label)
}

func TestApplyConsoleAndErrorCount(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	r.Apply(Snapshot{
		ConsoleOutput: []string{"npm install", "Error: falta package.json", "Traceback Exception: boom"},
		ErrorCount:    ptr(2),
	})
	require.Len(t, sink.kinds(EventConsole), 3)
	notes := sink.kinds(EventNotification)
	require.Len(t, notes, 2)
	require.Equal(t, "Error detectado en consola", notes[0].Notification.Title)
	require.Equal(t, build.NotifyError, notes[0].Notification.Type)
	require.Equal(t, "Error: falta package.json", notes[0].Notification.Message)

	counts := sink.kinds(EventErrorCount)
	require.Len(t, counts, 1)
	require.Equal(t, 2, counts[0].ErrorCount)

	r.Apply(Snapshot{ConsoleOutput: []string{"npm install", "Error: falta package.json", "Traceback Exception: boom"}, ErrorCount: ptr(2)})
	require.Len(t, sink.kinds(EventConsole), 3)
	require.Len(t, sink.kinds(EventErrorCount), 1)
}

func TestApplyPlanAndTasks(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	tasks := []build.Task{
		{Title: "Configuración del entorno", Status: build.TaskPending, Agent: "architect"},
		{Title: "Pruebas y validación", Status: build.TaskPending, Agent: "testing"},
	}
	r.Apply(Snapshot{Plan: &build.Plan{Tasks: tasks, EstimatedTime: 75}, CurrentTaskIndex: ptr(0), CurrentAgent: ptr("architect")})

	plan := sink.kinds(EventPlan)
	require.Len(t, plan, 1)
	require.Equal(t, 75, plan[0].EstimatedTime)

	notes := sink.kinds(EventNotification)
	require.Len(t, notes, 2)
	require.Equal(t, "Plan de desarrollo generado", notes[0].Notification.Title)
	require.Equal(t, "Se ha generado un plan con 2 tareas. Tiempo estimado: 1h 15m", notes[0].Notification.Message)
	require.Equal(t, "Iniciando tarea: Configuración del entorno", notes[1].Notification.Title)
	require.Equal(t, "Se está trabajando en la tarea 1 de 2", notes[1].Notification.Message)

	next := []build.Task{
		{Title: "Configuración del entorno", Status: build.TaskCompleted, Agent: "architect"},
		{Title: "Pruebas y validación", Status: build.TaskInProgress, Agent: "testing"},
	}
	r.Apply(Snapshot{Plan: &build.Plan{Tasks: next, EstimatedTime: 75}, CurrentTaskIndex: ptr(1)})

	notes = sink.kinds(EventNotification)
	require.Equal(t, "Tarea completada: Configuración del entorno", notes[2].Notification.Title)
	require.Equal(t, "Se ha completado la tarea 1 de 2", notes[2].Notification.Message)
	require.Equal(t, build.NotifySuccess, notes[2].Notification.Type)
	require.Len(t, notes, 3)
}

func TestApplyPlanWithoutEstimateUsesHour(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	r.Apply(Snapshot{Plan: &build.Plan{Tasks: []build.Task{{Title: "a"}}}})
	notes := sink.kinds(EventNotification)
	require.Equal(t, "Se ha generado un plan con 1 tareas. Tiempo estimado: 1h 0m", notes[0].Notification.Message)
}

func TestApplySwitchesAgentForTask(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	tasks := []build.Task{{Title: "a", Agent: "developer"}, {Title: "b", Agent: "testing"}}
	r.Apply(Snapshot{CurrentAgent: ptr("developer"), Plan: &build.Plan{Tasks: tasks}, CurrentTaskIndex: ptr(0)})
	r.Apply(Snapshot{Plan: &build.Plan{Tasks: tasks}, CurrentTaskIndex: ptr(1)})

	notes := sink.kinds(EventNotification)
	last := notes[len(notes)-1]
	require.Equal(t, "Cambio de agente", last.Notification.Title)
	require.Equal(t, `El agente "testing" está trabajando ahora en esta tarea`, last.Notification.Message)
}

func TestApplyMirrorsSystemMessages(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	msgs := []build.Message{
		{Role: "assistant", Content: "hola"},
		{Role: "system", Content: "✅ **Archivo creado**\n\nSe ha creado el archivo app.py"},
		{Role: "system", Content: "**"},
		{Role: "system", Content: "⚠️ cuidado"},
	}
	r.Apply(Snapshot{Messages: msgs})
	require.Len(t, sink.kinds(EventMessage), 4)

	notes := sink.kinds(EventNotification)
	require.Len(t, notes, 3)
	require.Equal(t, "✅ Archivo creado", notes[0].Notification.Title)
	require.Equal(t, "Se ha creado el archivo app.py", notes[0].Notification.Message)
	require.Equal(t, build.NotifySuccess, notes[0].Notification.Type)
	require.Equal(t, "Notificación del sistema", notes[1].Notification.Title)
	require.Equal(t, "**", notes[1].Notification.Message)
	require.Equal(t, build.NotifyInfo, notes[1].Notification.Type)
	require.Equal(t, build.NotifyWarning, notes[2].Notification.Type)

	r.Apply(Snapshot{Messages: msgs})
	require.Len(t, sink.kinds(EventMessage), 4)
}

func TestApplyToleratesMissingFields(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	r.Apply(Snapshot{Progress: ptr(40), Notifications: notifications(2)})
	events := r.Apply(Snapshot{})
	require.Empty(t, events)
	require.Equal(t, 40, r.Progress())
	require.Len(t, sink.kinds(EventNotification), 2)
}

func TestSequenceGuardDropsStaleResponses(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	r.Reset("p1")
	r.applySeq(2, Snapshot{ProjectID: "p1", Progress: ptr(40)})
	r.applySeq(1, Snapshot{ProjectID: "p1", Progress: ptr(10), Notifications: notifications(1)})
	r.applySeq(3, Snapshot{ProjectID: "other", Notifications: notifications(1)})
	require.Equal(t, 40, r.Progress())
	require.Empty(t, sink.kinds(EventNotification))
}

func TestMonitorPollsImmediatelyAndStopsOnTerminal(t *testing.T) {
	client := &fakeClient{snaps: []Snapshot{
		{Status: ptr(build.StatusActive), Progress: ptr(10)},
		{Status: ptr(build.StatusCompleted), Progress: ptr(100)},
	}}
	r, sink := newTestReconciler(client)
	r.interval = 10 * time.Millisecond

	r.Monitor(context.Background(), "p1")
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not stop on terminal status")
	}
	calls := client.gets.Load()
	require.GreaterOrEqual(t, calls, int32(2))
	require.Len(t, sink.kinds(EventTerminal), 1)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, calls, client.gets.Load())
}

func TestMonitorPollsBeforeFirstTick(t *testing.T) {
	client := &fakeClient{snaps: []Snapshot{{Status: ptr(build.StatusActive)}}}
	r, _ := newTestReconciler(client)
	r.Monitor(context.Background(), "p1")
	defer r.Stop()
	require.Eventually(t, func() bool { return client.gets.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPollErrorsAreRetried(t *testing.T) {
	client := &fakeClient{}
	r, sink := newTestReconciler(client)
	r.interval = 5 * time.Millisecond
	r.Monitor(context.Background(), "p1")
	require.Eventually(t, func() bool { return client.gets.Load() >= 3 }, time.Second, 5*time.Millisecond)
	r.Stop()
	require.Empty(t, sink.kinds(EventError))
}

func TestStopIsIdempotent(t *testing.T) {
	r, _ := newTestReconciler(&fakeClient{snaps: []Snapshot{{Status: ptr(build.StatusActive)}}})
	r.Stop()
	r.Monitor(context.Background(), "p1")
	r.Stop()
	r.Stop()
	<-r.Done()
}

func TestStartFailureDoesNotPoll(t *testing.T) {
	client := &fakeClient{startErr: errors.New("Se requiere una descripción del proyecto")}
	r, sink := newTestReconciler(client)

	_, err := r.Start(context.Background(), build.Config{})
	require.Error(t, err)
	errs := sink.kinds(EventError)
	require.Len(t, errs, 1)
	require.Equal(t, "❌ Error: Se requiere una descripción del proyecto", errs[0].Err)

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, client.gets.Load())
	require.Empty(t, r.ProjectID())
}

func TestStartMonitorsNewBuild(t *testing.T) {
	client := &fakeClient{snaps: []Snapshot{{Status: ptr(build.StatusActive)}}}
	r, _ := newTestReconciler(client)
	id, err := r.Start(context.Background(), build.Config{Description: "x"})
	require.NoError(t, err)
	defer r.Stop()
	require.Equal(t, "p1", id)
	require.Equal(t, "p1", r.ProjectID())
}

func TestPauseFlipsOnlyOnSuccess(t *testing.T) {
	client := &fakeClient{snaps: []Snapshot{{}}, toggleErr: errors.New("Proyecto no encontrado o no está activo")}
	r, sink := newTestReconciler(client)
	ctx := context.Background()

	require.ErrorIs(t, r.Pause(ctx), ErrNoProject)

	r.Monitor(ctx, "p1")
	defer r.Stop()

	require.Error(t, r.Pause(ctx))
	require.False(t, r.Paused())
	require.Len(t, sink.kinds(EventError), 1)

	client.mu.Lock()
	client.toggleErr = nil
	client.mu.Unlock()

	require.NoError(t, r.Pause(ctx))
	require.True(t, r.Paused())
	require.ErrorIs(t, r.Pause(ctx), ErrNotBuilding)

	status := sink.kinds(EventStatus)
	require.Equal(t, LabelPaused, status[len(status)-1].Label)

	require.NoError(t, r.Resume(ctx))
	require.False(t, r.Paused())
	status = sink.kinds(EventStatus)
	require.Equal(t, LabelBuilding, status[len(status)-1].Label)
	require.Equal(t, 2, client.pauses)
	require.Equal(t, 1, client.resumes)
}

func TestRestoreActive(t *testing.T) {
	client := &fakeClient{
		snaps: []Snapshot{{Status: ptr(build.StatusPaused)}},
		projects: []Snapshot{
			{ProjectID: "done", Status: ptr(build.StatusCompleted)},
			{ProjectID: "held", Status: ptr(build.StatusPaused)},
			{ProjectID: "live", Status: ptr(build.StatusActive)},
		},
	}
	r, _ := newTestReconciler(client)
	id, ok, err := r.RestoreActive(context.Background())
	require.NoError(t, err)
	defer r.Stop()
	require.True(t, ok)
	require.Equal(t, "held", id)
	require.True(t, r.Paused())

	empty, _ := newTestReconciler(&fakeClient{projects: []Snapshot{{ProjectID: "x", Status: ptr(build.StatusError)}}})
	_, ok, err = empty.RestoreActive(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLabels(t *testing.T) {
	require.Equal(t, "--:--", FormatTimeEstimate(0))
	require.Equal(t, "45m", FormatTimeEstimate(45))
	require.Equal(t, "1h 15m", FormatTimeEstimate(75))
	require.Equal(t, "2h 0m", FormatTimeEstimate(120))
	require.Equal(t, "Analizando requisitos", PhaseLabel("analysis"))
	require.Equal(t, "custom", PhaseLabel("custom"))
	require.Equal(t, "QA Tester", AgentName("testing"))
	require.Equal(t, "Estado: Completado (100%)", StatusLine("completed", 100, "unknown"))
}

func taskSnapshot(idx int, statuses ...string) Snapshot {
	titles := []string{"A", "B", "C", "D"}
	tasks := make([]build.Task, len(statuses))
	for i, s := range statuses {
		tasks[i] = build.Task{Title: titles[i], Status: s}
	}
	return Snapshot{Plan: &build.Plan{Tasks: tasks, EstimatedTime: 30}, CurrentTaskIndex: ptr(idx)}
}

func noteTitles(sink *collector) map[string]int {
	out := map[string]int{}
	for _, e := range sink.kinds(EventNotification) {
		out[e.Notification.Title]++
	}
	return out
}

func TestApplyBuilderTaskSequenceEmitsEachTransitionOnce(t *testing.T) {
	const (
		p = build.TaskPending
		i = build.TaskInProgress
		c = build.TaskCompleted
	)
	r, sink := newTestReconciler(&fakeClient{})
	steps := []Snapshot{
		taskSnapshot(0, p, p, p, p),
		taskSnapshot(0, i, p, p, p),
		taskSnapshot(1, c, i, p, p),
		taskSnapshot(2, c, c, i, p),
		taskSnapshot(2, c, c, c, p),
		taskSnapshot(2, c, c, c, p),
		taskSnapshot(3, c, c, c, i),
		taskSnapshot(3, c, c, c, c),
		taskSnapshot(3, c, c, c, c),
	}
	for n, snap := range steps {
		events := r.Apply(snap)
		if n == 5 || n == 8 {
			require.Empty(t, events, "repeated snapshot %d produced events", n)
		}
	}

	titles := noteTitles(sink)
	for _, name := range []string{"A", "B", "C", "D"} {
		require.Equal(t, 1, titles["Tarea completada: "+name], "completion of %s", name)
		require.LessOrEqual(t, titles["Iniciando tarea: "+name], 1, "start of %s", name)
	}
	require.Equal(t, 1, titles["Iniciando tarea: A"])
	require.Equal(t, 1, titles["Iniciando tarea: D"])

	perTask := map[int][]string{}
	for _, e := range sink.kinds(EventTask) {
		perTask[e.TaskIndex] = append(perTask[e.TaskIndex], e.TaskStatus)
	}
	require.Equal(t, []string{i, c}, perTask[0])
	require.Equal(t, []string{i, c}, perTask[2])
	require.Equal(t, []string{i, c}, perTask[3])
}

func TestApplyTracksAppendedTasks(t *testing.T) {
	r, sink := newTestReconciler(&fakeClient{})
	r.Apply(taskSnapshot(0, build.TaskPending, build.TaskPending))
	r.Apply(taskSnapshot(2, build.TaskCompleted, build.TaskCompleted, build.TaskPending))

	var added []Event
	for _, e := range sink.kinds(EventTask) {
		if e.TaskIndex == 2 {
			added = append(added, e)
		}
	}
	require.Len(t, added, 1)
	require.Equal(t, "C", added[0].Label)
	require.Equal(t, build.TaskPending, added[0].TaskStatus)
	require.Equal(t, 1, noteTitles(sink)["Plan ampliado"])

	r.Apply(taskSnapshot(2, build.TaskCompleted, build.TaskCompleted, build.TaskInProgress))
	r.Apply(taskSnapshot(2, build.TaskCompleted, build.TaskCompleted, build.TaskCompleted))
	var statuses []string
	for _, e := range sink.kinds(EventTask) {
		if e.TaskIndex == 2 {
			statuses = append(statuses, e.TaskStatus)
		}
	}
	require.Equal(t, []string{build.TaskPending, build.TaskInProgress, build.TaskCompleted}, statuses)
	require.Equal(t, 1, noteTitles(sink)["Tarea completada: C"])
	require.Equal(t, 1, noteTitles(sink)["Plan ampliado"])
}

func TestMonitorWithoutProjectDoesNotPoll(t *testing.T) {
	client := &fakeClient{snaps: []Snapshot{{Status: ptr(build.StatusActive)}}}
	r, _ := newTestReconciler(client)
	r.interval = 5 * time.Millisecond

	r.Monitor(context.Background(), "")
	time.Sleep(30 * time.Millisecond)
	require.Zero(t, client.gets.Load())
	require.Empty(t, r.ProjectID())
	require.ErrorIs(t, r.Pause(context.Background()), ErrNoProject)
	r.Stop()
}

type gatedSink struct {
	mu       sync.Mutex
	entered  chan struct{}
	release  chan struct{}
	progress []int
}

func (g *gatedSink) Emit(e Event) {
	if e.Kind != EventProgress {
		return
	}
	if e.Progress == 10 {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.progress = append(g.progress, e.Progress)
}

func TestConcurrentPollsReachSinkInOrder(t *testing.T) {
	sink := &gatedSink{entered: make(chan struct{}), release: make(chan struct{})}
	r := New(Options{Client: &fakeClient{}, Sink: sink, Interval: time.Hour})
	r.Reset("p1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.applySeq(1, Snapshot{ProjectID: "p1", Progress: ptr(10)})
	}()
	<-sink.entered
	go func() {
		defer wg.Done()
		r.applySeq(2, Snapshot{ProjectID: "p1", Progress: ptr(20)})
	}()
	time.Sleep(50 * time.Millisecond)
	close(sink.release)
	wg.Wait()

	require.Equal(t, []int{10, 20}, sink.progress)
}
