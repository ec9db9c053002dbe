package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
)

// Development speeds.
const (
	SpeedFast     = "fast"
	SpeedBalanced = "balanced"
	SpeedThorough = "thorough"
)

// Models accepted for a build; anything else falls back to DefaultModel.
var Models = []string{"openai", "anthropic", "gemini"}

// DefaultModel is used when a build names no known model.
const DefaultModel = "openai"

type speedProfile struct {
	notifyInterval time.Duration
	factor         float64
}

var speeds = map[string]speedProfile{
	SpeedFast:     {notifyInterval: 5 * time.Second, factor: 0.5},
	SpeedBalanced: {notifyInterval: 10 * time.Second, factor: 1.0},
	SpeedThorough: {notifyInterval: 15 * time.Second, factor: 1.5},
}

var notificationIcons = map[string]string{
	NotifyInfo:     "ℹ️",
	NotifySuccess:  "✅",
	NotifyWarning:  "⚠️",
	NotifyError:    "❌",
	NotifyProgress: "🔄",
}

const pauseTick = 50 * time.Millisecond

// Options configures a Builder.
type Options struct {
	Store Store
	// FS receives generated project files; it must allow writes.
	FS *tools.Filesystem
	// Terminal runs dependency installs when execution is enabled.
	Terminal *tools.Terminal
	// StepDelay is the base pause between build steps before the speed factor.
	StepDelay time.Duration
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Now       func() time.Time
}

// Builder runs build jobs in background goroutines.
type Builder struct {
	store     Store
	fs        *tools.Filesystem
	term      *tools.Terminal
	stepDelay time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	paused     map[string]bool
	lastNotify map[string]time.Time
	subs       map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan Job
}

// New returns a Builder. Close stops running builds.
func New(opts Options) (*Builder, error) {
	if opts.FS == nil {
		return nil, errors.New("build workspace is required")
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Builder{
		store:      opts.Store,
		fs:         opts.FS,
		term:       opts.Terminal,
		stepDelay:  opts.StepDelay,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
		ctx:        ctx,
		cancel:     cancel,
		paused:     make(map[string]bool),
		lastNotify: make(map[string]time.Time),
		subs:       make(map[string]map[*subscriber]struct{}),
	}, nil
}

// Close cancels running builds and waits for them to stop.
func (b *Builder) Close() {
	b.cancel()
	b.wg.Wait()
}

// Start validates cfg, stores a new job and launches its build.
func (b *Builder) Start(ctx context.Context, cfg Config) (Job, error) {
	desc := strings.TrimSpace(cfg.Description)
	if desc == "" {
		return Job{}, ErrDescriptionRequired
	}
	model := strings.ToLower(strings.TrimSpace(cfg.Model))
	if !validModel(model) {
		model = DefaultModel
	}
	speed := strings.ToLower(strings.TrimSpace(cfg.DevelopmentSpeed))
	if _, ok := speeds[speed]; !ok {
		speed = SpeedBalanced
	}
	agents := AllAgents()
	if cfg.Agents != nil {
		agents = *cfg.Agents
	}

	now := b.now().UTC()
	id := uuid.NewString()
	job := Job{
		ID:               id,
		Name:             ProjectName(desc),
		Description:      desc,
		Status:           StatusActive,
		Phase:            PhaseInitial,
		CurrentStep:      "Iniciando construcción",
		Model:            model,
		DevelopmentSpeed: speed,
		Agents:           agents,
		Notifications:    []Notification{},
		ConsoleOutput:    []string{},
		Messages:         []Message{},
		Files:            []string{},
		WorkspacePath:    path.Join("projects", id),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	b.notify(&job, "🚀 Construcción iniciada", "El constructor autónomo está analizando tu solicitud y preparando el entorno de desarrollo.", NotifyInfo, true)

	if err := b.store.Create(ctx, job); err != nil {
		return Job{}, err
	}
	b.metrics.RecordBuildStatus("", StatusActive)
	b.metrics.RecordBuildPhase(PhaseInitial)
	b.logger.Info("build started", zap.String("project_id", id), zap.String("model", model), zap.String("speed", speed))

	b.wg.Add(1)
	go b.run(id)
	return job, nil
}

func validModel(m string) bool {
	for _, v := range Models {
		if m == v {
			return true
		}
	}
	return false
}

// Get returns one job.
func (b *Builder) Get(ctx context.Context, id string) (Job, error) {
	return b.store.Get(ctx, id)
}

// List returns all jobs, newest first.
func (b *Builder) List(ctx context.Context) ([]Job, error) {
	return b.store.List(ctx)
}

// Delete removes a finished job and its generated files.
func (b *Builder) Delete(ctx context.Context, id string) error {
	job, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.Terminal() {
		return ErrRunning
	}
	if err := b.store.Delete(ctx, id); err != nil {
		return err
	}
	if job.WorkspacePath != "" {
		if err := b.fs.Delete(job.WorkspacePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.logger.Warn("remove project files", zap.String("project_id", id), zap.Error(err))
		}
	}
	return nil
}

// Pause holds an active build at its next step boundary.
func (b *Builder) Pause(ctx context.Context, id string) (Job, error) {
	return b.transition(ctx, id, StatusActive, StatusPaused, func(j *Job) {
		j.ConsoleOutput = append(j.ConsoleOutput, "Construcción pausada por el usuario")
	})
}

// Resume continues a paused build.
func (b *Builder) Resume(ctx context.Context, id string) (Job, error) {
	return b.transition(ctx, id, StatusPaused, StatusActive, func(j *Job) {
		j.ConsoleOutput = append(j.ConsoleOutput, "Construcción reanudada")
	})
}

func (b *Builder) transition(ctx context.Context, id, from, to string, fn func(*Job)) (Job, error) {
	job, err := b.update(ctx, id, func(j *Job) error {
		if j.Status != from {
			return ErrNotActive
		}
		j.Status = to
		fn(j)
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	b.mu.Lock()
	b.paused[id] = to == StatusPaused
	b.mu.Unlock()
	b.logger.Info("build status changed", zap.String("project_id", id), zap.String("status", to))
	return job, nil
}

// PostMessage records a user message on a job and returns the reply.
func (b *Builder) PostMessage(ctx context.Context, id, text string) (string, Job, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", Job{}, ErrEmptyMessage
	}
	var reply string
	job, err := b.update(ctx, id, func(j *Job) error {
		now := b.now().UTC()
		reply = replyTo(*j, text)
		j.Messages = append(j.Messages,
			Message{Role: "user", Content: text, Timestamp: now},
			Message{Role: "assistant", Content: reply, Timestamp: now},
		)
		return nil
	})
	if err != nil {
		return "", Job{}, err
	}
	return reply, job, nil
}

func replyTo(j Job, text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, []string{"mostrar plan", "ver plan", "chequeo", "verificación"}) {
		plan := "No hay un plan detallado disponible todavía para este proyecto."
		if j.Plan != nil && j.Plan.Summary != "" {
			plan = j.Plan.Summary
		}
		return "Aquí tienes el plan de desarrollo actual:\n\n" + plan
	}
	if strings.Contains(lower, "archivos") {
		if len(j.Files) == 0 {
			return "Aún no se han generado archivos para este proyecto."
		}
		var sb strings.Builder
		sb.WriteString("Archivos generados hasta ahora:\n")
		for _, f := range j.Files {
			sb.WriteString("\n- ")
			sb.WriteString(f)
		}
		return sb.String()
	}
	return "Gracias por tu mensaje. Lo tendré en cuenta durante la construcción del proyecto."
}

// Subscribe streams job snapshots after every change. The channel keeps only
// the latest snapshot; call the returned func to unsubscribe.
func (b *Builder) Subscribe(id string) (<-chan Job, func()) {
	sub := &subscriber{ch: make(chan Job, 1)}
	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[*subscriber]struct{})
	}
	b.subs[id][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[id], sub)
			if len(b.subs[id]) == 0 {
				delete(b.subs, id)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Builder) publish(job Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[job.ID] {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- job.Clone()
	}
}

// update applies fn through the store, records status and phase metrics and
// publishes the new snapshot.
func (b *Builder) update(ctx context.Context, id string, fn func(*Job) error) (Job, error) {
	var prevStatus, prevPhase string
	job, err := b.store.Update(ctx, id, func(j *Job) error {
		prevStatus, prevPhase = j.Status, j.Phase
		if err := fn(j); err != nil {
			return err
		}
		j.UpdatedAt = b.now().UTC()
		return nil
	})
	if err != nil {
		return Job{}, err
	}
	if job.Status != prevStatus {
		b.metrics.RecordBuildStatus(prevStatus, job.Status)
	}
	if job.Phase != prevPhase {
		b.metrics.RecordBuildPhase(job.Phase)
	}
	b.publish(job)
	return job, nil
}

// notify appends a notification unless an info notification arrives inside
// the speed's throttle window. Errors, successes and progress are mirrored
// as system messages.
func (b *Builder) notify(j *Job, title, message, kind string, force bool) {
	now := b.now().UTC()
	interval := speeds[j.DevelopmentSpeed].notifyInterval

	b.mu.Lock()
	last, seen := b.lastNotify[j.ID]
	if !force && kind == NotifyInfo && seen && now.Sub(last) < interval {
		b.mu.Unlock()
		return
	}
	b.lastNotify[j.ID] = now
	b.mu.Unlock()

	j.Notifications = append(j.Notifications, Notification{Title: title, Message: message, Type: kind, Timestamp: now})
	switch kind {
	case NotifyError, NotifySuccess, NotifyProgress:
		j.Messages = append(j.Messages, Message{
			Role:      "system",
			Content:   fmt.Sprintf("%s **%s**\n\n%s", notificationIcons[kind], title, message),
			Timestamp: now,
		})
	}
}

func (b *Builder) run(id string) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.paused, id)
		delete(b.lastNotify, id)
		b.mu.Unlock()
	}()

	err := b.process(b.ctx, id)
	if err == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if b.ctx.Err() != nil {
		b.logger.Warn("build interrupted", zap.String("project_id", id))
		_, _ = b.update(ctx, id, func(j *Job) error {
			if j.Terminal() {
				return nil
			}
			j.Status = StatusError
			j.CurrentStep = "Error: construcción interrumpida"
			j.ErrorCount++
			return nil
		})
		return
	}
	b.fail(ctx, id, err)
}

func (b *Builder) fail(ctx context.Context, id string, cause error) {
	b.logger.Error("build failed", zap.String("project_id", id), zap.Error(cause))
	_, err := b.update(ctx, id, func(j *Job) error {
		j.Status = StatusError
		j.CurrentStep = "Error: " + cause.Error()
		j.ErrorCount++
		j.ConsoleOutput = append(j.ConsoleOutput, "Error: "+cause.Error())
		j.Messages = append(j.Messages, Message{
			Role: "assistant",
			Content: fmt.Sprintf("❌ Lo siento, ha ocurrido un error durante la construcción: %s\n\n"+
				"Por favor, intenta de nuevo o contacta al soporte si el problema persiste.", cause),
			Timestamp: b.now().UTC(),
		})
		b.notify(j, "Error en la construcción", cause.Error(), NotifyError, true)
		return nil
	})
	if err != nil {
		b.logger.Error("record build failure", zap.String("project_id", id), zap.Error(err))
	}
}

// process drives one job through its phases.
func (b *Builder) process(ctx context.Context, id string) error {
	job, err := b.store.Get(ctx, id)
	if err != nil {
		return err
	}
	factor := speeds[job.DevelopmentSpeed].factor

	if err := b.step(ctx, id, func(j *Job) {
		setStatus(j, StatusActive, PhaseAnalysis, 5, "Analizando requisitos del proyecto")
	}); err != nil {
		return err
	}
	if err := b.wait(ctx, id, 3, factor); err != nil {
		return err
	}
	if err := b.switchAgent(ctx, id, "architect"); err != nil {
		return err
	}

	analysis := Analyze(job.Description)
	plan := PlanTasks(analysis, factor)
	files := PlanFiles(analysis.Stack)
	if err := b.step(ctx, id, func(j *Job) {
		j.ProjectType = analysis.Type
		stack := analysis.Stack
		j.TechStack = &stack
		p := plan
		j.Plan = &p
		j.CurrentTaskIndex = 0
		addMessage(j, "assistant", analysisMessage(analysis), b.now())
		addMessage(j, "assistant", plan.Summary, b.now())
		setStatus(j, StatusActive, PhasePlanning, 10, "Planificando estructura del proyecto")
	}); err != nil {
		return err
	}
	if err := b.wait(ctx, id, 3, factor); err != nil {
		return err
	}

	if err := b.step(ctx, id, func(j *Job) {
		addMessage(j, "assistant", structureMessage(files), b.now())
	}); err != nil {
		return err
	}
	if err := b.wait(ctx, id, 2, factor); err != nil {
		return err
	}

	implTasks := len(plan.Tasks) - 1
	if err := b.step(ctx, id, func(j *Job) {
		setStatus(j, StatusActive, PhaseImplementation, 25, "Implementando archivos base")
		startTask(j, 0)
	}); err != nil {
		return err
	}
	if err := b.switchAgent(ctx, id, "developer"); err != nil {
		return err
	}

	for i, file := range files {
		if err := b.gate(ctx, id); err != nil {
			return err
		}
		rel := path.Join(job.WorkspacePath, file)
		cur, err := b.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := b.fs.WriteFile(rel, FileContent(file, cur)); err != nil {
			return fmt.Errorf("crear %s: %w", file, err)
		}
		created := i + 1
		if err := b.step(ctx, id, func(j *Job) {
			j.Files = append(j.Files, file)
			j.Progress = 25 + min(50, created*50/len(files))
			j.CurrentStep = "Creando " + file
			j.ConsoleOutput = append(j.ConsoleOutput, "Archivo creado: "+rel)
			addMessage(j, "assistant", fmt.Sprintf("✅ Archivo creado: `%s`", file), b.now())
			b.notify(j, "Archivo creado", "Se ha creado el archivo "+file, NotifySuccess, false)
			advanceTasks(j, created*implTasks/len(files), implTasks)
		}); err != nil {
			return err
		}
		if err := b.wait(ctx, id, 1, factor); err != nil {
			return err
		}
	}

	if err := b.step(ctx, id, func(j *Job) {
		advanceTasks(j, implTasks, implTasks)
		setStatus(j, StatusActive, PhaseImplementation, 75, "Instalando dependencias y configurando el proyecto")
	}); err != nil {
		return err
	}
	if err := b.install(ctx, id, job.WorkspacePath, &analysis.Stack); err != nil {
		return err
	}

	if job.Agents.Testing {
		if err := b.switchAgent(ctx, id, "testing"); err != nil {
			return err
		}
	}
	if err := b.step(ctx, id, func(j *Job) {
		setStatus(j, StatusActive, PhaseTesting, 90, "Verificando y probando la aplicación")
		startTask(j, implTasks)
	}); err != nil {
		return err
	}
	if err := b.wait(ctx, id, 3, factor); err != nil {
		return err
	}

	if err := b.gate(ctx, id); err != nil {
		return err
	}
	_, err = b.update(ctx, id, func(j *Job) error {
		advanceTasks(j, implTasks+1, implTasks+1)
		setStatus(j, StatusCompleted, PhaseCompleted, 100, "Proyecto completado exitosamente")
		addMessage(j, "assistant", completionMessage(*j), b.now())
		b.notify(j, "Proyecto completado", fmt.Sprintf("%s está listo con %d archivos.", j.Name, len(j.Files)), NotifySuccess, true)
		return nil
	})
	if err == nil {
		b.logger.Info("build completed", zap.String("project_id", id))
	}
	return err
}

func (b *Builder) install(ctx context.Context, id, dir string, stack *Stack) error {
	cmd := installCommand(stack)
	if cmd == "" {
		return nil
	}
	if b.term == nil || !b.term.AllowExecution {
		return b.step(ctx, id, func(j *Job) {
			j.ConsoleOutput = append(j.ConsoleOutput, "$ "+cmd, "Instalación omitida: la ejecución de comandos está deshabilitada")
		})
	}
	res, err := b.term.Run(ctx, fmt.Sprintf("cd %s && %s", dir, cmd))
	return b.step(ctx, id, func(j *Job) {
		j.ConsoleOutput = append(j.ConsoleOutput, "$ "+cmd)
		if out := strings.TrimSpace(res.Output()); out != "" {
			j.ConsoleOutput = append(j.ConsoleOutput, out)
		}
		name := strings.Fields(cmd)[0]
		switch {
		case err != nil:
			j.ErrorCount++
			j.ConsoleOutput = append(j.ConsoleOutput, "Error: "+err.Error())
			b.notify(j, "Error en comando: "+name, err.Error(), NotifyWarning, false)
		case res.ExitCode != 0:
			j.ErrorCount++
			j.ConsoleOutput = append(j.ConsoleOutput, fmt.Sprintf("Error: el comando terminó con código %d", res.ExitCode))
			b.notify(j, "Error en comando: "+name, fmt.Sprintf("El comando terminó con código %d.", res.ExitCode), NotifyWarning, false)
		default:
			b.notify(j, "Comando completado: "+name, "El comando se ha ejecutado correctamente.", NotifySuccess, false)
		}
	})
}

func (b *Builder) switchAgent(ctx context.Context, id, agent string) error {
	return b.step(ctx, id, func(j *Job) {
		if !j.Agents.Enabled(agent) || j.CurrentAgent == agent {
			return
		}
		j.CurrentAgent = agent
		b.notify(j, "Agente Cambiado", fmt.Sprintf("Ahora el agente '%s' está trabajando en el proyecto", agent), NotifyInfo, false)
	})
}

// step waits out any pause and then applies fn.
func (b *Builder) step(ctx context.Context, id string, fn func(*Job)) error {
	if err := b.gate(ctx, id); err != nil {
		return err
	}
	_, err := b.update(ctx, id, func(j *Job) error {
		fn(j)
		return nil
	})
	return err
}

// gate blocks while the job is paused.
func (b *Builder) gate(ctx context.Context, id string) error {
	for b.isPaused(id) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pauseTick):
		}
	}
	return ctx.Err()
}

// wait sleeps units step delays scaled by factor. Paused time does not count.
func (b *Builder) wait(ctx context.Context, id string, units, factor float64) error {
	remaining := time.Duration(units * factor * float64(b.stepDelay))
	for remaining > 0 {
		if err := b.gate(ctx, id); err != nil {
			return err
		}
		d := min(remaining, pauseTick)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
		remaining -= d
	}
	return b.gate(ctx, id)
}

func (b *Builder) isPaused(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused[id]
}

// setStatus moves the job forward. A pause that lands between the gate and
// the update is kept.
func setStatus(j *Job, status, phase string, progress int, step string) {
	if !(status == StatusActive && j.Status == StatusPaused) {
		j.Status = status
	}
	j.Phase = phase
	if progress > j.Progress {
		j.Progress = progress
	}
	j.CurrentStep = step
	j.ConsoleOutput = append(j.ConsoleOutput, step)
}

func addMessage(j *Job, role, content string, now time.Time) {
	j.Messages = append(j.Messages, Message{Role: role, Content: content, Timestamp: now.UTC()})
}

func startTask(j *Job, i int) {
	if j.Plan == nil || i >= len(j.Plan.Tasks) {
		return
	}
	j.CurrentTaskIndex = i
	if j.Plan.Tasks[i].Status == TaskPending {
		j.Plan.Tasks[i].Status = TaskInProgress
	}
}

// advanceTasks marks the first done tasks completed, keeping at most limit
// tasks in play, and starts the next one. The current index never moves
// backwards.
func advanceTasks(j *Job, done, limit int) {
	if j.Plan == nil {
		return
	}
	done = min(done, limit, len(j.Plan.Tasks))
	for i := 0; i < done; i++ {
		j.Plan.Tasks[i].Status = TaskCompleted
	}
	if done < limit {
		startTask(j, done)
	} else if done > 0 {
		j.CurrentTaskIndex = max(j.CurrentTaskIndex, done-1)
	}
}
