package build

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/storage"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
)

func newTestBuilder(t *testing.T, delay time.Duration, store Store) (*Builder, *tools.Filesystem, *observability.Metrics) {
	t.Helper()
	fs, err := tools.NewFilesystem(t.TempDir(), true)
	require.NoError(t, err)
	metrics := observability.NewMetrics()
	b, err := New(Options{Store: store, FS: fs, StepDelay: delay, Metrics: metrics})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b, fs, metrics
}

func waitForStatus(t *testing.T, b *Builder, id, status string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = b.Get(context.Background(), id)
		require.NoError(t, err)
		return job.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestStartRequiresDescription(t *testing.T) {
	b, _, _ := newTestBuilder(t, 0, nil)
	_, err := b.Start(context.Background(), Config{Description: "   "})
	require.ErrorIs(t, err, ErrDescriptionRequired)
}

func TestStartAppliesDefaults(t *testing.T) {
	b, _, _ := newTestBuilder(t, 0, nil)
	job, err := b.Start(context.Background(), Config{Description: "Una landing page", Model: "llama", DevelopmentSpeed: "ludicrous"})
	require.NoError(t, err)
	require.Equal(t, DefaultModel, job.Model)
	require.Equal(t, SpeedBalanced, job.DevelopmentSpeed)
	require.Equal(t, AllAgents(), job.Agents)
	require.Equal(t, StatusActive, job.Status)
	require.Len(t, job.Notifications, 1)
	require.Equal(t, "🚀 Construcción iniciada", job.Notifications[0].Title)
	waitForStatus(t, b, job.ID, StatusCompleted)
}

func TestBuildRunsToCompletion(t *testing.T) {
	b, fs, metrics := newTestBuilder(t, 0, nil)
	job, err := b.Start(context.Background(), Config{Description: "Una aplicación llamada galeria en React", Model: "anthropic"})
	require.NoError(t, err)

	done := waitForStatus(t, b, job.ID, StatusCompleted)
	require.Equal(t, "galeria", done.Name)
	require.Equal(t, PhaseCompleted, done.Phase)
	require.Equal(t, 100, done.Progress)
	require.Equal(t, "testing", done.CurrentAgent)
	require.Equal(t, TypeWeb, done.ProjectType)
	require.Equal(t, "react", done.TechStack.Framework)
	require.Equal(t, PlanFiles(*done.TechStack), done.Files)
	require.Equal(t, len(done.Plan.Tasks)-1, done.CurrentTaskIndex)
	for _, task := range done.Plan.Tasks {
		require.Equal(t, TaskCompleted, task.Status, task.ID)
	}

	readme, err := fs.ReadFile(done.WorkspacePath + "/README.md")
	require.NoError(t, err)
	require.Contains(t, readme, "# galeria")

	last := done.Messages[len(done.Messages)-1]
	require.Equal(t, "system", last.Role)
	require.Contains(t, last.Content, "✅ **Proyecto completado**")
	require.Contains(t, strings.Join(done.ConsoleOutput, "\n"), "$ npm install")

	b.Close()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BuildJobs.WithLabelValues(StatusCompleted)))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.BuildJobs.WithLabelValues(StatusActive)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BuildPhases.WithLabelValues(PhaseTesting)))
}

func TestBuildSkipsDisabledAgents(t *testing.T) {
	b, _, _ := newTestBuilder(t, 0, nil)
	job, err := b.Start(context.Background(), Config{
		Description: "API en flask",
		Agents:      &Agents{Developer: true},
	})
	require.NoError(t, err)

	done := waitForStatus(t, b, job.ID, StatusCompleted)
	require.Equal(t, "developer", done.CurrentAgent)
	require.Contains(t, done.Files, "app.py")
}

func TestBuildWithGormStore(t *testing.T) {
	db, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })
	store, err := NewStore(db)
	require.NoError(t, err)

	b, _, _ := newTestBuilder(t, 0, store)
	job, err := b.Start(context.Background(), Config{Description: "Un blog sencillo"})
	require.NoError(t, err)
	done := waitForStatus(t, b, job.ID, StatusCompleted)
	require.NotEmpty(t, done.Files)

	list, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, b.Delete(context.Background(), job.ID))
	_, err = b.Get(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPauseAndResume(t *testing.T) {
	b, _, metrics := newTestBuilder(t, 20*time.Millisecond, nil)
	ctx := context.Background()
	job, err := b.Start(ctx, Config{Description: "Una tienda con react"})
	require.NoError(t, err)

	paused, err := b.Pause(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, paused.Status)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.BuildJobs.WithLabelValues(StatusPaused)))

	_, err = b.Pause(ctx, job.ID)
	require.ErrorIs(t, err, ErrNotActive)

	time.Sleep(100 * time.Millisecond)
	before, err := b.Get(ctx, job.ID)
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)
	after, err := b.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaused, after.Status)
	require.Equal(t, before.Progress, after.Progress)
	require.Equal(t, len(before.Files), len(after.Files))

	resumed, err := b.Resume(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, resumed.Status)
	_, err = b.Resume(ctx, job.ID)
	require.ErrorIs(t, err, ErrNotActive)

	waitForStatus(t, b, job.ID, StatusCompleted)
	_, err = b.Pause(ctx, job.ID)
	require.ErrorIs(t, err, ErrNotActive)
	_, err = b.Pause(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBuildFailureIsRecorded(t *testing.T) {
	fs, err := tools.NewFilesystem(t.TempDir(), false)
	require.NoError(t, err)
	b, err := New(Options{FS: fs})
	require.NoError(t, err)
	t.Cleanup(b.Close)

	job, err := b.Start(context.Background(), Config{Description: "Una web de recetas"})
	require.NoError(t, err)
	failed := waitForStatus(t, b, job.ID, StatusError)
	require.True(t, strings.HasPrefix(failed.CurrentStep, "Error: crear package.json"))
	require.Equal(t, 1, failed.ErrorCount)

	var assistant string
	for _, m := range failed.Messages {
		if m.Role == "assistant" && strings.HasPrefix(m.Content, "❌ Lo siento") {
			assistant = m.Content
		}
	}
	require.Contains(t, assistant, "Por favor, intenta de nuevo")
	require.Equal(t, NotifyError, failed.Notifications[len(failed.Notifications)-1].Type)
}

func TestCloseInterruptsRunningBuilds(t *testing.T) {
	fs, err := tools.NewFilesystem(t.TempDir(), true)
	require.NoError(t, err)
	store := NewMemoryStore()
	b, err := New(Options{FS: fs, Store: store, StepDelay: time.Hour})
	require.NoError(t, err)

	job, err := b.Start(context.Background(), Config{Description: "Algo lento"})
	require.NoError(t, err)
	b.Close()

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusError, got.Status)
	require.Equal(t, "Error: construcción interrumpida", got.CurrentStep)
}

func TestPostMessageReplies(t *testing.T) {
	b, _, _ := newTestBuilder(t, time.Hour, nil)
	ctx := context.Background()
	job, err := b.Start(ctx, Config{Description: "Un portafolio"})
	require.NoError(t, err)

	require.ErrorIs(t, b.Delete(ctx, job.ID), ErrRunning)

	reply, _, err := b.PostMessage(ctx, job.ID, "¿Qué archivos hay?")
	require.NoError(t, err)
	require.Equal(t, "Aún no se han generado archivos para este proyecto.", reply)

	reply, _, err = b.PostMessage(ctx, job.ID, "Quiero ver plan")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(reply, "Aquí tienes el plan de desarrollo actual:"))

	reply, updated, err := b.PostMessage(ctx, job.ID, "hazlo azul")
	require.NoError(t, err)
	require.Equal(t, "Gracias por tu mensaje. Lo tendré en cuenta durante la construcción del proyecto.", reply)
	require.Equal(t, "hazlo azul", updated.Messages[len(updated.Messages)-2].Content)

	_, _, err = b.PostMessage(ctx, job.ID, " ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	_, _, err = b.PostMessage(ctx, "missing", "hola")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReplyListsFiles(t *testing.T) {
	reply := replyTo(Job{Files: []string{"a.js", "b.js"}}, "archivos")
	require.Equal(t, "Archivos generados hasta ahora:\n\n- a.js\n- b.js", reply)
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	b, _, _ := newTestBuilder(t, 0, nil)
	ctx := context.Background()
	job, err := b.Start(ctx, Config{Description: "Una web"})
	require.NoError(t, err)

	ch, cancel := b.Subscribe(job.ID)
	defer cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Status == StatusCompleted {
				require.Equal(t, 100, snap.Progress)
				return
			}
		case <-deadline:
			current, err := b.Get(ctx, job.ID)
			require.NoError(t, err)
			if current.Status == StatusCompleted {
				return
			}
			t.Fatal("no completed snapshot received")
		}
	}
}

func TestAdvanceTasks(t *testing.T) {
	j := &Job{Plan: &Plan{Tasks: []Task{{Status: TaskPending}, {Status: TaskPending}, {Status: TaskPending}}}}
	startTask(j, 0)
	require.Equal(t, TaskInProgress, j.Plan.Tasks[0].Status)

	advanceTasks(j, 1, 2)
	require.Equal(t, TaskCompleted, j.Plan.Tasks[0].Status)
	require.Equal(t, TaskInProgress, j.Plan.Tasks[1].Status)
	require.Equal(t, 1, j.CurrentTaskIndex)

	advanceTasks(j, 5, 2)
	require.Equal(t, TaskCompleted, j.Plan.Tasks[1].Status)
	require.Equal(t, TaskPending, j.Plan.Tasks[2].Status)
	require.Equal(t, 1, j.CurrentTaskIndex)

	startTask(j, 2)
	advanceTasks(j, 3, 3)
	require.Equal(t, 2, j.CurrentTaskIndex)
	advanceTasks(j, 2, 2)
	require.Equal(t, 2, j.CurrentTaskIndex, "current task index moved backwards")
}
