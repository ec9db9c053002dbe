package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
	"github.com/josedcape/codestorm-preeliminar/internal/reconciler"
)

// NewBuildCmd groups the project builder commands.
func NewBuildCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Start, follow and control project builds on the daemon",
	}
	cmd.AddCommand(newBuildStartCmd(opts))
	cmd.AddCommand(newBuildWatchCmd(opts))
	cmd.AddCommand(newBuildListCmd(opts))
	cmd.AddCommand(newBuildToggleCmd(opts, true))
	cmd.AddCommand(newBuildToggleCmd(opts, false))
	cmd.AddCommand(newBuildMessageCmd(opts))
	return cmd
}

// watchFlags are shared by start and watch.
type watchFlags struct {
	interval time.Duration
	push     bool
}

func (f *watchFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", reconciler.DefaultInterval, "Poll interval")
	cmd.Flags().BoolVar(&f.push, "push", false, "Receive updates over the daemon websocket instead of polling")
}

func newBuildStartCmd(opts *Options) *cobra.Command {
	var model string
	var speed string
	var skipTests bool
	var detach bool
	var wf watchFlags

	cmd := &cobra.Command{
		Use:   "start \"<description>\"",
		Short: "Start building a project from a description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[0]) == "" {
				return errors.New("description cannot be empty")
			}
			baseURL, _, err := daemonTarget(opts)
			if err != nil {
				return err
			}
			cfg := build.Config{Description: args[0], Model: model, DevelopmentSpeed: speed}
			if skipTests {
				agents := build.AllAgents()
				agents.Testing = false
				cfg.Agents = &agents
			}

			client := reconciler.NewHTTPClient(baseURL, nil)
			if detach {
				id, err := client.Start(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sink := newBuildRenderer(cmd.OutOrStdout())
			r := reconciler.New(reconciler.Options{Client: client, Sink: sink, Interval: wf.interval})
			if wf.push {
				id, err := client.Start(ctx, cfg)
				if err != nil {
					return err
				}
				return follow(ctx, r, baseURL, id, true, sink)
			}
			id, err := r.Start(ctx, cfg)
			if err != nil {
				return err
			}
			sink.header(id)
			return wait(ctx, r, sink)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model: openai, anthropic or gemini")
	cmd.Flags().StringVar(&speed, "speed", "", "Development speed: fast, balanced or thorough")
	cmd.Flags().BoolVar(&skipTests, "skip-tests", false, "Disable the testing agent")
	cmd.Flags().BoolVar(&detach, "detach", false, "Print the project id and return without following the build")
	wf.register(cmd)
	return cmd
}

func newBuildWatchCmd(opts *Options) *cobra.Command {
	var wf watchFlags

	cmd := &cobra.Command{
		Use:   "watch [project-id]",
		Short: "Follow a build; without an id, the newest active or paused one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _, err := daemonTarget(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client := reconciler.NewHTTPClient(baseURL, nil)
			sink := newBuildRenderer(cmd.OutOrStdout())
			r := reconciler.New(reconciler.Options{Client: client, Sink: sink, Interval: wf.interval})

			if len(args) == 1 {
				return follow(ctx, r, baseURL, args[0], wf.push, sink)
			}
			id, ok, err := r.RestoreActive(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No hay construcciones activas"))
				return nil
			}
			if wf.push {
				return follow(ctx, r, baseURL, id, true, sink)
			}
			sink.header(id)
			return wait(ctx, r, sink)
		},
	}
	wf.register(cmd)
	return cmd
}

// follow mirrors projectID by polling or, with push, from the websocket.
func follow(ctx context.Context, r *reconciler.Reconciler, baseURL, projectID string, push bool, sink *buildRenderer) error {
	sink.header(projectID)
	if !push {
		r.Monitor(ctx, projectID)
		return wait(ctx, r, sink)
	}
	url, err := reconciler.WatchURL(baseURL, projectID)
	if err != nil {
		return err
	}
	r.Reset(projectID)
	if err := (reconciler.WatchSource{URL: url}).Run(ctx, r); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return sink.result()
}

// wait blocks until the poll loop ends, stopping it when ctx is cancelled.
func wait(ctx context.Context, r *reconciler.Reconciler, sink *buildRenderer) error {
	select {
	case <-r.Done():
	case <-ctx.Done():
		r.Stop()
	}
	return sink.result()
}

func newBuildListCmd(opts *Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List builds, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _, err := daemonTarget(opts)
			if err != nil {
				return err
			}
			projects, err := reconciler.NewHTTPClient(baseURL, nil).List(cmd.Context())
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), output, projects, func(w io.Writer) {
				for _, p := range projects {
					progress := 0
					if p.Progress != nil {
						progress = *p.Progress
					}
					fmt.Fprintf(w, "%s  %-10s %s %3d%%  %s\n",
						mutedStyle.Render(p.ProjectID), p.StatusValue(), progressBar(progress), progress, p.Name)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func newBuildToggleCmd(opts *Options, pause bool) *cobra.Command {
	use, short := "resume <project-id>", "Resume a paused build"
	if pause {
		use, short = "pause <project-id>", "Pause an active build"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL, _, err := daemonTarget(opts)
			if err != nil {
				return err
			}
			client := reconciler.NewHTTPClient(baseURL, nil)
			call, label := client.Resume, reconciler.LabelBuilding
			if pause {
				call, label = client.Pause, reconciler.LabelPaused
			}
			if err := call(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(args[0]+": "+label))
			return nil
		},
	}
}

func newBuildMessageCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "message <project-id> \"<text>\"",
		Short: "Send a message to a running build",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(args[1]) == "" {
				return errors.New("message cannot be empty")
			}
			baseURL, _, err := daemonTarget(opts)
			if err != nil {
				return err
			}
			reply, err := reconciler.NewHTTPClient(baseURL, nil).SendMessage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

// buildRenderer prints reconciler events and remembers how the build ended.
type buildRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	status string
}

func newBuildRenderer(out io.Writer) *buildRenderer {
	return &buildRenderer{out: out}
}

func (b *buildRenderer) header(projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintln(b.out, headerStyle.Render("Proyecto "+projectID))
}

func (b *buildRenderer) Emit(e reconciler.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch e.Kind {
	case reconciler.EventProgress:
		fmt.Fprintf(b.out, "%s %s\n", progressBar(e.Progress), e.Label)
	case reconciler.EventAgent:
		fmt.Fprintln(b.out, agentStyle.Render("→ "+e.Label))
	case reconciler.EventStatus:
		fmt.Fprintln(b.out, warningStyle.Render(e.Label))
		if e.Line != "" {
			fmt.Fprintln(b.out, e.Line)
		}
	case reconciler.EventErrorCount:
		fmt.Fprintln(b.out, errorStyle.Render(fmt.Sprintf("Errores: %d", e.ErrorCount)))
	case reconciler.EventNotification:
		n := e.Notification
		fmt.Fprintln(b.out, notificationStyle(n.Type).Render(n.Title)+" "+mutedStyle.Render(n.Message))
	case reconciler.EventConsole:
		fmt.Fprintln(b.out, consoleStyle.Render(e.Line))
	case reconciler.EventMessage:
		fmt.Fprintf(b.out, "%s %s\n", agentStyle.Render("["+e.Message.Role+"]"), e.Message.Content)
	case reconciler.EventPlan:
		fmt.Fprintln(b.out, headerStyle.Render("Plan ("+reconciler.FormatTimeEstimate(e.EstimatedTime)+")"))
		for i, t := range e.Tasks {
			fmt.Fprintf(b.out, "  %d. %s %s\n", i+1, t.Title, mutedStyle.Render(t.Status))
		}
	case reconciler.EventTask:
		line := fmt.Sprintf("  tarea %d: %s", e.TaskIndex+1, e.TaskStatus)
		if e.Label != "" {
			line = fmt.Sprintf("  tarea %d (%s): %s", e.TaskIndex+1, e.Label, e.TaskStatus)
		}
		fmt.Fprintln(b.out, mutedStyle.Render(line))
	case reconciler.EventTerminal:
		b.status = e.Status
		style := successStyle
		if e.Status == build.StatusError {
			style = errorStyle
		}
		fmt.Fprintln(b.out, style.Render(fmt.Sprintf("Construcción %s (%d%%)", e.Status, e.Progress)))
	case reconciler.EventError:
		fmt.Fprintln(b.out, errorStyle.Render(e.Err))
	}
}

// result turns a failed build into a command error.
func (b *buildRenderer) result() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == build.StatusError {
		return errors.New("build failed")
	}
	return nil
}
