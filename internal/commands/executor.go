package commands

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/history"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
)

// Result describes an executed command.
type Result struct {
	Intent  Intent            `json:"intent"`
	Message string            `json:"message"`
	Path    string            `json:"path,omitempty"`
	Output  string            `json:"output,omitempty"`
	Exec    *tools.ExecResult `json:"exec,omitempty"`
}

// Executor runs parsed commands against the workspace tools.
type Executor struct {
	tools    *tools.Registry
	recorder history.Recorder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewExecutor wires an executor. recorder, metrics and logger may be nil.
func NewExecutor(reg *tools.Registry, recorder history.Recorder, metrics *observability.Metrics, logger *zap.Logger) *Executor {
	if recorder == nil {
		recorder = history.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{tools: reg, recorder: recorder, metrics: metrics, logger: logger}
}

// toolFor maps an intent onto the action schema it is validated against.
func toolFor(intent Intent) string {
	switch intent {
	case IntentModify:
		return "fs.write_file"
	case IntentCreate:
		return "fs.create_file"
	case IntentDelete:
		return "fs.delete"
	case IntentShow:
		return "fs.read_file"
	case IntentExecute:
		return "terminal.run"
	}
	return ""
}

func argsFor(cmd Command) map[string]interface{} {
	if cmd.Intent == IntentExecute {
		return map[string]interface{}{"command": cmd.ShellCommand}
	}
	args := map[string]interface{}{"path": cmd.Filename}
	if cmd.Intent == IntentModify || cmd.Intent == IntentCreate {
		args["content"] = cmd.Content
	}
	return args
}

// Execute validates cmd against the tool schemas and performs it. Modify
// appends the content to the existing file.
func (e *Executor) Execute(ctx context.Context, cmd Command) (Result, error) {
	if e == nil || e.tools == nil {
		return Result{}, errors.New("command executor unavailable")
	}
	name := toolFor(cmd.Intent)
	if name == "" {
		return Result{}, ErrNoIntent
	}
	if err := tools.ValidateCall(e.tools, name, argsFor(cmd)); err != nil {
		return Result{}, err
	}
	e.metrics.RecordCommand(string(cmd.Intent))

	res := Result{Intent: cmd.Intent, Path: cmd.Filename}
	fs := e.tools.FS
	switch cmd.Intent {
	case IntentModify:
		current, err := fs.ReadFile(cmd.Filename)
		if err != nil {
			return Result{}, fmt.Errorf("el archivo %s no existe o no se puede acceder a él: %w", cmd.Filename, err)
		}
		if err := fs.UpdateFile(cmd.Filename, current+"\n"+cmd.Content); err != nil {
			return Result{}, fmt.Errorf("no se pudo modificar el archivo %s: %w", cmd.Filename, err)
		}
		res.Message = fmt.Sprintf("Archivo %s modificado correctamente.", cmd.Filename)
	case IntentCreate:
		if err := fs.CreateFile(cmd.Filename, cmd.Content); err != nil {
			return Result{}, fmt.Errorf("no se pudo crear el archivo %s: %w", cmd.Filename, err)
		}
		res.Message = fmt.Sprintf("Archivo %s creado correctamente.", cmd.Filename)
	case IntentDelete:
		if err := fs.Delete(cmd.Filename); err != nil {
			return Result{}, fmt.Errorf("no se pudo eliminar el archivo %s: %w", cmd.Filename, err)
		}
		res.Message = fmt.Sprintf("Archivo %s eliminado correctamente.", cmd.Filename)
	case IntentShow:
		content, err := fs.ReadFile(cmd.Filename)
		if err != nil {
			return Result{}, fmt.Errorf("el archivo %s no existe o no se puede acceder a él: %w", cmd.Filename, err)
		}
		res.Message = fmt.Sprintf("Contenido del archivo %s:", cmd.Filename)
		res.Output = content
	case IntentExecute:
		out, err := e.Run(ctx, cmd.Text, cmd.ShellCommand, "")
		if err != nil {
			return Result{}, err
		}
		res.Path = ""
		res.Exec = &out
		res.Output = out.Output()
		res.Message = fmt.Sprintf("Comando ejecutado correctamente: %s", cmd.ShellCommand)
	}
	e.logger.Debug("command executed", zap.String("intent", string(cmd.Intent)), zap.String("path", cmd.Filename))
	return res, nil
}

// Run executes a shell command line and stores it in the command history.
// instruction is the request that produced the command.
func (e *Executor) Run(ctx context.Context, instruction, line, model string) (tools.ExecResult, error) {
	if e == nil || e.tools == nil || e.tools.Terminal == nil {
		return tools.ExecResult{}, tools.ErrExecDisabled
	}
	out, err := e.tools.Terminal.Run(ctx, line)
	status := "success"
	if err != nil || out.ExitCode != 0 {
		status = "error"
	}
	entry := history.Command{
		Instruction: instruction,
		Command:     line,
		Output:      out.Output(),
		Status:      status,
		Model:       model,
	}
	if err != nil {
		entry.Output = err.Error()
	}
	if recErr := e.recorder.Record(ctx, entry); recErr != nil {
		e.logger.Warn("record command history failed", zap.Error(recErr))
	}
	return out, err
}

// History returns the most recent commands.
func (e *Executor) History(ctx context.Context, limit int) ([]history.Command, error) {
	return e.recorder.Recent(ctx, limit)
}
