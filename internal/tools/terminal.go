package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Terminal executes commands with allow/deny checks.
type Terminal struct {
	WorkingDir     string
	Allowed        []string
	Denied         []string
	Timeout        time.Duration
	AllowExecution bool
}

// ExecResult carries output and status code.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// Output joins stdout and stderr the way command history stores them.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// ErrExecDisabled is returned when configuration forbids execution.
var ErrExecDisabled = errors.New("execution disabled by configuration")

// blockedPatterns reject destructive shell lines regardless of allow lists.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-[a-zA-Z]*[rf][a-zA-Z]*\s+/(\s|$|\*)`),
	regexp.MustCompile(`:\(\)\s*\{`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`>\s*/dev/sd`),
}

// Exec runs a command if allowed by configuration.
func (t *Terminal) Exec(ctx context.Context, command string, args ...string) (ExecResult, error) {
	if !t.AllowExecution {
		return ExecResult{}, ErrExecDisabled
	}
	if command == "" {
		return ExecResult{}, fmt.Errorf("command is required")
	}
	if err := t.validateCommand(command); err != nil {
		return ExecResult{}, err
	}
	return t.run(ctx, command, args...)
}

// Run executes a shell command line in the working directory. Every command
// in a pipeline or list is checked against the allow and deny lists. A
// non-zero exit is reported through ExitCode, not as an error.
func (t *Terminal) Run(ctx context.Context, line string) (ExecResult, error) {
	if !t.AllowExecution {
		return ExecResult{}, ErrExecDisabled
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return ExecResult{}, fmt.Errorf("command is required")
	}
	for _, re := range blockedPatterns {
		if re.MatchString(line) {
			return ExecResult{}, fmt.Errorf("command %q is blocked", line)
		}
	}
	for _, name := range commandNames(line) {
		if err := t.validateCommand(name); err != nil {
			return ExecResult{}, err
		}
	}

	res, err := t.run(ctx, "sh", "-c", line)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, nil
	}
	return res, err
}

func (t *Terminal) run(ctx context.Context, command string, args ...string) (ExecResult, error) {
	timeout := t.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	if t.WorkingDir != "" {
		cmd.Dir = t.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		ExitCode: func() int {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitCode()
			}
			if err != nil {
				return -1
			}
			return 0
		}(),
	}
	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("command timed out after %s", timeout)
	}
	return res, err
}

var (
	separatorPattern = regexp.MustCompile(`\|\||&&|[|;&\n]`)
	redirectPattern  = regexp.MustCompile(`\d*[<>]&\d*`)
)

// commandNames returns the program name of every command in a shell line.
func commandNames(line string) []string {
	var names []string
	line = redirectPattern.ReplaceAllString(line, " ")
	for _, part := range separatorPattern.Split(line, -1) {
		fields := strings.Fields(part)
		for len(fields) > 0 && strings.Contains(fields[0], "=") {
			fields = fields[1:]
		}
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}

func (t *Terminal) validateCommand(cmd string) error {
	lower := strings.ToLower(cmd)
	for _, deny := range t.Denied {
		if lower == strings.ToLower(deny) {
			return fmt.Errorf("command %q is denied", cmd)
		}
	}
	if len(t.Allowed) > 0 {
		for _, allow := range t.Allowed {
			if lower == strings.ToLower(allow) {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in allowlist", cmd)
	}
	return nil
}
