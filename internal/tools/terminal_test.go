package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTerminalExecAllowsWhitelisted(t *testing.T) {
	term := &Terminal{
		WorkingDir:     "",
		Allowed:        []string{"echo"},
		Denied:         []string{"rm"},
		Timeout:        time.Second * 2,
		AllowExecution: true,
	}

	res, err := term.Exec(context.Background(), "echo", "hi")
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
	if res.Stdout == "" {
		t.Fatalf("expected stdout")
	}
}

func TestTerminalExecDenied(t *testing.T) {
	term := &Terminal{
		Denied:         []string{"rm"},
		AllowExecution: true,
	}
	if _, err := term.Exec(context.Background(), "rm", "-rf", "/"); err == nil {
		t.Fatalf("expected deny error")
	}
}

func TestTerminalExecDisabled(t *testing.T) {
	term := &Terminal{AllowExecution: false}
	if _, err := term.Exec(context.Background(), "echo", "hi"); !errors.Is(err, ErrExecDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestTerminalRunShellLine(t *testing.T) {
	term := &Terminal{WorkingDir: t.TempDir(), AllowExecution: true, Timeout: 2 * time.Second}

	res, err := term.Run(context.Background(), "echo hola && echo error 1>&2")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hola" || strings.TrimSpace(res.Stderr) != "error" {
		t.Fatalf("unexpected output: %+v", res)
	}
	if res.Output() != res.Stdout+"\n"+res.Stderr {
		t.Fatalf("unexpected combined output %q", res.Output())
	}
}

func TestTerminalRunReportsExitCode(t *testing.T) {
	term := &Terminal{AllowExecution: true, Timeout: 2 * time.Second}

	res, err := term.Run(context.Background(), "exit 3")
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit 3, got %d", res.ExitCode)
	}
}

func TestTerminalRunChecksEveryCommand(t *testing.T) {
	term := &Terminal{Denied: []string{"curl"}, AllowExecution: true}

	if _, err := term.Run(context.Background(), "echo ok | curl http://example.com"); err == nil {
		t.Fatalf("expected piped curl to be denied")
	}
	if _, err := term.Run(context.Background(), "rm -rf /"); err == nil {
		t.Fatalf("expected destructive command to be blocked")
	}
	if _, err := term.Run(context.Background(), "   "); err == nil {
		t.Fatalf("expected empty command error")
	}
}

func TestCommandNames(t *testing.T) {
	got := commandNames("FOO=1 make build && ls -la | grep x; echo done")
	want := []string{"make", "ls", "grep", "echo"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got = commandNames("go test ./... 2>&1 | tee out.log")
	if strings.Join(got, ",") != "go,tee" {
		t.Fatalf("expected redirections to be ignored, got %v", got)
	}
}
