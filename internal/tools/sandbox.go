package tools

import (
	"fmt"
	"time"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
)

// Sandbox constructs configured tool instances based on sandbox/tools config.
type Sandbox struct {
	FS       *Filesystem
	Terminal *Terminal
}

var defaultDenied = []string{"sudo", "su", "shutdown", "reboot", "halt", "mkfs", "passwd"}

var defaultNetworkDenied = []string{
	"curl", "wget", "ping", "nc", "netcat", "telnet", "ssh", "scp", "sftp",
}

// NewSandbox builds filesystem and terminal tools rooted at baseDir, or at
// sandbox.working_dir when baseDir is empty.
func NewSandbox(baseDir string, sandboxCfg config.SandboxConfig, toolsCfg config.ToolsConfig) (*Sandbox, error) {
	if baseDir == "" {
		baseDir = sandboxCfg.WorkingDir
	}
	fsTool, err := NewFilesystem(baseDir, sandboxCfg.AllowWrite && toolsCfg.AllowFileWrite)
	if err != nil {
		return nil, fmt.Errorf("build filesystem tool: %w", err)
	}

	denied := append([]string{}, sandboxCfg.DeniedCommands...)
	denied = append(denied, defaultDenied...)
	if !sandboxCfg.AllowNetwork {
		denied = append(denied, defaultNetworkDenied...)
	}

	timeout := time.Duration(toolsCfg.ExecTimeoutSeconds) * time.Second
	if sandboxCfg.TimeoutSeconds > 0 {
		timeout = time.Duration(sandboxCfg.TimeoutSeconds) * time.Second
	}

	term := &Terminal{
		WorkingDir:     fsTool.Base(),
		Allowed:        sandboxCfg.AllowedCommands,
		Denied:         dedupeStrings(denied),
		Timeout:        timeout,
		AllowExecution: toolsCfg.AllowExec && sandboxCfg.Enabled,
	}

	return &Sandbox{
		FS:       fsTool,
		Terminal: term,
	}, nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
