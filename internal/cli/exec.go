package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/josedcape/codestorm-preeliminar/internal/commands"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
)

// ExitError reports a remote command that exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// NewExecCmd runs a shell command, or with --natural an instruction, in the
// daemon workspace.
func NewExecCmd(opts *Options) *cobra.Command {
	var natural bool

	cmd := &cobra.Command{
		Use:   "exec \"<command>\"",
		Short: "Run a command in the daemon workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.TrimSpace(args[0])
			if line == "" {
				return fmt.Errorf("command cannot be empty")
			}
			baseURL, _, err := daemonTarget(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if natural {
				var resp struct {
					Result commands.Result `json:"result"`
				}
				if err := postJSON(cmd.Context(), baseURL+"/api/commands/execute", map[string]string{"instruction": line}, &resp); err != nil {
					return err
				}
				fmt.Fprintln(out, successStyle.Render(resp.Result.Message))
				if resp.Result.Output != "" {
					fmt.Fprintln(out, resp.Result.Output)
				}
				if resp.Result.Exec != nil && resp.Result.Exec.ExitCode != 0 {
					return &ExitError{Code: resp.Result.Exec.ExitCode}
				}
				return nil
			}

			var res tools.ExecResult
			if err := postJSON(cmd.Context(), baseURL+"/api/execute_command", map[string]string{"command": line}, &res); err != nil {
				return err
			}
			fmt.Fprint(out, res.Stdout)
			if res.Stderr != "" {
				fmt.Fprint(cmd.ErrOrStderr(), errorStyle.Render(res.Stderr))
			}
			if res.ExitCode != 0 {
				return &ExitError{Code: res.ExitCode}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&natural, "natural", false, "Treat the argument as a natural-language instruction")
	return cmd
}

// postJSON posts body and decodes the reply into out, turning error bodies
// into errors.
func postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}
