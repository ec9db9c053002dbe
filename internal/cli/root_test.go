package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
	"github.com/josedcape/codestorm-preeliminar/internal/reconciler"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	"github.com/josedcape/codestorm-preeliminar/internal/version"
)

func exampleConfig(t *testing.T) string {
	t.Helper()
	configPath, err := filepath.Abs(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	require.FileExists(t, configPath)
	return configPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "codestorm")

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Equal(t, version.Version, info.Version)
}

func TestDoctorWithExampleConfig(t *testing.T) {
	out, err := execute(t, "doctor", "--config", exampleConfig(t))
	require.NoError(t, err)
	require.Contains(t, out, "Config OK")
	require.Contains(t, out, "agents: 3")
}

func TestRouteJSON(t *testing.T) {
	out, err := execute(t, "route", "--config", exampleConfig(t), "-o", "json", "corrige este bug en mi función de JavaScript")
	require.NoError(t, err)

	var report routeReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, "developer", report.AgentID)
	require.False(t, report.Fallback)
	require.Len(t, report.Scores, 3)
}

func TestRouteYAMLFallback(t *testing.T) {
	out, err := execute(t, "route", "--config", exampleConfig(t), "-o", "yaml", "hola")
	require.NoError(t, err)

	var report routeReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	require.Equal(t, "advanced", report.AgentID)
	require.True(t, report.Fallback)
	require.Equal(t, 40, report.Confidence)
}

func TestRouteRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "route", "--config", exampleConfig(t), "-o", "xml", "hola")
	require.ErrorContains(t, err, "unknown output format")
}

func TestAgentsMarksDefault(t *testing.T) {
	out, err := execute(t, "agents", "--config", exampleConfig(t))
	require.NoError(t, err)
	require.Contains(t, out, "developer")
	require.Contains(t, out, "architect")
	require.Contains(t, out, "* ")
}

func TestDaemonURL(t *testing.T) {
	require.Equal(t, "http://localhost:8080", daemonURL(":8080"))
	require.Equal(t, "http://127.0.0.1:9000", daemonURL("127.0.0.1:9000"))
	require.Equal(t, "https://codestorm.dev", daemonURL("https://codestorm.dev/"))
}

func TestChatOverNDJSON(t *testing.T) {
	var got rpc.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat/stream", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		enc := json.NewEncoder(w)
		for _, evt := range []rpc.ChatEvent{
			{Type: rpc.EventRoute, AgentID: "developer", AgentName: "Desarrollador", Confidence: 90},
			{Type: rpc.EventToken, Token: "Hola "},
			{Type: rpc.EventToken, Token: "mundo"},
			{Type: rpc.EventMessage, Message: "Hola mundo"},
			{Type: rpc.EventDone, Done: true},
		} {
			require.NoError(t, enc.Encode(evt))
		}
	}))
	defer srv.Close()

	out, err := execute(t, "chat", "--daemon", srv.URL, "--transport", "ndjson", "--agent", "developer", "hola")
	require.NoError(t, err)
	require.Equal(t, "hola", got.Message)
	require.Equal(t, "developer", got.AgentID)
	require.NotEmpty(t, got.SessionID)
	require.Contains(t, out, "Desarrollador (90%)")
	require.Equal(t, 1, strings.Count(out, "Hola mundo"))
}

func TestChatSurfacesDaemonError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(rpc.ChatEvent{Type: rpc.EventError, Error: "model unavailable"})
	}))
	defer srv.Close()

	_, err := execute(t, "chat", "--daemon", srv.URL, "--transport", "ndjson", "hola")
	require.ErrorContains(t, err, "model unavailable")
}

func TestExecReportsExitCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/execute_command", r.URL.Path)
		rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": false, "stdout": "partial\n", "stderr": "", "exitCode": 3})
	}))
	defer srv.Close()

	out, err := execute(t, "exec", "--daemon", srv.URL, "exit 3")
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.Code)
	require.Contains(t, out, "partial")
}

func TestExecForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpc.WriteError(w, http.StatusForbidden, "command execution disabled")
	}))
	defer srv.Close()

	_, err := execute(t, "exec", "--daemon", srv.URL, "ls")
	require.ErrorContains(t, err, "command execution disabled")
}

func TestBuildStartDetached(t *testing.T) {
	var got build.Config
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/constructor/start", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "project_id": "p-1"})
	}))
	defer srv.Close()

	out, err := execute(t, "build", "start", "--daemon", srv.URL, "--detach", "--skip-tests", "--speed", "fast", "Una API REST")
	require.NoError(t, err)
	require.Equal(t, "p-1\n", out)
	require.Equal(t, "Una API REST", got.Description)
	require.Equal(t, "fast", got.DevelopmentSpeed)
	require.NotNil(t, got.Agents)
	require.False(t, got.Agents.Testing)
	require.True(t, got.Agents.Developer)
}

func TestBuildRendererTracksTerminalStatus(t *testing.T) {
	buf := &bytes.Buffer{}
	r := newBuildRenderer(buf)
	r.Emit(reconciler.Event{Kind: reconciler.EventProgress, Progress: 50, Label: "Estado: Implementando (50%)"})
	r.Emit(reconciler.Event{Kind: reconciler.EventNotification, Notification: &build.Notification{Title: "Aviso", Message: "hecho", Type: build.NotifySuccess}})
	require.NoError(t, r.result())

	r.Emit(reconciler.Event{Kind: reconciler.EventTerminal, Status: build.StatusError, Progress: 50})
	require.Error(t, r.result())
	require.Contains(t, buf.String(), "Implementando")
	require.Contains(t, buf.String(), "Aviso")
}

func TestProgressBarClamps(t *testing.T) {
	require.Equal(t, progressBar(150), progressBar(100))
	require.Equal(t, progressBar(-5), progressBar(0))
}
