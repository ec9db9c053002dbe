package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/josedcape/codestorm-preeliminar/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Providers: map[string]config.ProviderConfig{
			"local": {Type: "ollama", BaseURL: "http://127.0.0.1:1", Model: "llama3"},
		},
		Models: map[string]config.ModelConfig{
			"openai": {Provider: "local", Default: true},
		},
		Chat:      config.ChatConfig{ContextMessages: 5, EnableCommands: true},
		Builder:   config.BuilderConfig{WorkspaceDir: dir + "/builds", Store: config.StoreConfig{Driver: "sqlite", DSN: "file::memory:"}},
		Cache:     config.CacheConfig{Driver: "memory", TTL: time.Minute},
		Sandbox:   config.SandboxConfig{Enabled: true, AllowWrite: true, WorkingDir: dir + "/workspace"},
		Tools:     config.ToolsConfig{AllowFileWrite: true},
		Documents: config.DocumentsConfig{Dir: dir + "/documents"},
		Server:    config.ServerConfig{Addr: "127.0.0.1:0", MetricsEnabled: true, Transport: "connect", WebsocketEnabled: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	s, err := NewServer(context.Background(), cfg, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServerWiresRoutes(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	require.Equal(t, "ok", getJSON(t, srv.URL+"/health")["status"])
	require.Len(t, getJSON(t, srv.URL+"/api/agents")["agents"], 3)
	require.Equal(t, true, getJSON(t, srv.URL+"/api/explorer/list")["success"])
	require.NotEmpty(t, getJSON(t, srv.URL+"/api/commands/schemas")["schemas"])
	require.EqualValues(t, 0, getJSON(t, srv.URL+"/api/documents/list")["count"])

	resp, err := http.Post(srv.URL+"/api/constructor/start", "application/json", strings.NewReader(`{"description":"Una API REST en Flask"}`))
	require.NoError(t, err)
	var started map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()
	require.Equal(t, true, started["success"])

	project := getJSON(t, srv.URL+"/api/constructor/projects/"+started["project_id"].(string))["project"].(map[string]any)
	require.Equal(t, "Una API REST en Flask", project["description"])
}

func TestServerExposesMetrics(t *testing.T) {
	srv := newTestServer(t, testConfig(t))

	resp, err := http.Post(srv.URL+"/api/route", "application/json", strings.NewReader(`{"message":"diseña la arquitectura de microservicios"}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "codestorm_router_selections_total")
}

func TestServerMetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.MetricsEnabled = false
	srv := newTestServer(t, cfg)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerRejectsUnknownFallbackAgent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Router.FallbackAgent = "ghost"
	_, err := NewServer(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := NewServer(context.Background(), testConfig(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
