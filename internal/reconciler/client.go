package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
)

// Snapshot is a tolerant view of a build job. Nil fields were absent from the
// response and leave the mirrored state unchanged.
type Snapshot struct {
	ProjectID        string               `json:"project_id"`
	Name             string               `json:"name,omitempty"`
	Status           *string              `json:"status,omitempty"`
	Phase            *string              `json:"phase,omitempty"`
	Progress         *int                 `json:"progress,omitempty"`
	CurrentStep      *string              `json:"current_step,omitempty"`
	CurrentAgent     *string              `json:"current_agent,omitempty"`
	ErrorCount       *int                 `json:"error_count,omitempty"`
	Plan             *build.Plan          `json:"plan,omitempty"`
	CurrentTaskIndex *int                 `json:"current_task_index,omitempty"`
	Notifications    []build.Notification `json:"notifications,omitempty"`
	ConsoleOutput    []string             `json:"console_output,omitempty"`
	Messages         []build.Message      `json:"messages,omitempty"`
}

// StatusValue returns the reported status or "".
func (s Snapshot) StatusValue() string {
	if s.Status == nil {
		return ""
	}
	return *s.Status
}

// Client talks to the build backend.
type Client interface {
	Start(ctx context.Context, cfg build.Config) (string, error)
	Get(ctx context.Context, projectID string) (Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	Pause(ctx context.Context, projectID string) error
	Resume(ctx context.Context, projectID string) error
}

// HTTPClient implements Client against the /api/constructor routes.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a client for the daemon at baseURL. A nil hc uses a
// client with a 30s timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type envelope struct {
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
	Response  string          `json:"response,omitempty"`
	ProjectID string          `json:"project_id,omitempty"`
	Project   json.RawMessage `json:"project,omitempty"`
	Projects  []Snapshot      `json:"projects,omitempty"`
}

func (c *HTTPClient) Start(ctx context.Context, cfg build.Config) (string, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/constructor/start", cfg)
	if err != nil {
		return "", err
	}
	if env.ProjectID == "" {
		return "", errors.New("start response has no project_id")
	}
	return env.ProjectID, nil
}

func (c *HTTPClient) Get(ctx context.Context, projectID string) (Snapshot, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/constructor/projects/"+url.PathEscape(projectID), nil)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if len(env.Project) == 0 {
		return Snapshot{}, errors.New("response has no project")
	}
	if err := json.Unmarshal(env.Project, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode project: %w", err)
	}
	return snap, nil
}

func (c *HTTPClient) List(ctx context.Context) ([]Snapshot, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/constructor/projects", nil)
	if err != nil {
		return nil, err
	}
	return env.Projects, nil
}

func (c *HTTPClient) Pause(ctx context.Context, projectID string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/constructor/pause/"+url.PathEscape(projectID), struct{}{})
	return err
}

func (c *HTTPClient) Resume(ctx context.Context, projectID string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/constructor/resume/"+url.PathEscape(projectID), struct{}{})
	return err
}

// SendMessage posts a chat message to a build and returns the reply.
func (c *HTTPClient) SendMessage(ctx context.Context, projectID, text string) (string, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/constructor/message/"+url.PathEscape(projectID), map[string]string{"message": text})
	if err != nil {
		return "", err
	}
	return env.Response, nil
}

// BackendError is a failure reported by the backend in its response body.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return e.Message
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return envelope{}, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return envelope{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return envelope{}, &BackendError{StatusCode: resp.StatusCode}
		}
		return envelope{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return envelope{}, &BackendError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	return env, nil
}
