// Package build runs autonomous project builds and keeps their job records.
package build

import (
	"errors"
	"time"
)

// Job statuses.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Job phases.
const (
	PhaseInitial        = "initial"
	PhaseAnalysis       = "analysis"
	PhasePlanning       = "planning"
	PhaseImplementation = "implementation"
	PhaseTesting        = "testing"
	PhaseRefinement     = "refinement"
	PhaseCompleted      = "completed"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in-progress"
	TaskCompleted  = "completed"
)

// Notification types.
const (
	NotifyInfo     = "info"
	NotifySuccess  = "success"
	NotifyWarning  = "warning"
	NotifyError    = "error"
	NotifyProgress = "progress"
)

var (
	// ErrNotFound is returned for unknown project ids.
	ErrNotFound = errors.New("project not found")
	// ErrNotActive is returned when pausing or resuming a job in the wrong state.
	ErrNotActive = errors.New("project is not active")
	// ErrDescriptionRequired is returned when a build is started without a description.
	ErrDescriptionRequired = errors.New("se requiere una descripción del proyecto")
	// ErrRunning is returned when deleting a job that has not finished.
	ErrRunning = errors.New("project is still running")
	// ErrEmptyMessage is returned by PostMessage for blank text.
	ErrEmptyMessage = errors.New("se requiere un mensaje")
)

// Agents selects which builder agents take part in a build.
type Agents struct {
	Architect bool `json:"architect"`
	Developer bool `json:"developer"`
	Testing   bool `json:"testing"`
	Fixing    bool `json:"fixing"`
}

// AllAgents enables every agent.
func AllAgents() Agents {
	return Agents{Architect: true, Developer: true, Testing: true, Fixing: true}
}

// Enabled reports whether the agent with id takes part.
func (a Agents) Enabled(id string) bool {
	switch id {
	case "architect":
		return a.Architect
	case "developer":
		return a.Developer
	case "testing":
		return a.Testing
	case "fixing":
		return a.Fixing
	}
	return false
}

// Config is a build request.
type Config struct {
	Description      string  `json:"description"`
	Model            string  `json:"model,omitempty"`
	Agents           *Agents `json:"agents,omitempty"`
	DevelopmentSpeed string  `json:"development_speed,omitempty"`
}

// Stack is the detected technology stack.
type Stack struct {
	Language  string `json:"language"`
	Framework string `json:"framework"`
	Database  string `json:"database,omitempty"`
}

// Task is one step of the development plan.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MinMinutes  int      `json:"min_minutes"`
	MaxMinutes  int      `json:"max_minutes"`
	Time        int      `json:"time"`
	Status      string   `json:"status"`
	Agent       string   `json:"agent,omitempty"`
	Subtasks    []string `json:"subtasks,omitempty"`
}

// Plan is the ordered task list with its total estimate in minutes.
type Plan struct {
	Tasks         []Task `json:"tasks"`
	EstimatedTime int    `json:"estimated_time"`
	Summary       string `json:"summary,omitempty"`
}

// Notification is a user-facing event.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is a chat-style log entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is the server-held record of a build. Notifications, ConsoleOutput and
// Messages only ever grow.
type Job struct {
	ID               string         `json:"project_id"`
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Status           string         `json:"status"`
	Phase            string         `json:"phase"`
	Progress         int            `json:"progress"`
	CurrentStep      string         `json:"current_step"`
	CurrentAgent     string         `json:"current_agent,omitempty"`
	Model            string         `json:"model"`
	DevelopmentSpeed string         `json:"development_speed"`
	Agents           Agents         `json:"agents"`
	ProjectType      string         `json:"project_type,omitempty"`
	TechStack        *Stack         `json:"tech_stack,omitempty"`
	Plan             *Plan          `json:"plan,omitempty"`
	CurrentTaskIndex int            `json:"current_task_index"`
	ErrorCount       int            `json:"error_count"`
	Notifications    []Notification `json:"notifications"`
	ConsoleOutput    []string       `json:"console_output"`
	Messages         []Message      `json:"messages"`
	Files            []string       `json:"generated_files"`
	WorkspacePath    string         `json:"workspace_path,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Terminal reports whether the job reached a final status.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusError
}

// Clone returns a deep copy.
func (j Job) Clone() Job {
	out := j
	out.Notifications = append([]Notification(nil), j.Notifications...)
	out.ConsoleOutput = append([]string(nil), j.ConsoleOutput...)
	out.Messages = append([]Message(nil), j.Messages...)
	out.Files = append([]string(nil), j.Files...)
	if j.TechStack != nil {
		s := *j.TechStack
		out.TechStack = &s
	}
	if j.Plan != nil {
		p := *j.Plan
		p.Tasks = make([]Task, len(j.Plan.Tasks))
		for i, t := range j.Plan.Tasks {
			t.Subtasks = append([]string(nil), t.Subtasks...)
			p.Tasks[i] = t
		}
		out.Plan = &p
	}
	return out
}
