package runtime

import "time"

// ExecutionRequest is one execution intent
type ExecutionRequest struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"projectId"`
	Language    string            `json:"language"`
	Code        string            `json:"code"`
	Command     string            `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	WorkingDir  string            `json:"workingDir,omitempty"`
	Files       map[string]string `json:"files,omitempty"`

	// AllowNetwork and Timeout are process-internal knobs set by the
	// package manager. They are never decoded from API payloads, so
	// callers cannot opt code execution into networking.
	AllowNetwork bool          `json:"-"`
	Timeout      time.Duration `json:"-"`
}

// ExecutionResult is the outcome of one execution. ExitCode 0 means the
// program succeeded; 1 with a non-empty Error tag means the runtime
// failed before or around the program.
type ExecutionResult struct {
	ID         string `json:"id"`
	ExitCode   int    `json:"exitCode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration"`
	Error      string `json:"error,omitempty"`
}

// Error tags classifying internal failures
const (
	ErrTagUnknownLanguage   = "unsupported_language"
	ErrTagEngineUnavailable = "engine_unavailable"
	ErrTagTimeout           = "timeout"
	ErrTagAtCapacity        = "at_capacity"
	ErrTagInternal          = "internal_error"
)

// Status of a tracked container
type Status string

// Container lifecycle states
const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// ContainerInfo is the runtime's bookkeeping entry for one in-flight
// execution
type ContainerInfo struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	ContainerID  string    `json:"containerId"`
	Language     string    `json:"language"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Health is the runtime health snapshot
type Health struct {
	Status             string   `json:"status"`
	ActiveContainers   int      `json:"activeContainers"`
	SupportedLanguages []string `json:"supportedLanguages"`
	EngineConnected    bool     `json:"engineConnected"`
}
