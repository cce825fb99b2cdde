// Package models holds the wire-level data model shared by the switch
// engine, the HTTP surface, and the active-state store: the model
// catalogue, the mode enum, the persisted active state, and the
// switch-job/step tracking records.
package models

import "time"

// Mode is the GPU tenant class currently occupying the host.
type Mode string

const (
	ModeLLM   Mode = "llm"
	ModeComfy Mode = "comfy"
)

// Valid reports whether m is a known enumerator.
func (m Mode) Valid() bool {
	switch m {
	case ModeLLM, ModeComfy:
		return true
	default:
		return false
	}
}

// CatalogEntry describes one LLM backend: its container, the gateway
// config template that wires it into the LLM gateway, and the model name
// the gateway exposes once that template is active.
type CatalogEntry struct {
	ID            string `yaml:"id" json:"id"`
	ContainerName string `yaml:"container_name" json:"container_name"`
	Template      string `yaml:"template" json:"template"`
	GatewayModel  string `yaml:"gateway_model" json:"gateway_model"`
}

// Catalog is the static model → backend mapping plus the fixed ComfyUI
// and gateway container identifiers.
type Catalog struct {
	Models          []CatalogEntry `yaml:"models"`
	ComfyContainer  string         `yaml:"comfy_container"`
	GatewayContainer string        `yaml:"gateway_container"`
}

// ByID returns the catalogue entry for id, if known.
func (c *Catalog) ByID(id string) (CatalogEntry, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return CatalogEntry{}, false
}

// JobState is the lifecycle state of a switch job.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobRunning    JobState = "running"
	JobSuccess    JobState = "success"
	JobFailed     JobState = "failed"
	JobRolledBack JobState = "rolled_back"
)

// Terminal reports whether s is one of the job's terminal states.
func (s JobState) Terminal() bool {
	switch s {
	case JobSuccess, JobFailed, JobRolledBack:
		return true
	default:
		return false
	}
}

// StepRecord is one observable phase of a switch pipeline.
type StepRecord struct {
	Step   string    `json:"step"`
	At     time.Time `json:"at"`
	OK     bool      `json:"ok"`
	Detail string    `json:"detail"`
}

// SwitchJob is the transient, in-memory record of one switch pipeline run.
type SwitchJob struct {
	ID          int64        `json:"id"`
	State       JobState     `json:"state"`
	FromModel   string       `json:"from_model,omitempty"`
	ToModel     string       `json:"to_model"`
	CurrentStep string       `json:"current_step"`
	StateText   string       `json:"state_text"`
	StartedAt   time.Time    `json:"started_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	DurationMS  int64        `json:"duration_ms"`
	Error       string       `json:"error,omitempty"`
	Ready       bool         `json:"ready"`
	Steps       []StepRecord `json:"steps"`
}

// LeaseInfo is the mode-scoped view of the ComfyUI lease.
type LeaseInfo struct {
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RemainingSecond int64      `json:"remaining_seconds"`
	Expired         bool       `json:"expired"`
}

// ModeInfo is the mode-scoped subset of the status payload (GET /mode).
type ModeInfo struct {
	Active  Mode      `json:"active"`
	Default string    `json:"default"`
	Lease   LeaseInfo `json:"lease"`
}

// ContainerSnapshot is the orchestration-port view of a single container.
type ContainerSnapshot struct {
	Exists bool    `json:"exists"`
	Status *string `json:"status"`
	Health *string `json:"health"`
	Error  string  `json:"error,omitempty"`
}

// StatusPayload is the full status payload served by GET /status.
type StatusPayload struct {
	RunningModels    []string                     `json:"running_models"`
	ActiveModel      string                       `json:"active_model,omitempty"`
	ActiveMode       Mode                         `json:"active_mode"`
	Mode             ModeInfo                     `json:"mode"`
	Containers       map[string]ContainerSnapshot `json:"containers"`
	SwitchInProgress bool                         `json:"switch_in_progress"`
	LastError        string                       `json:"last_error,omitempty"`
	LastSwitchAt     *time.Time                   `json:"last_switch_at,omitempty"`
	Switch           *SwitchJob                   `json:"switch,omitempty"`
	HostRAMGB        float64                      `json:"host_ram_gb,omitempty"`
}

// SwitchRequest is the request body for POST /mode/switch and POST /switch.
type SwitchRequest struct {
	Mode          Mode   `json:"mode"`
	Model         string `json:"model,omitempty"`
	TTLMinutes    int    `json:"ttl_minutes,omitempty"`
	WaitForReady  bool   `json:"wait_for_ready"`
}

// SwitchAcceptedResponse is the 202-equivalent acceptance payload.
type SwitchAcceptedResponse struct {
	Status      string `json:"status"` // "accepted" | "in_progress"
	SwitchID    int64  `json:"switch_id"`
	ToModel     string `json:"to_model"`
	StateText   string `json:"state_text"`
	PollEndpoint string `json:"poll_endpoint"`
}

// ModelsResponse is the response for GET /models.
type ModelsResponse struct {
	Models []CatalogEntry `json:"models"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for GET /healthz/ready.
type ReadyResponse struct {
	Status      string `json:"status"`
	ActiveModel string `json:"active_model"`
}
