// Package model defines the entities shared by every kernel component, per
// the data model.
package model

import "time"

// Status is the closed set of discrete agent activity states.
type Status string

const (
	StatusStarting Status = "starting"
	StatusWorking Status = "working"
	StatusWaitingInput Status = "waiting_input"
	StatusIdle Status = "idle"
	StatusError Status = "error"
	StatusStopped Status = "stopped"
)

// Terminal reports whether this status ends the agent's lifecycle.
func (s Status) Terminal() bool { return s == StatusStopped }

// Valid reports whether s is one of the closed set of statuses.
func (s Status) Valid() bool {
	switch s {
		case StatusStarting, StatusWorking, StatusWaitingInput, StatusIdle, StatusError, StatusStopped:
		return true
		default:
		return false
	}
}

// maxLastOutput bounds Agent.LastOutput per the "bounded" invariant.
const maxLastOutput = 8192

// Agent is a supervised long-running CLI process in an isolated workspace.
type Agent struct {
	ID string `json:"id"` // 6-hex, process-wide unique
	Project string `json:"project"`
	SessionName string `json:"session_name"` // forge__{project}__{id}
	WorkspacePath string `json:"workspace_path"`
	BranchName string `json:"branch_name"`
	Status Status `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Task string `json:"task"`
	ProfileName string `json:"profile_name"`
	SubAgentCount int `json:"sub_agent_count"`
	NeedsAttention bool `json:"needs_attention"`
	Parked bool `json:"parked"`
	LastOutput string `json:"last_output"`
	LastResponse string `json:"last_response"`
	LastUserMessage string `json:"last_user_message"`
}

// SetLastOutput stores output truncated to the bounded tail the spec requires.
func (a *Agent) SetLastOutput(s string) {
	if len(s) > maxLastOutput {
		s = s[len(s)-maxLastOutput:]
	}
	a.LastOutput = s
}

// Clone() returns an independent copy, so callers can't mutate Manager-owned state.
func (a *Agent) Clone() *Agent {
	cp:= *a
	return &cp
}

// ChannelBinding binds a chat channel to a project for inbound/outbound routing.
type ChannelBinding struct {
	ConnectorID string `json:"connector_id"`
	ChannelID string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Inbound bool `json:"inbound"`
	Outbound bool `json:"outbound"`
}

// Project is a git repository agents can be spawned into.
type Project struct {
	Name string `json:"name"`
	Path string `json:"path"`
	DefaultBranch string `json:"default_branch"`
	MaxAgents int `json:"max_agents"`
	AgentInstructions string `json:"agent_instructions"`
	ContextFiles []string `json:"context_files"`
	ChannelBindings []ChannelBinding `json:"channel_bindings"`
	Description string `json:"description"`
	Sandbox string `json:"sandbox"` // "", "docker"
}

// StartDirective is one scripted post-boot action for a Profile.
type StartDirective struct {
	Action string `json:"action"` // wait | send | wait_for_idle
	Value string `json:"value"`
}

// Profile bundles a system prompt, instructions, and post-boot actions.
type Profile struct {
	Name string `json:"name"`
	Description string `json:"description"`
	SystemPrompt string `json:"system_prompt"`
	Instructions string `json:"instructions"`
	StartSequence []StartDirective `json:"start_sequence"`
}

// ConnectorState is the closed lifecycle state machine of a connector instance.
type ConnectorState string

const (
	ConnectorDisabled ConnectorState = "disabled"
	ConnectorStarting ConnectorState = "starting"
	ConnectorRunning ConnectorState = "running"
	ConnectorReconnecting ConnectorState = "reconnecting"
	ConnectorStopping ConnectorState = "stopping"
	ConnectorStopped ConnectorState = "stopped"
)

// ConnectorInstance is one configured chat-platform adapter.
type ConnectorInstance struct {
	ID string `json:"id"`
	Type string `json:"type"`
	Enabled bool `json:"enabled"`
	Credentials map[string]string `json:"-"` // opaque, never logged
	Settings map[string]interface{} `json:"settings"`
	State ConnectorState `json:"state"`
}

// EventKind is the closed set of append-only event kinds.
type EventKind string

const (
	EventSpawned EventKind = "spawned"
	EventKilled EventKind = "killed"
	EventRestarted EventKind = "restarted"
	EventStatusChange EventKind = "status-change"
	EventUserMessage EventKind = "user-message"
	EventAgentResponse EventKind = "agent-response"
	EventWaitingInput EventKind = "waiting-input"
	EventSubAgentStart EventKind = "sub-agent-start"
	EventSubAgentStop EventKind = "sub-agent-stop"
	EventError EventKind = "error"
	EventCrash EventKind = "crash"
)

// Event is an append-only lifecycle/interaction record.
type Event struct {
	ID int64 `json:"id"`
	AgentID string `json:"agent_id"`
	Project string `json:"project"`
	Kind EventKind `json:"kind"`
	Payload map[string]interface{} `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the latest durable image of an Agent's fields, one row per agent.
type Snapshot struct {
	AgentID string `json:"agent_id"`
	Project string `json:"project"`
	SessionName string `json:"session_name"`
	BranchName string `json:"branch_name"`
	Status Status `json:"status"`
	Task string `json:"task"`
	Profile string `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	LastResponse string `json:"last_response"`
	LastUserMessage string `json:"last_user_message"`
	SubAgentCount int `json:"sub_agent_count"`
	Location string `json:"location"`
	Parked bool `json:"parked"`
}

// SnapshotOf derives a Snapshot from the current Agent fields.
func SnapshotOf(a *Agent) Snapshot {
	return Snapshot{
		AgentID: a.ID,
		Project: a.Project,
		SessionName: a.SessionName,
		BranchName: a.BranchName,
		Status: a.Status,
		Task: a.Task,
		Profile: a.ProfileName,
		CreatedAt: a.CreatedAt,
		LastActivity: a.LastActivityAt,
		LastResponse: a.LastResponse,
		LastUserMessage: a.LastUserMessage,
		SubAgentCount: a.SubAgentCount,
		Location: a.WorkspacePath,
		Parked: a.Parked,
	}
}
