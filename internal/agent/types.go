// Package agent defines the agent data model and the registry that owns it.
//
// An agent is a unit of work with an identity, a type, a status, an
// append-only output buffer, and an optional parent. The registry is the
// authoritative store for agent records; all other components hold only IDs.
package agent

import (
	"fmt"
	"strings"
	"time"
)

// ID uniquely identifies a spawned agent. IDs are allocated from a
// process-wide monotonic counter and never reused within a process lifetime.
type ID uint64

func (id ID) String() string {
	return fmt.Sprintf("agent-%d", uint64(id))
}

// TypeKind discriminates agent types.
type TypeKind int

const (
	TypeConductor TypeKind = iota
	TypeCoder
	TypeShell
	TypeFileOps
	TypeSearch
	TypeCustom
	TypeCliAgent
)

// Type describes what an agent is: one of the built-in kinds, a custom tool
// identified by name, or an external CLI agent identified by its config id.
type Type struct {
	Kind TypeKind
	// Name holds the custom tool name for TypeCustom, or the CLI agent
	// config id for TypeCliAgent. Empty otherwise.
	Name string
}

// Conductor is the persistent planner agent type.
func Conductor() Type { return Type{Kind: TypeConductor} }

// Coder is the file-writing agent type.
func Coder() Type { return Type{Kind: TypeCoder} }

// Shell is the shell-command agent type.
func Shell() Type { return Type{Kind: TypeShell} }

// FileOps is the file-operations agent type.
func FileOps() Type { return Type{Kind: TypeFileOps} }

// Search is the content-search agent type.
func Search() Type { return Type{Kind: TypeSearch} }

// Custom is a named custom tool agent type.
func Custom(name string) Type { return Type{Kind: TypeCustom, Name: name} }

// CliAgent is an externally-spawned interactive agent run under a PTY.
func CliAgent(configID string) Type { return Type{Kind: TypeCliAgent, Name: configID} }

// IsCliAgent reports whether this type is an external CLI agent.
func (t Type) IsCliAgent() bool { return t.Kind == TypeCliAgent }

// CliConfigID returns the CLI agent config id for TypeCliAgent types.
func (t Type) CliConfigID() (string, bool) {
	if t.Kind == TypeCliAgent {
		return t.Name, true
	}
	return "", false
}

// Label returns a short display label for the agent type.
func (t Type) Label() string {
	switch t.Kind {
	case TypeConductor:
		return "Conductor"
	case TypeCoder:
		return "Coder"
	case TypeShell:
		return "Shell"
	case TypeFileOps:
		return "FileOps"
	case TypeSearch:
		return "Search"
	case TypeCustom, TypeCliAgent:
		return t.Name
	}
	return "Unknown"
}

func (t Type) String() string { return t.Label() }

// StatusKind discriminates agent lifecycle states.
type StatusKind int

const (
	StatusPending StatusKind = iota
	StatusRunning
	StatusIdle
	StatusCompleted
	StatusError
	StatusCancelled
)

// Status is the agent lifecycle state. The state machine is
// Pending → Running → (Completed | Error | Cancelled), with Running ↔ Idle
// reserved for the persistent Conductor.
type Status struct {
	Kind StatusKind
	// Message carries the error description for StatusError.
	Message string
}

// Pending is the initial status of a spawned agent.
func Pending() Status { return Status{Kind: StatusPending} }

// Running marks an agent as executing.
func Running() Status { return Status{Kind: StatusRunning} }

// Idle marks the Conductor as waiting for the next user turn.
func Idle() Status { return Status{Kind: StatusIdle} }

// Completed marks an agent as finished successfully.
func Completed() Status { return Status{Kind: StatusCompleted} }

// Errored marks an agent as failed with a message.
func Errored(message string) Status { return Status{Kind: StatusError, Message: message} }

// Cancelled marks an agent as cancelled by the user.
func Cancelled() Status { return Status{Kind: StatusCancelled} }

// IsTerminal reports whether the status is Completed, Error, or Cancelled.
func (s Status) IsTerminal() bool {
	return s.Kind == StatusCompleted || s.Kind == StatusError || s.Kind == StatusCancelled
}

// IsRunning reports whether the agent is currently executing.
func (s Status) IsRunning() bool { return s.Kind == StatusRunning }

func (s Status) String() string {
	switch s.Kind {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusIdle:
		return "Idle"
	case StatusCompleted:
		return "Completed"
	case StatusError:
		return "Error: " + s.Message
	case StatusCancelled:
		return "Cancelled"
	}
	return "Unknown"
}

// SpawnRequest asks the registry to create a new agent.
type SpawnRequest struct {
	Type        Type
	Name        string
	Description string
	// Parameters carries the task-specific payload: the shell command, the
	// "path|content" pair for a coder, the search query, or the fileops
	// "op path" string.
	Parameters string
	// ParentID links a child to the agent that spawned it. Zero means root.
	ParentID ID
}

// View is a read-only snapshot of an agent for display. It deliberately
// excludes the output buffer; use Registry.Output for that.
type View struct {
	ID          ID
	Type        Type
	Name        string
	Description string
	Status      Status
	LineCount   int
	TokenCount  int
	Elapsed     time.Duration
	ParentID    ID
}

// record is a live agent entry. It is owned exclusively by the Registry and
// mutated only under the registry write lock.
type record struct {
	id          ID
	agentType   Type
	name        string
	description string
	status      Status
	output      strings.Builder
	lineCount   int
	tokenCount  int
	createdAt   time.Time
	completedAt time.Time
	parentID    ID
}

func newRecord(id ID, req SpawnRequest) *record {
	return &record{
		id:          id,
		agentType:   req.Type,
		name:        req.Name,
		description: req.Description,
		status:      Pending(),
		createdAt:   time.Now(),
		parentID:    req.ParentID,
	}
}

// start moves Pending (or Idle, for the Conductor) to Running.
// Any other transition into Running is a no-op.
func (r *record) start() bool {
	if r.status.Kind != StatusPending && r.status.Kind != StatusIdle {
		return false
	}
	r.status = Running()
	return true
}

// idle parks a Running Conductor between turns. Terminal states stay put.
func (r *record) idle() bool {
	if r.status.Kind != StatusRunning {
		return false
	}
	r.status = Idle()
	return true
}

func (r *record) appendOutput(chunk string) {
	r.output.WriteString(chunk)
	// ~4 chars per token on average
	r.tokenCount = r.output.Len() / 4
	r.lineCount += strings.Count(chunk, "\n")
}

func (r *record) complete() bool {
	if r.status.IsTerminal() {
		return false
	}
	r.status = Completed()
	r.completedAt = time.Now()
	return true
}

func (r *record) error(message string) bool {
	if r.status.IsTerminal() {
		return false
	}
	r.status = Errored(message)
	r.completedAt = time.Now()
	return true
}

func (r *record) cancel() bool {
	if r.status.IsTerminal() {
		return false
	}
	r.status = Cancelled()
	r.completedAt = time.Now()
	return true
}

func (r *record) view() View {
	return View{
		ID:          r.id,
		Type:        r.agentType,
		Name:        r.name,
		Description: r.description,
		Status:      r.status,
		LineCount:   r.lineCount,
		TokenCount:  r.tokenCount,
		Elapsed:     time.Since(r.createdAt),
		ParentID:    r.parentID,
	}
}
