// Package events defines the typed events that flow across thread boundaries.
//
// The event bus is the only way components talk to each other: executors,
// PTY readers, provider streams, and the file watcher all publish here, and
// the service facade drains the queue and turns events into notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/kandev/axiom/internal/agent"
)

// Event is a message carried by the bus. The concrete types below form a
// closed set; the facade dispatches with a type switch.
type Event interface {
	isEvent()
}

// ConductorRequest asks the conductor to process user input.
type ConductorRequest struct {
	Text string
}

// ShellExecute asks for a shell agent spawn (from input routing).
type ShellExecute struct {
	Command string
}

// AgentSpawn requests a new agent.
type AgentSpawn struct {
	Request agent.SpawnRequest
}

// AgentUpdate carries an agent status change.
type AgentUpdate struct {
	ID     agent.ID
	Status agent.Status
}

// AgentOutput carries a streaming output chunk for an agent.
type AgentOutput struct {
	ID    agent.ID
	Chunk string
}

// AgentComplete signals that an agent's worker finished.
type AgentComplete struct {
	ID agent.ID
}

// AgentWake re-enters an idle agent (used for the persistent Conductor).
type AgentWake struct {
	ID agent.ID
}

// CliAgentOutput carries raw PTY bytes from an external CLI agent.
type CliAgentOutput struct {
	ID   agent.ID
	Data []byte
}

// CliAgentExit signals that a PTY child process exited.
type CliAgentExit struct {
	ID       agent.ID
	ExitCode int
}

// CliAgentInput routes user keystrokes to a PTY session.
type CliAgentInput struct {
	ID   agent.ID
	Data []byte
}

// CliAgentInvoke asks for a new external CLI agent session.
type CliAgentInvoke struct {
	ConfigID string
	Prompt   string
}

// LlmChunk is a streaming response fragment from a provider.
type LlmChunk struct {
	Text string
}

// LlmDone signals the end of a provider stream. Providers emit exactly one.
type LlmDone struct{}

// LlmError reports a provider failure. Emitted at most once, before LlmDone.
type LlmError struct {
	Message string
}

// FileModification reports a file written by an agent, so viewers refresh.
type FileModification struct {
	Path    string
	Content string
}

// FileChanged reports a file changed on disk, detected by the watcher.
type FileChanged struct {
	Path string
}

// SwitchContext changes what the viewer is attached to.
type SwitchContext struct {
	Context OutputContext
}

// Tick is a periodic housekeeping event.
type Tick struct{}

// Shutdown requests a clean stop.
type Shutdown struct{}

func (ConductorRequest) isEvent() {}
func (ShellExecute) isEvent()     {}
func (AgentSpawn) isEvent()       {}
func (AgentUpdate) isEvent()      {}
func (AgentOutput) isEvent()      {}
func (AgentComplete) isEvent()    {}
func (AgentWake) isEvent()        {}
func (CliAgentOutput) isEvent()   {}
func (CliAgentExit) isEvent()     {}
func (CliAgentInput) isEvent()    {}
func (CliAgentInvoke) isEvent()   {}
func (LlmChunk) isEvent()         {}
func (LlmDone) isEvent()          {}
func (LlmError) isEvent()         {}
func (FileModification) isEvent() {}
func (FileChanged) isEvent()      {}
func (SwitchContext) isEvent()    {}
func (Tick) isEvent()             {}
func (Shutdown) isEvent()         {}

// ContextKind discriminates viewer attachments.
type ContextKind int

const (
	ContextEmpty ContextKind = iota
	ContextFile
	ContextAgent
)

// OutputContext selects what a viewer is attached to: a file, an agent, or
// nothing.
type OutputContext struct {
	Kind    ContextKind
	Path    string
	AgentID agent.ID
}

// EmptyContext is the unattached viewer context.
func EmptyContext() OutputContext { return OutputContext{Kind: ContextEmpty} }

// FileContext attaches the viewer to a file path.
func FileContext(path string) OutputContext {
	return OutputContext{Kind: ContextFile, Path: path}
}

// AgentContext attaches the viewer to an agent.
func AgentContext(id agent.ID) OutputContext {
	return OutputContext{Kind: ContextAgent, AgentID: id}
}

// Envelope wraps an event with an id and timestamp for correlation in logs.
type Envelope struct {
	ID        string
	Timestamp time.Time
	Payload   Event
}

// NewEnvelope wraps an event with a fresh UUID and the current time.
func NewEnvelope(payload Event) Envelope {
	return Envelope{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
