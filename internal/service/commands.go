// Package service exposes the backend facade: user Commands in, UI
// Notifications out. It is the single consumer of the event bus.
package service

import (
	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/events"
)

// Command is a user intent issued by a UI. The concrete types below form a
// closed set.
type Command interface {
	isCommand()
}

// ProcessInput routes a raw user input line: "#<id> <prompt>" invokes a CLI
// agent, anything else goes to the conductor.
type ProcessInput struct {
	Text string
}

// ExecuteShell spawns a shell agent for a single command.
type ExecuteShell struct {
	Command string
}

// InvokeCliAgent starts an external CLI agent session.
type InvokeCliAgent struct {
	AgentID string
	Prompt  string
}

// SendPtyInput routes keystrokes to a PTY session.
type SendPtyInput struct {
	AgentID agent.ID
	Data    []byte
}

// ResizePty changes a PTY session's dimensions.
type ResizePty struct {
	AgentID agent.ID
	Cols    uint16
	Rows    uint16
}

// ReadFile loads a file and attaches the viewer to it.
type ReadFile struct {
	Path string
}

// WriteFile writes a file.
type WriteFile struct {
	Path    string
	Content string
}

// SetLlmModel switches the model on a provider.
type SetLlmModel struct {
	ProviderID string
	Model      string
}

// CancelAgent cancels an agent; CLI agent sessions are torn down.
type CancelAgent struct {
	AgentID agent.ID
}

// SelectContext changes the viewer attachment.
type SelectContext struct {
	Context events.OutputContext
}

// ListProviders reports the configured LLM providers.
type ListProviders struct{}

// ListCliAgents reports the configured CLI agents.
type ListCliAgents struct{}

// GetSnapshot requests a full state snapshot notification.
type GetSnapshot struct{}

// ListFiles lists a directory for the file tree.
type ListFiles struct {
	Path          string
	IncludeHidden bool
}

// Shutdown tears down PTY sessions and closes the event bus. In-flight
// executor workers run to completion; their late output is dropped.
type Shutdown struct{}

// Workspace commands are pass-throughs: workspace persistence lives in an
// external collaborator, so a standalone service only acknowledges them.

// ListWorkspaces lists configured workspaces.
type ListWorkspaces struct{}

// CreateWorkspace creates a workspace.
type CreateWorkspace struct {
	Name string
	Path string
}

// DeleteWorkspace removes a workspace.
type DeleteWorkspace struct {
	WorkspaceID string
}

// ActivateWorkspace switches the active workspace.
type ActivateWorkspace struct {
	WorkspaceID string
}

// DeactivateWorkspace clears the active workspace.
type DeactivateWorkspace struct{}

// GetWorkspace fetches one workspace.
type GetWorkspace struct {
	WorkspaceID string
}

// UpdateWorkspace renames a workspace.
type UpdateWorkspace struct {
	WorkspaceID string
	Name        string
}

func (ProcessInput) isCommand()        {}
func (ExecuteShell) isCommand()        {}
func (InvokeCliAgent) isCommand()      {}
func (SendPtyInput) isCommand()        {}
func (ResizePty) isCommand()           {}
func (ReadFile) isCommand()            {}
func (WriteFile) isCommand()           {}
func (SetLlmModel) isCommand()         {}
func (CancelAgent) isCommand()         {}
func (SelectContext) isCommand()       {}
func (ListProviders) isCommand()       {}
func (ListCliAgents) isCommand()       {}
func (GetSnapshot) isCommand()         {}
func (ListFiles) isCommand()           {}
func (Shutdown) isCommand()            {}
func (ListWorkspaces) isCommand()      {}
func (CreateWorkspace) isCommand()     {}
func (DeleteWorkspace) isCommand()     {}
func (ActivateWorkspace) isCommand()   {}
func (DeactivateWorkspace) isCommand() {}
func (GetWorkspace) isCommand()        {}
func (UpdateWorkspace) isCommand()     {}
