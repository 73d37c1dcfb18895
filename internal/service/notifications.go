package service

import (
	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/llm"
)

// Notification is a UI-facing message emitted by the facade.
type Notification interface {
	isNotification()
}

// AgentSpawned reports a new agent.
type AgentSpawned struct {
	ID       agent.ID
	Name     string
	Type     agent.Type
	ParentID agent.ID
}

// AgentStatusChanged reports an agent status transition.
type AgentStatusChanged struct {
	ID     agent.ID
	Status agent.Status
}

// AgentOutput carries a streamed output chunk.
type AgentOutput struct {
	ID    agent.ID
	Chunk string
}

// PtyOutput carries raw PTY bytes for attached terminal viewers.
type PtyOutput struct {
	ID   agent.ID
	Data []byte
}

// PtyExited reports a CLI agent child exit.
type PtyExited struct {
	ID       agent.ID
	ExitCode int
}

// FileLoaded carries a file's content after ReadFile.
type FileLoaded struct {
	Path    string
	Content string
}

// FileModified reports that a file changed, by an agent or on disk.
type FileModified struct {
	Path string
}

// FileEntry is one row of a directory listing.
type FileEntry struct {
	Name        string
	Path        string
	IsDirectory bool
	Size        int64
	Modified    int64
	IsHidden    bool
}

// FileList carries a directory listing.
type FileList struct {
	Path    string
	Entries []FileEntry
}

// Snapshot carries the full backend state for a reconnecting UI.
type Snapshot struct {
	Agents    []agent.View
	Context   events.OutputContext
	Providers []llm.Info
}

// Info is an informational message.
type Info struct {
	Message string
}

// Error reports a facade-level failure.
type Error struct {
	Message string
}

func (AgentSpawned) isNotification()       {}
func (AgentStatusChanged) isNotification() {}
func (AgentOutput) isNotification()        {}
func (PtyOutput) isNotification()          {}
func (PtyExited) isNotification()          {}
func (FileLoaded) isNotification()         {}
func (FileModified) isNotification()       {}
func (FileList) isNotification()           {}
func (Snapshot) isNotification()           {}
func (Info) isNotification()               {}
func (Error) isNotification()              {}
