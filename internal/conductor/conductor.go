// Package conductor implements the persistent planner agent.
//
// The conductor is the root of the agent tree. It turns user text into a
// provider-streamed response, parses that response for spawn directives, and
// oscillates between Running and Idle across user turns so conversation
// history and display state survive.
package conductor

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
	"github.com/kandev/axiom/internal/llm"
)

// maxHistory bounds the conversation history driving the planner.
const maxHistory = 20

const systemPrompt = `You are an AI assistant integrated into Axiom, a terminal-based IDE. You help users with code, shell commands, and file operations.

When you need to perform actions, you can spawn specialized agents:

1. **Shell Agent**: Execute shell commands
   Format: ` + "`@shell <command>`" + `
   Example: ` + "`@shell ls -la`" + `

2. **Coder Agent**: Modify or create code files
   Format: ` + "`@coder <description>`" + ` followed by a code block
   Example:
   @coder Update the main function
   ` + "```go:main.go" + `
   package main

   func main() {
       println("Hello!")
   }
   ` + "```" + `

3. **Search Agent**: Search files or content
   Format: ` + "`@search <query>`" + `
   Example: ` + "`@search TODO`" + `

4. **FileOps Agent**: Read, write, or manage files
   Format: ` + "`@fileops <operation> <path>`" + `
   Example: ` + "`@fileops read main.go`" + `

You can spawn multiple agents in a single response. Always explain what you're doing before spawning agents.

If the user's request doesn't require any agent actions, just respond conversationally.`

// Conductor routes user input to the planner model and spawns sub-agents
// from its response.
type Conductor struct {
	providers *llm.Registry
	bus       *bus.Bus
	logger    *logger.Logger

	mu      sync.Mutex
	history []llm.ChatMessage
	agentID agent.ID
}

// New creates a conductor backed by the given provider registry.
func New(providers *llm.Registry, b *bus.Bus, log *logger.Logger) *Conductor {
	return &Conductor{
		providers: providers,
		bus:       b,
		logger:    log.WithFields(zap.String("component", "conductor")),
	}
}

// SetAgentID pins the persistent conductor agent id after the first spawn.
func (c *Conductor) SetAgentID(id agent.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agentID = id
}

// AgentID returns the persistent conductor agent id, or zero before the
// first turn.
func (c *Conductor) AgentID() agent.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID
}

// Process handles one user turn. The first turn spawns the conductor agent;
// later turns wake the existing agent and re-enter it with the new input.
func (c *Conductor) Process(input string) {
	c.mu.Lock()
	c.history = appendTrimmed(c.history, llm.ChatMessage{Role: llm.RoleUser, Content: input})
	id := c.agentID
	c.mu.Unlock()

	if id != 0 {
		c.publish(events.AgentWake{ID: id})
		c.Execute(id, input)
		return
	}

	c.publish(events.AgentSpawn{Request: agent.SpawnRequest{
		Type:        agent.Conductor(),
		Name:        "Conductor",
		Description: "AI Assistant",
		Parameters:  input,
	}})
}

// Execute runs the planner loop for one turn in a background worker.
func (c *Conductor) Execute(id agent.ID, task string) {
	c.publish(events.AgentUpdate{ID: id, Status: agent.Running()})
	c.publish(events.AgentOutput{ID: id, Chunk: fmt.Sprintf(">>>user\n%s\n<<<\n\n", task)})

	c.mu.Lock()
	history := append([]llm.ChatMessage(nil), c.history...)
	c.mu.Unlock()

	go c.runTurn(id, history)
}

// AddResponse appends an assistant message to the conversation history.
func (c *Conductor) AddResponse(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = appendTrimmed(c.history, llm.ChatMessage{Role: llm.RoleAssistant, Content: text})
}

// History returns a copy of the conversation history.
func (c *Conductor) History() []llm.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.ChatMessage(nil), c.history...)
}

// ClearHistory discards the conversation history.
func (c *Conductor) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

func (c *Conductor) runTurn(id agent.ID, history []llm.ChatMessage) {
	messages := make([]llm.ChatMessage, 0, len(history)+1)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)

	provider, ok := c.providers.GetWithFallback(c.providers.ActiveID())
	if !ok {
		c.publish(events.AgentOutput{ID: id, Chunk: "Error: No LLM provider available"})
		c.publish(events.AgentUpdate{ID: id, Status: agent.Idle()})
		return
	}

	c.logger.WithAgentID(uint64(id)).Debug("planner turn",
		zap.String("provider", provider.ID()),
		zap.String("model", provider.Model()))

	stream := make(chan events.Event, 64)
	provider.SendMessage(messages, stream)

	c.publish(events.AgentOutput{ID: id, Chunk: "**Axiom:** "})

	var full strings.Builder
	for ev := range stream {
		switch ev := ev.(type) {
		case events.LlmChunk:
			full.WriteString(ev.Text)
			c.publish(events.AgentOutput{ID: id, Chunk: ev.Text})
		case events.LlmError:
			c.publish(events.AgentOutput{ID: id, Chunk: "\nError: " + ev.Message})
			c.publish(events.AgentUpdate{ID: id, Status: agent.Idle()})
			return
		case events.LlmDone:
			response := full.String()
			c.AddResponse(response)
			for _, req := range ParseDirectives(response, id) {
				c.publish(events.AgentSpawn{Request: req})
			}
			c.publish(events.AgentUpdate{ID: id, Status: agent.Idle()})
			return
		}
	}

	// Stream closed without a terminal event; park the conductor anyway so
	// the next turn can reuse it.
	c.publish(events.AgentUpdate{ID: id, Status: agent.Idle()})
}

func (c *Conductor) publish(event events.Event) {
	_ = c.bus.Send(event)
}

func appendTrimmed(history []llm.ChatMessage, msg llm.ChatMessage) []llm.ChatMessage {
	history = append(history, msg)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	return history
}
