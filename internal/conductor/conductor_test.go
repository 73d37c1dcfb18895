package conductor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
	"github.com/kandev/axiom/internal/llm"
)

// fakeProvider streams a scripted response.
type fakeProvider struct {
	id     string
	status llm.Status
	chunks []string
	errMsg string
}

func (p *fakeProvider) ID() string { return p.id }
func (p *fakeProvider) Name() string { return "Fake " + p.id }
func (p *fakeProvider) Model() string { return "fake-model" }
func (p *fakeProvider) SetModel(string) error { return nil }
func (p *fakeProvider) ListModels() ([]string, error) { return []string{"fake-model"}, nil }
func (p *fakeProvider) Capabilities() llm.Capabilities { return llm.Capabilities{Streaming: true} }
func (p *fakeProvider) Status() llm.Status { return p.status }

func (p *fakeProvider) SendMessage(_ []llm.ChatMessage, sink chan<- events.Event) {
	go func() {
		for _, chunk := range p.chunks {
			sink <- events.LlmChunk{Text: chunk}
		}
		if p.errMsg != "" {
			sink <- events.LlmError{Message: p.errMsg}
		}
		sink <- events.LlmDone{}
		close(sink)
	}()
}

func testConductor(t *testing.T, providers ...llm.Provider) (*Conductor, *bus.Bus, *llm.Registry) {
	t.Helper()
	b := bus.New(256)
	registry := llm.NewRegistry()
	for _, p := range providers {
		registry.Register(p)
	}
	if len(providers) > 0 {
		require.NoError(t, registry.SetActive(providers[0].ID()))
	}
	return New(registry, b, logger.Default()), b, registry
}

// drainUntilIdle collects events until the conductor parks itself in Idle.
func drainUntilIdle(t *testing.T, b *bus.Bus) []events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	var collected []events.Event
	for {
		select {
		case <-deadline:
			t.Fatalf("conductor never reached Idle; got %d events", len(collected))
		default:
		}
		env, ok := b.RecvTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		collected = append(collected, env.Payload)
		if update, ok := env.Payload.(events.AgentUpdate); ok && update.Status.Kind == agent.StatusIdle {
			return collected
		}
	}
}

func TestProcessFirstTurnSpawnsConductor(t *testing.T) {
	c, b, _ := testConductor(t, &fakeProvider{id: "fake", status: llm.Ready()})

	c.Process("look around")

	env, ok := b.RecvTimeout(time.Second)
	require.True(t, ok)
	spawn, ok := env.Payload.(events.AgentSpawn)
	require.True(t, ok, "expected AgentSpawn, got %T", env.Payload)
	assert.Equal(t, agent.TypeConductor, spawn.Request.Type.Kind)
	assert.Equal(t, "Conductor", spawn.Request.Name)
	assert.Equal(t, "look around", spawn.Request.Parameters)
	assert.Zero(t, spawn.Request.ParentID, "the conductor is the root agent")
}

func TestProcessSecondTurnWakesExistingConductor(t *testing.T) {
	c, b, _ := testConductor(t, &fakeProvider{id: "fake", status: llm.Ready(), chunks: []string{"ok"}})

	c.SetAgentID(5)
	c.Process("again")

	env, ok := b.RecvTimeout(time.Second)
	require.True(t, ok)
	wake, ok := env.Payload.(events.AgentWake)
	require.True(t, ok, "expected AgentWake, got %T", env.Payload)
	assert.Equal(t, agent.ID(5), wake.ID)

	drainUntilIdle(t, b)
	assert.Equal(t, agent.ID(5), c.AgentID(), "the conductor agent id is reused across turns")
}

func TestExecuteStreamsAndSpawnsDirectives(t *testing.T) {
	provider := &fakeProvider{
		id:     "fake",
		status: llm.Ready(),
		chunks: []string{"Doing it.\n", "@shell ls\n", "@search TODO\n"},
	}
	c, b, _ := testConductor(t, provider)
	c.SetAgentID(1)

	c.Execute(1, "look around")
	collected := drainUntilIdle(t, b)

	var sawRunning bool
	var output strings.Builder
	var spawns []agent.SpawnRequest
	for _, ev := range collected {
		switch ev := ev.(type) {
		case events.AgentUpdate:
			if ev.Status.IsRunning() {
				sawRunning = true
			}
		case events.AgentOutput:
			require.Equal(t, agent.ID(1), ev.ID)
			output.WriteString(ev.Chunk)
		case events.AgentSpawn:
			spawns = append(spawns, ev.Request)
		}
	}

	assert.True(t, sawRunning)
	assert.Contains(t, output.String(), ">>>user\nlook around\n<<<")
	assert.Contains(t, output.String(), "**Axiom:** ")
	assert.Contains(t, output.String(), "Doing it.")

	require.Len(t, spawns, 2)
	assert.Equal(t, agent.TypeShell, spawns[0].Type.Kind)
	assert.Equal(t, agent.TypeSearch, spawns[1].Type.Kind)
	for _, spawn := range spawns {
		assert.Equal(t, agent.ID(1), spawn.ParentID)
	}

	// The assistant response lands in the history.
	history := c.History()
	require.NotEmpty(t, history)
	assert.Equal(t, llm.RoleAssistant, history[len(history)-1].Role)
}

func TestExecuteWithoutProviderGoesIdle(t *testing.T) {
	c, b, _ := testConductor(t) // no providers registered
	c.SetAgentID(1)

	c.Execute(1, "anything")
	collected := drainUntilIdle(t, b)

	var output strings.Builder
	for _, ev := range collected {
		if out, ok := ev.(events.AgentOutput); ok {
			output.WriteString(out.Chunk)
		}
	}
	assert.Contains(t, output.String(), "No LLM provider available")
}

func TestExecuteProviderErrorGoesIdleWithoutSpawns(t *testing.T) {
	provider := &fakeProvider{
		id:     "fake",
		status: llm.Ready(),
		chunks: []string{"half of it @shell"},
		errMsg: "stream interrupted",
	}
	c, b, _ := testConductor(t, provider)
	c.SetAgentID(1)

	c.Execute(1, "go")
	collected := drainUntilIdle(t, b)

	var output strings.Builder
	for _, ev := range collected {
		switch ev := ev.(type) {
		case events.AgentOutput:
			output.WriteString(ev.Chunk)
		case events.AgentSpawn:
			t.Fatalf("unexpected spawn after stream error: %+v", ev.Request)
		}
	}
	assert.Contains(t, output.String(), "Error: stream interrupted")
}

func TestExecuteFallsBackToReadyProvider(t *testing.T) {
	primary := &fakeProvider{id: "primary", status: llm.Unavailable("down")}
	backup := &fakeProvider{id: "backup", status: llm.Ready(), chunks: []string{"from backup"}}

	c, b, registry := testConductor(t, primary, backup)
	require.NoError(t, registry.SetActive("primary"))
	c.SetAgentID(1)

	c.Execute(1, "hello")
	collected := drainUntilIdle(t, b)

	var output strings.Builder
	for _, ev := range collected {
		if out, ok := ev.(events.AgentOutput); ok {
			output.WriteString(out.Chunk)
		}
	}
	assert.Contains(t, output.String(), "from backup")
}

func TestHistoryIsBounded(t *testing.T) {
	c, _, _ := testConductor(t, &fakeProvider{id: "fake", status: llm.Ready()})
	c.SetAgentID(1)

	for i := 0; i < maxHistory+10; i++ {
		c.AddResponse("response")
	}
	assert.Len(t, c.History(), maxHistory)
}

func TestClearHistory(t *testing.T) {
	c, _, _ := testConductor(t, &fakeProvider{id: "fake", status: llm.Ready()})
	c.AddResponse("something")
	require.NotEmpty(t, c.History())

	c.ClearHistory()
	assert.Empty(t, c.History())
}
