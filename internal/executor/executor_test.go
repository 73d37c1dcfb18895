package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
)

func testExecutor(t *testing.T) (*Executor, *agent.Registry, *bus.Bus, string) {
	t.Helper()
	cwd := t.TempDir()
	b := bus.New(256)
	registry := agent.NewRegistry()
	return New(b, registry, cwd, logger.Default()), registry, b, cwd
}

// runAgent spawns, executes, and waits for AgentComplete, returning every
// event published along the way.
func runAgent(t *testing.T, e *Executor, registry *agent.Registry, b *bus.Bus, req agent.SpawnRequest) (agent.ID, []events.Event) {
	t.Helper()
	id := registry.Spawn(req)
	e.Execute(id, req)

	deadline := time.After(10 * time.Second)
	var collected []events.Event
	for {
		select {
		case <-deadline:
			t.Fatalf("agent %s never completed; got %d events", id, len(collected))
		default:
		}
		env, ok := b.RecvTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		collected = append(collected, env.Payload)
		if done, ok := env.Payload.(events.AgentComplete); ok && done.ID == id {
			return id, collected
		}
	}
}

func outputOf(collected []events.Event) string {
	var sb strings.Builder
	for _, ev := range collected {
		if out, ok := ev.(events.AgentOutput); ok {
			sb.WriteString(out.Chunk)
		}
	}
	return sb.String()
}

func TestShellExecution(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	id, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Shell(),
		Name:       "Shell",
		Parameters: "echo hello",
	})

	assert.Contains(t, outputOf(collected), "$ echo hello\nhello\n")

	view, ok := registry.Get(id)
	require.True(t, ok)
	assert.Equal(t, agent.StatusCompleted, view.Status.Kind)
}

func TestShellRunningUpdatePublished(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Shell(),
		Parameters: "true",
	})

	var sawRunning bool
	for _, ev := range collected {
		if update, ok := ev.(events.AgentUpdate); ok && update.Status.IsRunning() {
			sawRunning = true
		}
	}
	assert.True(t, sawRunning)
}

func TestShellNonZeroExit(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	id, _ := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Shell(),
		Parameters: "exit 3",
	})

	view, _ := registry.Get(id)
	require.Equal(t, agent.StatusError, view.Status.Kind)
	assert.Equal(t, "Command exited with status: 3", view.Status.Message)
}

func TestShellStderrIsCaptured(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Shell(),
		Parameters: "echo oops >&2",
	})

	assert.Contains(t, outputOf(collected), "oops\n")
}

func TestShellEmptyCommand(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	id, _ := runAgent(t, e, registry, b, agent.SpawnRequest{Type: agent.Shell()})

	view, _ := registry.Get(id)
	assert.Equal(t, agent.StatusError, view.Status.Kind)
}

func TestCoderWritesFile(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)
	target := filepath.Join(cwd, "axiom_test.txt")

	id, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Coder(),
		Parameters: target + "|hi\n",
	})

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(content))

	var modified *events.FileModification
	for _, ev := range collected {
		if fm, ok := ev.(events.FileModification); ok {
			modified = &fm
		}
	}
	require.NotNil(t, modified, "expected a FileModification event")
	assert.Equal(t, target, modified.Path)
	assert.Equal(t, "hi\n", modified.Content)

	view, _ := registry.Get(id)
	assert.Equal(t, agent.StatusCompleted, view.Status.Kind)
}

func TestCoderCreatesParentDirectories(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)

	runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Coder(),
		Parameters: "nested/deep/file.txt|content",
	})

	content, err := os.ReadFile(filepath.Join(cwd, "nested", "deep", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(content))
}

func TestCoderWithoutPipeEchoesDescription(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	id, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Coder(),
		Parameters: "just a description",
	})

	assert.Contains(t, outputOf(collected), "Coder: just a description")
	view, _ := registry.Get(id)
	assert.Equal(t, agent.StatusCompleted, view.Status.Kind)
}

func TestSearchFindsMatches(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "notes.txt"), []byte("a TODO_MARKER here\n"), 0o644))

	id, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Search(),
		Parameters: "TODO_MARKER",
	})

	output := outputOf(collected)
	assert.Contains(t, output, "Searching for: TODO_MARKER")
	assert.Contains(t, output, "notes.txt")
	assert.Contains(t, output, "Found 1 matches")

	view, _ := registry.Get(id)
	assert.Equal(t, agent.StatusCompleted, view.Status.Kind)
}

func TestSearchNoMatches(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Search(),
		Parameters: "definitely_not_present_anywhere",
	})

	assert.Contains(t, outputOf(collected), "No matches found")
}

func TestSearchCapsDisplayedMatches(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)

	var sb strings.Builder
	for i := 0; i < 80; i++ {
		sb.WriteString("needle line\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "hay.txt"), []byte(sb.String()), 0o644))

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Search(),
		Parameters: "needle",
	})

	output := outputOf(collected)
	assert.Contains(t, output, "... and 30 more matches")
	assert.Contains(t, output, "Found 80 matches")
}

func TestSearchEmptyQuery(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	id, _ := runAgent(t, e, registry, b, agent.SpawnRequest{Type: agent.Search()})

	view, _ := registry.Get(id)
	assert.Equal(t, agent.StatusError, view.Status.Kind)
}

func TestFileOpsRead(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "f.txt"), []byte("first\nsecond\n"), 0o644))

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.FileOps(),
		Parameters: "read f.txt",
	})

	output := outputOf(collected)
	assert.Contains(t, output, "   1 | first")
	assert.Contains(t, output, "   2 | second")
}

func TestFileOpsReadPaginates(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)

	var sb strings.Builder
	for i := 0; i < 150; i++ {
		sb.WriteString("line\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "long.txt"), []byte(sb.String()), 0o644))

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.FileOps(),
		Parameters: "read long.txt",
	})

	output := outputOf(collected)
	assert.Contains(t, output, " 100 | line")
	assert.NotContains(t, output, " 101 | ")
	assert.Contains(t, output, "... 50 more lines")
}

func TestFileOpsList(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "file.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(cwd, "subdir"), 0o755))

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.FileOps(),
		Parameters: "list",
	})

	output := outputOf(collected)
	assert.Contains(t, output, "- file.txt")
	assert.Contains(t, output, "d subdir")
}

func TestFileOpsExists(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "here.txt"), []byte("x"), 0o644))

	_, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.FileOps(),
		Parameters: "exists here.txt",
	})
	assert.Contains(t, outputOf(collected), "exists (file)")

	_, collected = runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.FileOps(),
		Parameters: "exists missing.txt",
	})
	assert.Contains(t, outputOf(collected), "not found")
}

func TestFileOpsDeleteRecursive(t *testing.T) {
	e, registry, b, cwd := testExecutor(t)
	dir := filepath.Join(cwd, "doomed")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "f.txt"), []byte("x"), 0o644))

	id, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.FileOps(),
		Parameters: "delete doomed",
	})

	assert.Contains(t, outputOf(collected), "Deleted successfully")
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	view, _ := registry.Get(id)
	assert.Equal(t, agent.StatusCompleted, view.Status.Kind)
}

func TestFileOpsUnknownOperation(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	id, _ := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.FileOps(),
		Parameters: "chmod f.txt",
	})

	view, _ := registry.Get(id)
	require.Equal(t, agent.StatusError, view.Status.Kind)
	assert.Contains(t, view.Status.Message, "Unknown operation")
}

func TestCustomAgentCompletesWithMessage(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	id, collected := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type: agent.Custom("my-tool"),
	})

	assert.Contains(t, outputOf(collected), `Custom agent "my-tool" not implemented`)
	view, _ := registry.Get(id)
	assert.Equal(t, agent.StatusCompleted, view.Status.Kind)
}

func TestFailureDoesNotAffectSiblings(t *testing.T) {
	e, registry, b, _ := testExecutor(t)

	bad, _ := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Shell(),
		Parameters: "exit 1",
	})
	good, _ := runAgent(t, e, registry, b, agent.SpawnRequest{
		Type:       agent.Shell(),
		Parameters: "echo fine",
	})

	badView, _ := registry.Get(bad)
	goodView, _ := registry.Get(good)
	assert.Equal(t, agent.StatusError, badView.Status.Kind)
	assert.Equal(t, agent.StatusCompleted, goodView.Status.Kind)
}
