package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
)

// waitForFileChanged drains the bus until a FileChanged for path arrives.
func waitForFileChanged(t *testing.T, b *bus.Bus, path string) bool {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			return false
		default:
		}
		env, ok := b.RecvTimeout(100 * time.Millisecond)
		if !ok {
			continue
		}
		if changed, ok := env.Payload.(events.FileChanged); ok && changed.Path == path {
			return true
		}
	}
}

func TestWatcherReportsFileWrites(t *testing.T) {
	dir := t.TempDir()
	b := bus.New(256)

	w, err := New(dir, b, logger.Default())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	target := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	assert.True(t, waitForFileChanged(t, b, target), "expected a FileChanged event")
}

func TestWatcherWatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	b := bus.New(256)

	w, err := New(dir, b, logger.Default())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	subdir := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(subdir, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	target := filepath.Join(subdir, "file.go")
	require.NoError(t, os.WriteFile(target, []byte("package pkg"), 0o644))

	assert.True(t, waitForFileChanged(t, b, target))
}

func TestWatcherIgnoresHiddenAndBuildArtifacts(t *testing.T) {
	assert.True(t, shouldIgnore("/project/.git/config"))
	assert.True(t, shouldIgnore("/project/node_modules/dep/index.js"))
	assert.True(t, shouldIgnore("/project/.hidden"))
	assert.True(t, shouldIgnore("/project/app.log"))
	assert.True(t, shouldIgnore("/project/scratch.tmp"))
	assert.False(t, shouldIgnore("/project/main.go"))
	assert.False(t, shouldIgnore("/project/src/lib.rs"))
}
