// Package executor runs in-process agents: shell commands, file writes,
// content search, and file operations.
//
// Each Execute call spawns one worker goroutine scoped to the agent. Workers
// share no mutable state; they talk to the rest of the system only through
// the event bus and the registry. Failures surface as the agent's Error
// status; the executor never retries.
package executor

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
)

const (
	maxSearchMatches = 50
	maxReadLines     = 100
)

// Executor dispatches spawned agents to type-specific workers.
type Executor struct {
	bus      *bus.Bus
	registry *agent.Registry
	cwd      string
	logger   *logger.Logger
}

// New creates an executor rooted at the session working directory.
func New(b *bus.Bus, registry *agent.Registry, cwd string, log *logger.Logger) *Executor {
	return &Executor{
		bus:      b,
		registry: registry,
		cwd:      cwd,
		logger:   log.WithFields(zap.String("component", "executor")),
	}
}

// Execute transitions the agent to Running and starts its worker. Conductor
// and CLI agents are not handled here; the conductor service and the PTY
// manager own those.
func (e *Executor) Execute(id agent.ID, req agent.SpawnRequest) {
	e.registry.Start(id)
	e.publish(events.AgentUpdate{ID: id, Status: agent.Running()})

	go e.run(id, req)
}

func (e *Executor) run(id agent.ID, req agent.SpawnRequest) {
	var err error
	switch req.Type.Kind {
	case agent.TypeShell:
		err = e.runShell(id, req.Parameters)
	case agent.TypeCoder:
		err = e.runCoder(id, req.Parameters)
	case agent.TypeSearch:
		err = e.runSearch(id, req.Parameters)
	case agent.TypeFileOps:
		err = e.runFileOps(id, req.Parameters)
	case agent.TypeCustom:
		e.output(id, fmt.Sprintf("Custom agent %q not implemented\n", req.Type.Name))
	default:
		// Conductor and CLI agents never reach the executor.
	}

	if err != nil {
		e.registry.Error(id, err.Error())
		e.logger.WithAgentID(uint64(id)).Debug("agent failed", zap.Error(err))
	} else {
		e.registry.Complete(id)
	}
	e.publish(events.AgentComplete{ID: id})
}

// runShell executes `sh -c <command>` in the session cwd, streaming stdout
// line by line and draining stderr afterwards.
func (e *Executor) runShell(id agent.ID, command string) error {
	if command == "" {
		return errors.New("No command provided")
	}

	e.output(id, fmt.Sprintf("$ %s\n", command))

	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = e.cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("Failed to execute command: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("Failed to execute command: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("Failed to execute command: %v", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		e.output(id, scanner.Text()+"\n")
	}

	errScanner := bufio.NewScanner(stderr)
	errScanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for errScanner.Scan() {
		e.output(id, errScanner.Text()+"\n")
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("Command exited with status: %d", exitErr.ExitCode())
		}
		return fmt.Errorf("Failed to wait for command: %v", err)
	}
	return nil
}

// runCoder writes a file from "path|content" parameters, creating missing
// parent directories. Without the pipe, the description is echoed as output.
func (e *Executor) runCoder(id agent.ID, params string) error {
	path, content, found := strings.Cut(params, "|")
	if !found {
		e.output(id, fmt.Sprintf("Coder: %s\n", params))
		return nil
	}

	filePath := e.resolvePath(path)
	e.output(id, fmt.Sprintf("Writing to: %s\n", filePath))

	if parent := filepath.Dir(filePath); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return fmt.Errorf("Failed to create directory: %v", err)
		}
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("Failed to write file: %v", err)
	}

	e.output(id, fmt.Sprintf("File written successfully (%d bytes)\n", len(content)))
	e.publish(events.FileModification{Path: filePath, Content: content})
	return nil
}

// runSearch prefers ripgrep and falls back to recursive grep. Displayed
// matches are capped; the total count is always reported.
func (e *Executor) runSearch(id agent.ID, query string) error {
	if query == "" {
		return errors.New("No search query provided")
	}

	e.output(id, fmt.Sprintf("Searching for: %s\n\n", query))

	stdout, stderr, err := e.searchCommand(query)
	if err != nil {
		return fmt.Errorf("Search failed: %v", err)
	}

	switch {
	case len(stdout) > 0:
		lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
		total := len(lines)
		shown := lines
		if total > maxSearchMatches {
			shown = lines[:maxSearchMatches]
		}
		for _, line := range shown {
			e.output(id, line+"\n")
		}
		if total > maxSearchMatches {
			e.output(id, fmt.Sprintf("\n... and %d more matches\n", total-maxSearchMatches))
		}
		e.output(id, fmt.Sprintf("\nFound %d matches\n", total))
	case len(stderr) > 0:
		e.output(id, stderr)
	default:
		e.output(id, "No matches found\n")
	}
	return nil
}

// searchCommand runs rg, or grep when rg is not installed. A non-zero exit
// with captured output (no matches) is not a failure.
func (e *Executor) searchCommand(query string) (string, string, error) {
	stdout, stderr, err := e.captureCommand("rg", "--line-number", "--with-filename", query)
	if err != nil && errors.Is(err, exec.ErrNotFound) {
		stdout, stderr, err = e.captureCommand("grep", "-rn", query, ".")
	}
	return stdout, stderr, err
}

func (e *Executor) captureCommand(name string, args ...string) (string, string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = e.cwd
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The command ran; no matches or partial errors are reported
		// through its output, not as a spawn failure.
		err = nil
	}
	return outBuf.String(), errBuf.String(), err
}

// runFileOps handles "op path" parameters: read, list/ls, exists, delete/rm.
func (e *Executor) runFileOps(id agent.ID, params string) error {
	op, path, _ := strings.Cut(params, " ")
	if op == "" {
		return errors.New("No operation specified")
	}
	path = strings.TrimSpace(path)

	switch op {
	case "read":
		return e.fileRead(id, path)
	case "list", "ls":
		return e.fileList(id, path)
	case "exists":
		return e.fileExists(id, path)
	case "delete", "rm":
		return e.fileDelete(id, path)
	default:
		return fmt.Errorf("Unknown operation: %s", op)
	}
}

func (e *Executor) fileRead(id agent.ID, path string) error {
	filePath := e.resolvePath(path)
	e.output(id, fmt.Sprintf("Reading: %s\n\n", filePath))

	content, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("Failed to read file: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	total := len(lines)
	shown := lines
	if total > maxReadLines {
		shown = lines[:maxReadLines]
	}
	for i, line := range shown {
		e.output(id, fmt.Sprintf("%4d | %s\n", i+1, line))
	}
	if total > maxReadLines {
		e.output(id, fmt.Sprintf("\n... %d more lines\n", total-maxReadLines))
	}
	return nil
}

func (e *Executor) fileList(id agent.ID, path string) error {
	dirPath := e.cwd
	if path != "" {
		dirPath = e.resolvePath(path)
	}
	e.output(id, fmt.Sprintf("Listing: %s\n\n", dirPath))

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("Failed to list directory: %v", err)
	}
	for _, entry := range entries {
		kind := "-"
		if entry.IsDir() {
			kind = "d"
		}
		e.output(id, fmt.Sprintf("%s %s\n", kind, entry.Name()))
	}
	return nil
}

func (e *Executor) fileExists(id agent.ID, path string) error {
	filePath := e.resolvePath(path)

	info, err := os.Stat(filePath)
	switch {
	case err == nil && info.IsDir():
		e.output(id, fmt.Sprintf("%s: exists (directory)\n", filePath))
	case err == nil:
		e.output(id, fmt.Sprintf("%s: exists (file)\n", filePath))
	default:
		e.output(id, fmt.Sprintf("%s: not found (unknown)\n", filePath))
	}
	return nil
}

func (e *Executor) fileDelete(id agent.ID, path string) error {
	filePath := e.resolvePath(path)
	e.output(id, fmt.Sprintf("Deleting: %s\n", filePath))

	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("Failed to delete file: %v", err)
	}
	if info.IsDir() {
		if err := os.RemoveAll(filePath); err != nil {
			return fmt.Errorf("Failed to delete directory: %v", err)
		}
	} else {
		if err := os.Remove(filePath); err != nil {
			return fmt.Errorf("Failed to delete file: %v", err)
		}
	}
	e.output(id, "Deleted successfully\n")
	return nil
}

func (e *Executor) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.cwd, path)
}

func (e *Executor) output(id agent.ID, chunk string) {
	e.publish(events.AgentOutput{ID: id, Chunk: chunk})
}

// publish sends to the bus; a closed bus means shutdown, so events are
// dropped silently and the worker winds down on its own.
func (e *Executor) publish(event events.Event) {
	_ = e.bus.Send(event)
}
