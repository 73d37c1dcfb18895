package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/common/config"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/conductor"
	"github.com/kandev/axiom/internal/events"
	"github.com/kandev/axiom/internal/events/bus"
	"github.com/kandev/axiom/internal/executor"
	"github.com/kandev/axiom/internal/llm"
	"github.com/kandev/axiom/internal/pty"
	"github.com/kandev/axiom/internal/term"
)

// notificationCapacity bounds the UI-facing queue. The UI contract is to
// keep polling; a full queue applies backpressure to the event loop.
const notificationCapacity = 1024

// CliAgentInfo describes a configured external CLI agent.
type CliAgentInfo struct {
	ID      string
	Name    string
	Icon    string
	Enabled bool
}

// Service is the backend facade. It translates Commands into mutations and
// spawns, drains the event bus, and emits Notifications.
type Service struct {
	bus           *bus.Bus
	notifications chan Notification

	registry  *agent.Registry
	ptys      *pty.Manager
	providers *llm.Registry
	conductor *conductor.Conductor
	executor  *executor.Executor

	cfg    *config.Config
	cwd    string
	logger *logger.Logger

	mu      sync.RWMutex
	context events.OutputContext
}

// New wires the backend together: bus, registry, providers, PTY manager,
// executor, and conductor.
func New(cfg *config.Config, cwd string, log *logger.Logger) (*Service, error) {
	b := bus.New(cfg.Events.Capacity)
	registry := agent.NewRegistry()
	ptys := pty.NewManager(b, log)
	providers := buildProviderRegistry(cfg, log)
	cond := conductor.New(providers, b, log)
	exec := executor.New(b, registry, cwd, log)

	return &Service{
		bus:           b,
		notifications: make(chan Notification, notificationCapacity),
		registry:      registry,
		ptys:          ptys,
		providers:     providers,
		conductor:     cond,
		executor:      exec,
		cfg:           cfg,
		cwd:           cwd,
		logger:        log.WithFields(zap.String("component", "service")),
		context:       events.EmptyContext(),
	}, nil
}

// buildProviderRegistry registers every enabled provider and selects the
// configured default. The fallback chain starts with the default provider.
func buildProviderRegistry(cfg *config.Config, log *logger.Logger) *llm.Registry {
	registry := llm.NewRegistry()
	opts := llm.Options{
		MetadataTimeout: cfg.LLM.MetadataTimeoutDuration(),
		GenerateTimeout: cfg.LLM.GenerateTimeoutDuration(),
	}

	ids := make([]string, 0, len(cfg.LLM.Providers))
	for id := range cfg.LLM.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	// Default provider leads the fallback chain.
	sort.SliceStable(ids, func(i, j int) bool {
		return ids[i] == cfg.LLM.DefaultProvider && ids[j] != cfg.LLM.DefaultProvider
	})

	for _, id := range ids {
		pc := cfg.LLM.Providers[id]
		if !pc.Enabled {
			continue
		}
		switch id {
		case "ollama":
			registry.Register(llm.NewOllamaProvider(pc.BaseURL, pc.DefaultModel, opts))
		case "openai":
			registry.Register(llm.NewOpenAIProvider(pc.APIKey, pc.BaseURL, pc.DefaultModel, opts))
		case "claude":
			registry.Register(llm.NewClaudeProvider(pc.APIKey, pc.BaseURL, pc.DefaultModel, opts))
		default:
			log.Warn("unknown LLM provider in config", zap.String("provider", id))
		}
	}

	if _, ok := registry.Get(cfg.LLM.DefaultProvider); ok {
		_ = registry.SetActive(cfg.LLM.DefaultProvider)
	} else if ids := registry.IDs(); len(ids) > 0 {
		_ = registry.SetActive(ids[0])
	}
	return registry
}

// Bus returns the internal event bus for auxiliary producers (the file
// watcher, tests driving recorded event sequences).
func (s *Service) Bus() *bus.Bus { return s.bus }

// ProviderRegistry returns the LLM provider registry.
func (s *Service) ProviderRegistry() *llm.Registry { return s.providers }

// Send applies a user command.
func (s *Service) Send(cmd Command) error {
	switch cmd := cmd.(type) {
	case ProcessInput:
		return s.processInput(cmd.Text)
	case ExecuteShell:
		return s.executeShell(cmd.Command)
	case InvokeCliAgent:
		return s.invokeCliAgent(cmd.AgentID, cmd.Prompt)
	case SendPtyInput:
		return s.ptys.Write(cmd.AgentID, cmd.Data)
	case ResizePty:
		return s.ptys.Resize(cmd.AgentID, cmd.Cols, cmd.Rows)
	case ReadFile:
		return s.readFile(cmd.Path)
	case WriteFile:
		return s.writeFile(cmd.Path, cmd.Content)
	case SetLlmModel:
		return s.providers.SetModel(cmd.ProviderID, cmd.Model)
	case CancelAgent:
		return s.cancelAgent(cmd.AgentID)
	case SelectContext:
		s.setContext(cmd.Context)
		return nil
	case ListProviders:
		for _, info := range s.providers.Infos() {
			s.notify(Info{Message: fmt.Sprintf("Provider: %s (%s)", info.Name, info.ID)})
		}
		return nil
	case ListCliAgents:
		for _, info := range s.CliAgents() {
			s.notify(Info{Message: fmt.Sprintf("CLI Agent: %s (%s)", info.Name, info.ID)})
		}
		return nil
	case GetSnapshot:
		s.notify(Snapshot{
			Agents:    s.registry.Agents(),
			Context:   s.Context(),
			Providers: s.providers.Infos(),
		})
		return nil
	case ListFiles:
		return s.listFiles(cmd.Path, cmd.IncludeHidden)
	case Shutdown:
		s.shutdown()
		return nil
	case ListWorkspaces:
		s.notify(Info{Message: "ListWorkspaces: workspace operations are handled by the workspace manager"})
		return nil
	case CreateWorkspace:
		s.notify(Info{Message: fmt.Sprintf("CreateWorkspace: %s at %s", cmd.Name, cmd.Path)})
		return nil
	case DeleteWorkspace:
		s.notify(Info{Message: "DeleteWorkspace: " + cmd.WorkspaceID})
		return nil
	case ActivateWorkspace:
		s.notify(Info{Message: "ActivateWorkspace: " + cmd.WorkspaceID})
		return nil
	case DeactivateWorkspace:
		s.notify(Info{Message: "DeactivateWorkspace"})
		return nil
	case GetWorkspace:
		s.notify(Info{Message: "GetWorkspace: " + cmd.WorkspaceID})
		return nil
	case UpdateWorkspace:
		s.notify(Info{Message: fmt.Sprintf("UpdateWorkspace: %s name=%q", cmd.WorkspaceID, cmd.Name)})
		return nil
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

// ProcessEvents drains and handles all pending events.
func (s *Service) ProcessEvents() {
	for {
		env, ok := s.bus.TryRecv()
		if !ok {
			return
		}
		s.handleEvent(env.Payload)
	}
}

// ProcessEventsTimeout blocks up to timeout for the first event, then drains
// the rest.
func (s *Service) ProcessEventsTimeout(timeout time.Duration) {
	env, ok := s.bus.RecvTimeout(timeout)
	if !ok {
		return
	}
	s.handleEvent(env.Payload)
	s.ProcessEvents()
}

// PollNotification returns the next notification without blocking.
func (s *Service) PollNotification() (Notification, bool) {
	select {
	case n := <-s.notifications:
		return n, true
	default:
		return nil, false
	}
}

// Notifications exposes the notification channel for UIs that select on it.
func (s *Service) Notifications() <-chan Notification { return s.notifications }

// Agents returns snapshots of all agents in display order.
func (s *Service) Agents() []agent.View { return s.registry.Agents() }

// Agent returns one agent snapshot.
func (s *Service) Agent(id agent.ID) (agent.View, bool) { return s.registry.Get(id) }

// AgentOutputText returns an agent's accumulated output.
func (s *Service) AgentOutputText(id agent.ID) (string, bool) { return s.registry.Output(id) }

// PtyScreen snapshots a CLI agent's terminal grid.
func (s *Service) PtyScreen(id agent.ID) (term.Screen, bool) { return s.ptys.Screen(id) }

// PtyContains reports whether a PTY session exists for the agent.
func (s *Service) PtyContains(id agent.ID) bool { return s.ptys.Contains(id) }

// Context returns the current viewer attachment.
func (s *Service) Context() events.OutputContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

// Providers returns display snapshots for all providers.
func (s *Service) Providers() []llm.Info { return s.providers.Infos() }

// CliAgents returns the enabled CLI agents from configuration.
func (s *Service) CliAgents() []CliAgentInfo {
	ids := make([]string, 0, len(s.cfg.CliAgents.Agents))
	for id := range s.cfg.CliAgents.Agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var infos []CliAgentInfo
	for _, id := range ids {
		c := s.cfg.CliAgents.Agents[id]
		if !c.Enabled {
			continue
		}
		infos = append(infos, CliAgentInfo{ID: id, Name: c.Name, Icon: c.Icon, Enabled: c.Enabled})
	}
	return infos
}

// Cwd returns the session working directory.
func (s *Service) Cwd() string { return s.cwd }

// CleanupOld evicts terminal agents older than the configured max age and
// drops exited PTY sessions.
func (s *Service) CleanupOld() {
	s.registry.CleanupOld(s.cfg.Agents.CleanupMaxAgeDuration())
	s.ptys.CleanupExited()
}

// ---------- command handlers ----------

func (s *Service) processInput(text string) error {
	if rest, ok := strings.CutPrefix(text, "#"); ok {
		id, prompt, _ := strings.Cut(rest, " ")
		if id != "" {
			return s.invokeCliAgent(id, prompt)
		}
	}

	// A new turn discards the previous turn's sub-agents.
	if conductorID := s.conductor.AgentID(); conductorID != 0 {
		s.registry.RemoveChildren(conductorID)
	}
	s.conductor.Process(text)
	return nil
}

func (s *Service) executeShell(command string) error {
	return s.bus.Send(events.AgentSpawn{Request: agent.SpawnRequest{
		Type:        agent.Shell(),
		Name:        "Shell",
		Description: command,
		Parameters:  command,
	}})
}

func (s *Service) invokeCliAgent(configID, prompt string) error {
	cliCfg, ok := s.cfg.CliAgents.Agents[configID]
	if !ok {
		return fmt.Errorf("CLI agent %q not found", configID)
	}
	if !cliCfg.Enabled {
		return fmt.Errorf("CLI agent %q is disabled", configID)
	}

	id := s.registry.Spawn(agent.SpawnRequest{
		Type:        agent.CliAgent(configID),
		Name:        cliCfg.Name,
		Description: prompt,
		Parameters:  prompt,
	})
	s.registry.Start(id)

	s.notify(AgentSpawned{ID: id, Name: cliCfg.Name, Type: agent.CliAgent(configID)})

	if err := s.ptys.Start(id, cliCfg, prompt, s.cwd); err != nil {
		s.registry.Error(id, err.Error())
		if view, ok := s.registry.Get(id); ok {
			s.notify(AgentStatusChanged{ID: id, Status: view.Status})
		}
		return err
	}

	s.setContext(events.AgentContext(id))
	return nil
}

func (s *Service) readFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s.notify(FileLoaded{Path: path, Content: string(content)})
	s.setContext(events.FileContext(path))
	return nil
}

func (s *Service) writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	s.notify(FileModified{Path: path})
	return nil
}

func (s *Service) cancelAgent(id agent.ID) error {
	s.registry.Cancel(id)

	if s.ptys.Contains(id) {
		s.ptys.Remove(id)
	}

	if view, ok := s.registry.Get(id); ok {
		s.notify(AgentStatusChanged{ID: id, Status: view.Status})
	}
	return nil
}

func (s *Service) listFiles(path string, includeHidden bool) error {
	fullPath := path
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(s.cwd, path)
	}

	dirEntries, err := os.ReadDir(fullPath)
	if err != nil {
		return err
	}

	entries := make([]FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		hidden := strings.HasPrefix(name, ".")
		if hidden && !includeHidden {
			continue
		}

		var size, modified int64
		if info, err := de.Info(); err == nil {
			size = info.Size()
			modified = info.ModTime().Unix()
		}
		entries = append(entries, FileEntry{
			Name:        name,
			Path:        filepath.Join(fullPath, name),
			IsDirectory: de.IsDir(),
			Size:        size,
			Modified:    modified,
			IsHidden:    hidden,
		})
	}

	// Directories first, then case-insensitive by name.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDirectory != entries[j].IsDirectory {
			return entries[i].IsDirectory
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	s.notify(FileList{Path: path, Entries: entries})
	return nil
}

func (s *Service) shutdown() {
	for _, id := range s.ptys.IDs() {
		s.ptys.Remove(id)
	}
	s.bus.Close()
	s.logger.Info("service shut down")
}

// ---------- event handlers ----------

func (s *Service) handleEvent(event events.Event) {
	switch event := event.(type) {
	case events.AgentSpawn:
		s.handleAgentSpawn(event.Request)
	case events.AgentUpdate:
		s.registry.Update(event.ID, event.Status)
		s.notifyStatus(event.ID)
	case events.AgentOutput:
		s.registry.AppendOutput(event.ID, event.Chunk)
		s.notify(AgentOutput{ID: event.ID, Chunk: event.Chunk})
	case events.AgentComplete:
		s.registry.Complete(event.ID)
		s.notifyStatus(event.ID)
	case events.AgentWake:
		s.registry.Start(event.ID)
	case events.CliAgentOutput:
		s.notify(PtyOutput{ID: event.ID, Data: event.Data})
	case events.CliAgentExit:
		s.handleCliAgentExit(event.ID, event.ExitCode)
	case events.CliAgentInput:
		if err := s.ptys.Write(event.ID, event.Data); err != nil {
			s.logger.WithAgentID(uint64(event.ID)).Debug("pty input dropped", zap.Error(err))
		}
	case events.CliAgentInvoke:
		if err := s.invokeCliAgent(event.ConfigID, event.Prompt); err != nil {
			s.notify(Error{Message: err.Error()})
		}
	case events.ConductorRequest:
		_ = s.processInput(event.Text)
	case events.ShellExecute:
		_ = s.executeShell(event.Command)
	case events.LlmChunk:
		// Streamed inside the conductor; nothing to do at the facade.
	case events.LlmDone:
	case events.LlmError:
		s.notify(Error{Message: event.Message})
	case events.FileModification:
		s.notify(FileModified{Path: event.Path})
	case events.FileChanged:
		s.notify(FileModified{Path: event.Path})
	case events.SwitchContext:
		s.setContext(event.Context)
	case events.Tick:
		s.CleanupOld()
	case events.Shutdown:
		s.shutdown()
	}
}

func (s *Service) handleAgentSpawn(req agent.SpawnRequest) {
	id := s.registry.Spawn(req)

	s.notify(AgentSpawned{ID: id, Name: req.Name, Type: req.Type, ParentID: req.ParentID})

	switch {
	case req.Type.Kind == agent.TypeConductor:
		s.conductor.SetAgentID(id)
		s.conductor.Execute(id, req.Parameters)
	case !req.Type.IsCliAgent():
		s.executor.Execute(id, req)
	}

	s.setContext(events.AgentContext(id))
}

func (s *Service) handleCliAgentExit(id agent.ID, exitCode int) {
	s.ptys.MarkExited(id)

	if exitCode == 0 {
		s.registry.Complete(id)
	} else {
		s.registry.Error(id, fmt.Sprintf("Exited with code %d", exitCode))
	}

	s.notify(PtyExited{ID: id, ExitCode: exitCode})
	s.notifyStatus(id)
}

func (s *Service) setContext(ctx events.OutputContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = ctx
}

func (s *Service) notifyStatus(id agent.ID) {
	if view, ok := s.registry.Get(id); ok {
		s.notify(AgentStatusChanged{ID: id, Status: view.Status})
	}
}

func (s *Service) notify(n Notification) {
	s.notifications <- n
}
