package pty

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kandev/axiom/internal/agent"
	"github.com/kandev/axiom/internal/common/config"
	"github.com/kandev/axiom/internal/common/logger"
	"github.com/kandev/axiom/internal/events/bus"
	"github.com/kandev/axiom/internal/term"
)

// Manager owns all PTY sessions, keyed by agent id. It is the exclusive
// owner of the file descriptors, parsers, and child processes; other
// components correlate through the agent id only.
//
// Thread-safe. The map lock is never held across PTY I/O.
type Manager struct {
	bus    *bus.Bus
	logger *logger.Logger

	mu          sync.RWMutex
	sessions    map[agent.ID]*Session
	defaultCols uint16
	defaultRows uint16
}

// NewManager creates an empty PTY manager.
func NewManager(b *bus.Bus, log *logger.Logger) *Manager {
	return &Manager{
		bus:         b,
		logger:      log.WithFields(zap.String("component", "pty-manager")),
		sessions:    make(map[agent.ID]*Session),
		defaultCols: 80,
		defaultRows: 24,
	}
}

// SetDefaultSize sets the dimensions used for new sessions.
func (m *Manager) SetDefaultSize(cols, rows uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultCols = max(cols, MinCols)
	m.defaultRows = max(rows, MinRows)
}

// DefaultSize returns the dimensions used for new sessions.
func (m *Manager) DefaultSize() (cols, rows uint16) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultCols, m.defaultRows
}

// Start spawns a new CLI agent session. A failure leaves no session
// registered.
func (m *Manager) Start(id agent.ID, cfg config.CliAgentConfig, prompt, cwd string) error {
	cols, rows := m.DefaultSize()

	session, err := newSession(id, cfg, prompt, cwd, cols, rows, m.bus, m.logger)
	if err != nil {
		m.logger.WithAgentID(uint64(id)).WithError(err).Error("failed to start pty session",
			zap.String("command", cfg.Command))
		return err
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	return nil
}

// Write sends input bytes to a session.
func (m *Manager) Write(id agent.ID, data []byte) error {
	session, ok := m.get(id)
	if !ok {
		return ErrNotFound
	}
	return session.Write(data)
}

// Resize changes one session's PTY dimensions. Idempotent when unchanged.
func (m *Manager) Resize(id agent.ID, cols, rows uint16) error {
	session, ok := m.get(id)
	if !ok {
		return ErrNotFound
	}
	return session.Resize(cols, rows)
}

// ResizeAll resizes every session and updates the default dimensions.
func (m *Manager) ResizeAll(cols, rows uint16) error {
	m.mu.Lock()
	m.defaultCols = max(cols, MinCols)
	m.defaultRows = max(rows, MinRows)
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.Resize(cols, rows); err != nil {
			return err
		}
	}
	return nil
}

// Screen snapshots a session's terminal grid for rendering.
func (m *Manager) Screen(id agent.ID) (term.Screen, bool) {
	session, ok := m.get(id)
	if !ok {
		return term.Screen{}, false
	}
	return session.Screen(), true
}

// Text renders a session's visible screen as plain text.
func (m *Manager) Text(id agent.ID) (string, bool) {
	session, ok := m.get(id)
	if !ok {
		return "", false
	}
	return session.Text(), true
}

// Contains reports whether the id belongs to a managed session.
func (m *Manager) Contains(id agent.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// MarkExited flags a session as exited without removing it.
func (m *Manager) MarkExited(id agent.ID) {
	if session, ok := m.get(id); ok {
		session.markExited()
	}
}

// Remove drops a session. Closing the PTY master sends SIGHUP to the child.
func (m *Manager) Remove(id agent.ID) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		session.close()
		m.logger.WithAgentID(uint64(id)).Debug("pty session removed")
	}
}

// CleanupExited drops all sessions whose child has exited.
func (m *Manager) CleanupExited() {
	m.mu.Lock()
	var exited []*Session
	for id, s := range m.sessions {
		if s.Exited() {
			exited = append(exited, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range exited {
		s.close()
	}
}

// ActiveIDs returns the ids of all sessions that have not exited.
func (m *Manager) ActiveIDs() []agent.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]agent.ID, 0, len(m.sessions))
	for id, s := range m.sessions {
		if !s.Exited() {
			ids = append(ids, id)
		}
	}
	return ids
}

// IDs returns all session ids, exited or not.
func (m *Manager) IDs() []agent.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]agent.ID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of managed sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) get(id agent.ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}
